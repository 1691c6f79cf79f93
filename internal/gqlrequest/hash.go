package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// RequestKey identifies a request by its canonical operation and its
// variables. Formatting differences in the document do not change the key.
func RequestKey(query, operationName string, variables map[string]any) (string, error) {
	analysis, err := Analyze(query, operationName)
	if err != nil {
		return "", err
	}
	vars, err := VariablesHash(variables)
	if err != nil {
		return "", err
	}
	return framedSHA256(analysis.OperationHash, vars), nil
}

// VariablesHash hashes the JSON form of variables. Map keys are marshaled
// in sorted order so equal maps hash equally.
func VariablesHash(variables map[string]any) (string, error) {
	if len(variables) == 0 {
		return framedSHA256("{}"), nil
	}
	raw, err := json.Marshal(variables)
	if err != nil {
		return "", fmt.Errorf("marshal variables: %w", err)
	}
	return framedSHA256(string(raw)), nil
}

func canonicalOperationAndHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, string, error) {
	if op == nil {
		return "", "", fmt.Errorf("operation is nil")
	}

	names := referencedFragmentNames(op.SelectionSet, fragments)
	definitions := make([]ast.Node, 0, 1+len(names))
	definitions = append(definitions, op)
	for _, name := range names {
		fragment, ok := fragments[name]
		if !ok || fragment == nil {
			return "", "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, fragment)
	}

	printed := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions}))
	canonical, ok := printed.(string)
	if !ok {
		return "", "", fmt.Errorf("unexpected canonical document type %T", printed)
	}
	return canonical, framedSHA256(canonical, effectiveOperationName(op)), nil
}

func referencedFragmentNames(root *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) []string {
	if root == nil || len(fragments) == 0 {
		return nil
	}
	visited := map[string]bool{}
	var collect func(*ast.SelectionSet)
	collect = func(set *ast.SelectionSet) {
		if set == nil {
			return
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				collect(sel.SelectionSet)
			case *ast.InlineFragment:
				collect(sel.SelectionSet)
			case *ast.FragmentSpread:
				if sel.Name == nil || sel.Name.Value == "" || visited[sel.Name.Value] {
					continue
				}
				visited[sel.Name.Value] = true
				if fragment, ok := fragments[sel.Name.Value]; ok && fragment != nil {
					collect(fragment.SelectionSet)
				}
			}
		}
	}
	collect(root)

	names := make([]string, 0, len(visited))
	for name := range visited {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// framedSHA256 prefixes each part with its length so ("ab","c") and
// ("a","bc") hash differently.
func framedSHA256(parts ...string) string {
	hash := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
