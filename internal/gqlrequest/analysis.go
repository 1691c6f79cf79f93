// Package gqlrequest inspects compiled GraphQL documents: which operation
// they run, which response keys they produce, how large they are, and a
// canonical hash used for caching and logging.
package gqlrequest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

var (
	ErrEmptyDocument     = errors.New("document is empty")
	ErrNoOperation       = errors.New("document does not include an operation")
	ErrAmbiguousDocument = errors.New("operation name is required when the document has multiple operations")
)

// Analysis stores parsed and derived metadata of one document.
type Analysis struct {
	Document  *ast.Document
	Operation *ast.OperationDefinition

	OperationName string
	OperationType string

	// RootFields are the response keys of the top-level selections, in
	// document order. Aliases win over field names.
	RootFields []string

	FieldCount     int
	SelectionDepth int
	VariableCount  int

	CanonicalOperation string
	OperationHash      string
}

// Analyze parses query and selects the operation named operationName, or
// the only operation when the name is empty.
func Analyze(query, operationName string) (*Analysis, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyDocument
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	fragments := fragmentsOf(doc)
	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Document:      doc,
		Operation:     op,
		OperationName: effectiveOperationName(op),
		OperationType: string(op.Operation),
		RootFields:    rootFields(op.SelectionSet),
		VariableCount: len(op.VariableDefinitions),
	}
	walker := &selectionWalker{fragments: fragments, visited: map[string]bool{}, inFlight: map[string]bool{}}
	a.FieldCount, a.SelectionDepth = walker.walk(op.SelectionSet, 1)

	a.CanonicalOperation, a.OperationHash, err = canonicalOperationAndHash(op, fragments)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return a, nil
}

func fragmentsOf(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := map[string]*ast.FragmentDefinition{}
	for _, def := range doc.Definitions {
		if fragment, ok := def.(*ast.FragmentDefinition); ok && fragment.Name != nil && fragment.Name.Value != "" {
			fragments[fragment.Name.Value] = fragment
		}
	}
	return fragments
}

func selectOperation(doc *ast.Document, operationName string) (*ast.OperationDefinition, error) {
	var operations []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			operations = append(operations, op)
		}
	}

	if operationName != "" {
		for _, op := range operations {
			if op.Name != nil && op.Name.Value == operationName {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}
	switch len(operations) {
	case 0:
		return nil, ErrNoOperation
	case 1:
		return operations[0], nil
	}
	return nil, ErrAmbiguousDocument
}

func rootFields(set *ast.SelectionSet) []string {
	if set == nil {
		return nil
	}
	keys := make([]string, 0, len(set.Selections))
	for _, sel := range set.Selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		switch {
		case field.Alias != nil && field.Alias.Value != "":
			keys = append(keys, field.Alias.Value)
		case field.Name != nil:
			keys = append(keys, field.Name.Value)
		}
	}
	return keys
}

type selectionWalker struct {
	fragments map[string]*ast.FragmentDefinition
	visited   map[string]bool
	inFlight  map[string]bool
}

// walk counts fields below set and the deepest level reached. Fragment
// spreads are followed once; cycles are cut.
func (w *selectionWalker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	merge := func(f, d int) {
		fields += f
		if d > maxDepth {
			maxDepth = d
		}
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				merge(w.walk(sel.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			merge(w.walk(sel.SelectionSet, depth))
		case *ast.FragmentSpread:
			if sel.Name == nil {
				continue
			}
			name := sel.Name.Value
			if name == "" || w.inFlight[name] || w.visited[name] {
				continue
			}
			w.inFlight[name] = true
			w.visited[name] = true
			if fragment, ok := w.fragments[name]; ok && fragment != nil {
				merge(w.walk(fragment.SelectionSet, depth))
			}
			delete(w.inFlight, name)
		}
	}
	return fields, maxDepth
}
