package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	punctuatorSpace = regexp.MustCompile(`\s*([{}()\[\],:!$=@])\s*`)
)

// compact removes whitespace that carries no meaning. Whitespace between
// two names collapses to a single space so fields are never glued
// together. String literals are copied untouched.
func compact(doc string) string {
	var b strings.Builder
	for doc != "" {
		start := strings.IndexByte(doc, '"')
		if start < 0 {
			b.WriteString(compactSpan(doc))
			break
		}
		end := stringEnd(doc, start)
		b.WriteString(compactSpan(doc[:start]))
		b.WriteString(doc[start:end])
		doc = doc[end:]
	}
	return b.String()
}

func compactSpan(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	return punctuatorSpace.ReplaceAllString(s, "$1")
}

// stringEnd returns the index just past the string literal opening at
// start. An unterminated literal runs to the end of doc.
func stringEnd(doc string, start int) int {
	if strings.HasPrefix(doc[start:], `"""`) {
		if i := strings.Index(doc[start+3:], `"""`); i >= 0 {
			return start + 3 + i + 3
		}
		return len(doc)
	}
	for i := start + 1; i < len(doc); i++ {
		switch doc[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(doc)
}

func parse(doc string) (*ast.Document, error) {
	parsed, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(doc), Name: "graphql"}),
	})
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
	}
	return parsed, nil
}

func validate(doc string) error {
	_, err := parse(doc)
	return err
}

func pretty(doc string) (string, error) {
	parsed, err := parse(doc)
	if err != nil {
		return "", err
	}
	out := printer.Print(parsed)
	printed, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("unexpected printer output %T", out)
	}
	return printed, nil
}
