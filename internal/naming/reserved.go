package naming

import (
	"fmt"
	"regexp"
	"strings"
)

// Suffixes the compiler appends to table names for generated root fields.
var generatedSuffixes = []string{"_aggregate", "_by_pk", "_stream"}

var namePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

func reservedSuffix(name string) (string, bool) {
	lower := strings.ToLower(name)
	for _, s := range generatedSuffixes {
		if strings.HasSuffix(lower, s) {
			return s, true
		}
	}
	return "", false
}

// ValidateName checks that name can be used as a GraphQL field name or
// alias. Names starting with "__" belong to introspection.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%q is not a valid GraphQL name", name)
	}
	if strings.HasPrefix(name, "__") {
		return fmt.Errorf("%q is reserved for introspection", name)
	}
	return nil
}
