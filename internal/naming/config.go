// Package naming derives Hasura table names from model names and keeps
// root field aliases unique within one document.
package naming

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "staff": "staff"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides" yaml:"plural_overrides"`
}

// DefaultConfig returns an empty override set.
func DefaultConfig() Config {
	return Config{
		PluralOverrides: make(map[string]string),
	}
}
