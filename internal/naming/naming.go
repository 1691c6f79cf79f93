package naming

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Namer converts model names into table names.
type Namer struct {
	config Config
	logger *slog.Logger
	warned sync.Map
}

var (
	defaultNamer atomic.Pointer[Namer]
	plainNamer   = New(DefaultConfig(), nil)
)

// New creates a Namer with the given configuration. A nil logger logs to
// slog.Default.
func New(cfg Config, logger *slog.Logger) *Namer {
	return &Namer{config: cfg, logger: logger}
}

// Default returns the Namer installed with SetDefault, or one using plain
// inflection rules.
func Default() *Namer {
	if n := defaultNamer.Load(); n != nil {
		return n
	}
	return plainNamer
}

// SetDefault makes n the Namer models use when they carry none. A nil n
// restores the plain rules.
func SetDefault(n *Namer) {
	defaultNamer.Store(n)
}

// Pluralize checks custom overrides first, then falls back to the
// inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// TableName derives the table a model maps to: snake_case with the last
// word pluralized.
// Example: "UserProfile" -> "user_profiles", "Person" -> "people"
func (n *Namer) TableName(model string) string {
	snake := ToSnakeCase(model)
	if snake == "" {
		return ""
	}
	parts := strings.Split(snake, "_")
	last := len(parts) - 1
	parts[last] = n.Pluralize(parts[last])
	return strings.Join(parts, "_")
}

// Check warns when table ends in a suffix the compiler generates for root
// fields, since the response key would then be ambiguous. Each name is
// logged once. It reports whether the name is clean.
func (n *Namer) Check(table string) bool {
	suffix, ok := reservedSuffix(table)
	if ok {
		if _, seen := n.warned.LoadOrStore(table, struct{}{}); !seen {
			n.log().Warn("table name ends with a generated root field suffix",
				slog.String("table", table),
				slog.String("suffix", suffix),
			)
		}
	}
	return !ok
}

// ToSnakeCase converts PascalCase or camelCase to snake_case. Acronyms stay
// together: "HTTPRequest" -> "http_request".
func ToSnakeCase(s string) string {
	runes := []rune(strings.TrimSpace(s))
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '-' || r == ' ':
			b.WriteRune('_')
			continue
		case unicode.IsUpper(r):
			if i > 0 && runes[i-1] != '_' && runes[i-1] != '-' && runes[i-1] != ' ' {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (n *Namer) log() *slog.Logger {
	if n.logger != nil {
		return n.logger
	}
	return slog.Default()
}
