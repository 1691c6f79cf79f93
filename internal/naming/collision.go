package naming

import (
	"fmt"
	"log/slog"
)

// AliasResolver hands out response keys that are unique within one
// document. Two root fields that share a name need distinct aliases or the
// server rejects the request.
type AliasResolver struct {
	seen   map[string]string // response key -> source
	logger *slog.Logger
}

// NewAliasResolver creates an empty resolver.
func NewAliasResolver(logger *slog.Logger) *AliasResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AliasResolver{
		seen:   make(map[string]string),
		logger: logger,
	}
}

// Register claims key for source and returns it, or the next free numeric
// suffix when it is already taken.
func (r *AliasResolver) Register(key, source string) string {
	if _, exists := r.seen[key]; !exists {
		r.seen[key] = source
		return key
	}

	existing := r.seen[key]
	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", key, i)
		if _, exists := r.seen[suffixed]; !exists {
			r.logger.Debug("response key collision, aliasing",
				slog.String("key", key),
				slog.String("alias", suffixed),
				slog.String("existing_source", existing),
				slog.String("new_source", source),
			)
			r.seen[suffixed] = source
			return suffixed
		}
	}
}

// Taken reports whether key has been registered.
func (r *AliasResolver) Taken(key string) bool {
	_, ok := r.seen[key]
	return ok
}
