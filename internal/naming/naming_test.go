package naming

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"analysis", "analyses"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestOverrides(t *testing.T) {
	namer := New(Config{
		PluralOverrides: map[string]string{"staff": "staff"},
	}, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user")) // Falls back to library
	assert.Equal(t, "team_staff", namer.TableName("TeamStaff"))
}

func TestTableName(t *testing.T) {
	namer := Default()

	tests := []struct {
		model    string
		expected string
	}{
		{"User", "users"},
		{"UserProfile", "user_profiles"},
		{"Person", "people"},
		{"HTTPRequest", "http_requests"},
		{"orderItem", "order_items"},
		{"order_item", "order_items"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.TableName(tt.model))
		})
	}
}

func TestCheck_WarnsOnGeneratedSuffix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)

	assert.False(t, namer.Check("users_stream"))
	assert.False(t, namer.Check("users_stream"))
	assert.True(t, namer.Check("users"))
	assert.Contains(t, buf.String(), "generated root field suffix")
	assert.Contains(t, buf.String(), "suffix=_stream")
	assert.Equal(t, 1, strings.Count(buf.String(), "generated root field suffix"), "warned once per name")
}

func TestSetDefault(t *testing.T) {
	t.Cleanup(func() { SetDefault(nil) })

	assert.Equal(t, "people", Default().TableName("Person"))
	SetDefault(New(Config{PluralOverrides: map[string]string{"person": "persons"}}, nil))
	assert.Equal(t, "persons", Default().TableName("Person"))
	SetDefault(nil)
	assert.Equal(t, "people", Default().TableName("Person"))
}

func TestAliasResolver(t *testing.T) {
	r := NewAliasResolver(nil)

	assert.Equal(t, "users", r.Register("users", "query:0"))
	assert.Equal(t, "users2", r.Register("users", "query:1"))
	assert.Equal(t, "users3", r.Register("users", "query:2"))
	assert.Equal(t, "posts", r.Register("posts", "query:3"))
	assert.True(t, r.Taken("users2"))
	assert.False(t, r.Taken("comments"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("users"))
	assert.NoError(t, ValidateName("_private1"))
	assert.Error(t, ValidateName("1users"))
	assert.Error(t, ValidateName("user-profiles"))
	assert.Error(t, ValidateName("__schema"))
	assert.Error(t, ValidateName(""))
}
