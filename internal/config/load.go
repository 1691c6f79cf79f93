package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. HQB_HASURA_URL.
const EnvPrefix = "HQB"

// DefaultURL is the local Hasura GraphQL endpoint.
const DefaultURL = "http://localhost:8080/v1/graphql"

// flags that steer loading itself and are never copied into the config.
var loaderFlags = map[string]bool{"config": true, "env_file": true}

// stdin and promptSecret are swapped in tests.
var (
	stdin        io.Reader = os.Stdin
	promptSecret           = promptTerminal
)

// Load reads configuration with the following precedence:
// 1. Explicit overrides (v.Set), used for secret files and the prompt
// 2. Command line flags that were set
// 3. Environment variables (after .env files are applied)
// 4. Config file
// 5. Default values
//
// flags may be nil; otherwise it must have been populated by DefineFlags
// and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	envFile := ".env"
	cfgPath := ""
	if flags != nil {
		if f := flags.Lookup("env_file"); f != nil {
			envFile = f.Value.String()
		}
		if f := flags.Lookup("config"); f != nil {
			cfgPath = f.Value.String()
		}
	}
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	if cfgPath != "" {
		v.SetConfigFile(expandPath(cfgPath))
	} else {
		v.SetConfigName("hasura-query-builder")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(expandPath("~/.config/hasura-query-builder"))
		v.AddConfigPath("/etc/hasura-query-builder/")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindChangedFlagsToViper(flags, v)
	}

	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if v.GetString("hasura.admin_secret") == "" && v.GetString("hasura.admin_secret_file") != "" {
		secret, err := readSecretFile(v.GetString("hasura.admin_secret_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read admin secret file: %w", err)
		}
		v.Set("hasura.admin_secret", secret)
	}
	if v.GetString("hasura.admin_secret") == "" && v.GetBool("hasura.admin_secret_prompt") {
		secret, err := promptSecret("Enter Hasura admin secret: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read admin secret: %w", err)
		}
		v.Set("hasura.admin_secret", secret)
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// stdinFileKeys may name "@-"; stdin can be consumed only once.
var stdinFileKeys = []string{
	"hasura.admin_secret_file",
	"auth.token_file",
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var keys []string
	for _, key := range stdinFileKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			keys = append(keys, key)
		}
	}
	if len(keys) > 1 {
		return fmt.Errorf("only one file source may read from stdin (@-), got: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	)
}

// loadDotEnv applies path when it exists. Variables already present in the
// environment win.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	path = expandPath(path)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %q: %w", path, err)
	}
	return nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Visit(func(f *pflag.Flag) {
		if loaderFlags[f.Name] || !strings.Contains(f.Name, ".") {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		case "stringToString":
			val, _ := flags.GetStringToString(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers every configuration flag on fs using canonical
// dotted snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file path")
	fs.String("env_file", ".env", "Dotenv file applied before reading the environment")

	fs.String("hasura.url", "", "Hasura GraphQL endpoint")
	fs.String("hasura.ws_url", "", "Subscription endpoint (default: derived from hasura.url)")
	fs.StringToString("hasura.headers", nil, "Extra request headers (key=value,...)")
	fs.String("hasura.admin_secret", "", "Hasura admin secret")
	fs.String("hasura.admin_secret_file", "", "Path to file containing the admin secret (use @- for stdin)")
	fs.Bool("hasura.admin_secret_prompt", false, "Prompt for the admin secret")
	fs.String("hasura.role", "", "Default x-hasura-role")
	fs.Duration("hasura.timeout", 0, "HTTP request timeout")

	fs.Bool("client.debug", false, "Print compiled documents")
	fs.Int("client.chunk_size", 0, "Rows fetched per chunk")
	fs.Int("client.page_size", 0, "Rows per paginator page")
	fs.Bool("client.validate", false, "Parse compiled documents before sending them")

	fs.StringToString("naming.plural_overrides", nil, "Plural forms used for model table names (person=people,...)")

	fs.Bool("cache.enabled", false, "Cache query responses")
	fs.Duration("cache.ttl", 0, "Cache entry lifetime")
	fs.Int("cache.max_entries", 0, "Maximum cached responses")

	fs.String("auth.mode", "", "Bearer token source (token, jwt, oauth2)")
	fs.String("auth.token", "", "Static bearer token")
	fs.String("auth.token_file", "", "Path to file containing a bearer token")
	fs.String("auth.jwt.private_key_file", "", "RSA key used to mint RS256 tokens")
	fs.String("auth.jwt.secret", "", "Shared secret used to mint HS256 tokens")
	fs.String("auth.jwt.default_role", "", "x-hasura-default-role claim")
	fs.StringSlice("auth.jwt.allowed_roles", nil, "x-hasura-allowed-roles claim")
	fs.String("auth.jwt.subject", "", "Token subject and x-hasura-user-id")
	fs.Duration("auth.jwt.ttl", 0, "Token lifetime")
	fs.String("auth.oauth2.token_url", "", "OAuth2 token endpoint")
	fs.String("auth.oauth2.client_id", "", "OAuth2 client ID")
	fs.String("auth.oauth2.client_secret", "", "OAuth2 client secret")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.String("observability.metrics_addr", "", "Address serving /metrics while watching")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("hasura.url", DefaultURL)
	v.SetDefault("hasura.ws_url", "")
	v.SetDefault("hasura.headers", map[string]string{})
	v.SetDefault("hasura.admin_secret", "")
	v.SetDefault("hasura.admin_secret_file", "")
	v.SetDefault("hasura.admin_secret_prompt", false)
	v.SetDefault("hasura.role", "")
	v.SetDefault("hasura.timeout", 30*time.Second)
	v.SetDefault("connections", map[string]any{})

	v.SetDefault("client.debug", false)
	v.SetDefault("client.chunk_size", 100)
	v.SetDefault("client.page_size", 25)
	v.SetDefault("client.validate", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 1024)

	v.SetDefault("auth.mode", "")
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.jwt.private_key_file", "")
	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.key_id", "")
	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.audience", []string{})
	v.SetDefault("auth.jwt.subject", "")
	v.SetDefault("auth.jwt.default_role", "")
	v.SetDefault("auth.jwt.allowed_roles", []string{})
	v.SetDefault("auth.jwt.ttl", time.Hour)
	v.SetDefault("auth.oauth2.token_url", "")
	v.SetDefault("auth.oauth2.client_id", "")
	v.SetDefault("auth.oauth2.client_secret", "")
	v.SetDefault("auth.oauth2.scopes", []string{})
	v.SetDefault("auth.oauth2.audience", "")

	v.SetDefault("observability.service_name", "hasura-query-builder")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", false)
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)

	v.SetDefault("naming.plural_overrides", map[string]string{})
}

// promptTerminal reads a secret without echoing it.
func promptTerminal(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

func readStdin() (string, error) {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// expandPath resolves a leading ~ to the home directory.
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
