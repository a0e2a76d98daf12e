// Package config provides configuration loading and defaults for the gqlauth
// transport and its MCP server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// OperationFilter holds allowlist and denylist glob patterns matched against
// operation names submitted through the MCP tools. A pattern may carry an
// operation type prefix such as "mutation:Delete*".
type OperationFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups operation filters.
type SafetyConfig struct {
	Operations OperationFilter `yaml:"operations"`
	// ReadOnly rejects mutations and subscriptions submitted through MCP.
	ReadOnly bool `yaml:"read_only"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
	// Transitions also records transport state transitions.
	Transitions bool `yaml:"transitions"`
}

// ServerConfig holds network and authentication settings for the MCP server.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// GraphQLConfig holds connection details for the GraphQL endpoint.
type GraphQLConfig struct {
	URL string `yaml:"url"`
	// Credential is the initial session credential. A credential found in the
	// configured store takes precedence.
	Credential string `yaml:"credential"`
	// Timeout is the HTTP request timeout in seconds. Zero leaves exchanges
	// unbounded.
	Timeout int `yaml:"timeout"`
	// AuthHeader names the request and response header carrying the credential.
	AuthHeader string `yaml:"auth_header"`
	// AuthScheme, when set, prefixes the credential ("Bearer <token>").
	AuthScheme string `yaml:"auth_scheme"`
	// AuthExpiredStatus is the HTTP status the endpoint uses to reject an
	// expired credential.
	AuthExpiredStatus int `yaml:"auth_expired_status"`
}

// RefreshConfig describes the credential refresh exchange.
type RefreshConfig struct {
	Query string `yaml:"query"`
	// TokenField names the member of the response "data" object that carries
	// the new credential when the response header does not.
	TokenField string `yaml:"token_field"`
}

// CredentialsConfig selects where refreshed credentials are persisted.
type CredentialsConfig struct {
	Store     string `yaml:"store"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redis_addr"`
	RedisKey  string `yaml:"redis_key"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus exposition.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	GraphQL     GraphQLConfig     `yaml:"graphql"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Safety      SafetyConfig      `yaml:"safety"`
	Audit       AuditConfig       `yaml:"audit"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a new Config populated with default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		GraphQL: GraphQLConfig{
			URL:               "http://localhost:8080/graphql",
			AuthHeader:        "auth",
			AuthExpiredStatus: 401,
		},
		Credentials: CredentialsConfig{
			Store:    StoreMemory,
			RedisKey: "gqlauth:credential",
		},
		Audit: AuditConfig{
			Enabled: false,
			LogPath: "/config/audit.log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - GQLAUTH_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - GQLAUTH_GRAPHQL_URL overrides cfg.GraphQL.URL
//   - GQLAUTH_GRAPHQL_CREDENTIAL overrides cfg.GraphQL.Credential
//   - GQLAUTH_REDIS_ADDR overrides cfg.Credentials.RedisAddr
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GQLAUTH_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if url := os.Getenv("GQLAUTH_GRAPHQL_URL"); url != "" {
		cfg.GraphQL.URL = url
	}
	if cred := os.Getenv("GQLAUTH_GRAPHQL_CREDENTIAL"); cred != "" {
		cfg.GraphQL.Credential = cred
	}
	if addr := os.Getenv("GQLAUTH_REDIS_ADDR"); addr != "" {
		cfg.Credentials.RedisAddr = addr
	}
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
