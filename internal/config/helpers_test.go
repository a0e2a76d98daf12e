package config

import (
	"encoding/hex"
	"os"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// ApplyEnvOverrides
// ---------------------------------------------------------------------------

func Test_ApplyEnvOverrides_Cases(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string // unset when the value is empty
		initial  Config
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "token env set on empty config",
			env:     map[string]string{"GQLAUTH_AUTH_TOKEN": "my-token"},
			initial: Config{},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "my-token" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "my-token")
				}
			},
		},
		{
			name:    "token env overrides existing token",
			env:     map[string]string{"GQLAUTH_AUTH_TOKEN": "new"},
			initial: Config{Server: ServerConfig{AuthToken: "old"}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "new" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "new")
				}
			},
		},
		{
			name:    "empty env does not override existing values",
			env:     map[string]string{"GQLAUTH_AUTH_TOKEN": "", "GQLAUTH_GRAPHQL_URL": ""},
			initial: Config{Server: ServerConfig{AuthToken: "existing"}, GraphQL: GraphQLConfig{URL: "http://keep"}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "existing" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "existing")
				}
				if cfg.GraphQL.URL != "http://keep" {
					t.Errorf("GraphQL.URL = %q, want %q", cfg.GraphQL.URL, "http://keep")
				}
			},
		},
		{
			name: "graphql and redis overrides",
			env: map[string]string{
				"GQLAUTH_GRAPHQL_URL":        "http://override/graphql",
				"GQLAUTH_GRAPHQL_CREDENTIAL": "cred-from-env",
				"GQLAUTH_REDIS_ADDR":         "redis:6379",
			},
			initial: Config{Server: ServerConfig{Port: 9090}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.GraphQL.URL != "http://override/graphql" {
					t.Errorf("GraphQL.URL = %q", cfg.GraphQL.URL)
				}
				if cfg.GraphQL.Credential != "cred-from-env" {
					t.Errorf("GraphQL.Credential = %q", cfg.GraphQL.Credential)
				}
				if cfg.Credentials.RedisAddr != "redis:6379" {
					t.Errorf("Credentials.RedisAddr = %q", cfg.Credentials.RedisAddr)
				}
				if cfg.Server.Port != 9090 {
					t.Errorf("Port = %d, want 9090 (unchanged)", cfg.Server.Port)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"GQLAUTH_AUTH_TOKEN", "GQLAUTH_GRAPHQL_URL", "GQLAUTH_GRAPHQL_CREDENTIAL", "GQLAUTH_REDIS_ADDR"} {
				// Register cleanup via t.Setenv, then remove the variable so
				// os.Getenv returns "" unless the case sets it.
				t.Setenv(key, "")
				os.Unsetenv(key)
			}
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			cfg := tt.initial
			ApplyEnvOverrides(&cfg)
			tt.validate(t, &cfg)
		})
	}
}

// ---------------------------------------------------------------------------
// EnsureAuthToken
// ---------------------------------------------------------------------------

func Test_EnsureAuthToken_Cases(t *testing.T) {
	t.Run("token already set returns existing token unchanged", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "pre-set",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "pre-set" {
			t.Errorf("returned token = %q, want %q", token, "pre-set")
		}
		if cfg.Server.AuthToken != "pre-set" {
			t.Errorf("cfg.Server.AuthToken = %q, want %q", cfg.Server.AuthToken, "pre-set")
		}
	})

	t.Run("empty token generates and sets new token", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token == "" {
			t.Fatal("returned token is empty, expected a generated value")
		}
		if cfg.Server.AuthToken != token {
			t.Errorf("cfg.Server.AuthToken = %q, want %q (returned token)", cfg.Server.AuthToken, token)
		}
	})

	t.Run("generated token is 32 characters", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(token) != 32 {
			t.Errorf("len(token) = %d, want 32", len(token))
		}
	})

	t.Run("generated token is valid hex", func(t *testing.T) {
		cfg := &Config{
			Server: ServerConfig{
				AuthToken: "",
			},
		}

		token, err := EnsureAuthToken(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoded, err := hex.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not valid hex: %v", token, err)
		}
		if len(decoded) != 16 {
			t.Errorf("decoded length = %d, want 16 bytes", len(decoded))
		}
	})

	t.Run("two calls produce different tokens", func(t *testing.T) {
		cfg1 := &Config{Server: ServerConfig{AuthToken: ""}}
		cfg2 := &Config{Server: ServerConfig{AuthToken: ""}}

		token1, err := EnsureAuthToken(cfg1)
		if err != nil {
			t.Fatalf("first call error: %v", err)
		}

		token2, err := EnsureAuthToken(cfg2)
		if err != nil {
			t.Fatalf("second call error: %v", err)
		}

		if token1 == token2 {
			t.Errorf("two generated tokens are identical: %q", token1)
		}
	})
}

// ---------------------------------------------------------------------------
// GenerateRandomToken
// ---------------------------------------------------------------------------

func Test_GenerateRandomToken_Cases(t *testing.T) {
	t.Run("returns 32 character string", func(t *testing.T) {
		token, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(token) != 32 {
			t.Errorf("len(token) = %d, want 32", len(token))
		}
	})

	t.Run("output is valid hex encoding 16 bytes", func(t *testing.T) {
		token, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoded, err := hex.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not valid hex: %v", token, err)
		}
		if len(decoded) != 16 {
			t.Errorf("decoded byte length = %d, want 16", len(decoded))
		}
	})

	t.Run("two calls return different values", func(t *testing.T) {
		token1, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("first call error: %v", err)
		}

		token2, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("second call error: %v", err)
		}

		if token1 == token2 {
			t.Errorf("two generated tokens are identical: %q", token1)
		}
	})

	t.Run("concurrent calls all succeed with unique tokens", func(t *testing.T) {
		const goroutines = 100

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			tokens = make(map[string]struct{}, goroutines)
			errs   []error
		)

		wg.Add(goroutines)
		for i := 0; i < goroutines; i++ {
			go func() {
				defer wg.Done()
				token, err := GenerateRandomToken()
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				tokens[token] = struct{}{}
			}()
		}
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("got %d errors in concurrent calls; first: %v", len(errs), errs[0])
		}

		if len(tokens) != goroutines {
			t.Errorf("expected %d unique tokens, got %d (collisions detected)", goroutines, len(tokens))
		}
	})
}
