// Package credstore persists the session credential between restarts and,
// with the Redis backend, shares it between replicas.
package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesprial/gqlauth/internal/config"
)

// ErrNotFound is returned by Load when no credential has been saved.
var ErrNotFound = errors.New("credstore: no credential stored")

// Store loads and saves a single credential.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
}

// New builds the Store selected by cfg.Store. An empty selection means memory.
func New(cfg config.CredentialsConfig) (Store, error) {
	switch cfg.Store {
	case "", config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("credstore: file store requires a path")
		}
		return NewFile(cfg.Path), nil
	case config.StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("credstore: redis store requires an address")
		}
		return NewRedis(cfg.RedisAddr, WithKey(cfg.RedisKey)), nil
	default:
		return nil, fmt.Errorf("credstore: unknown store %q", cfg.Store)
	}
}

// Initial returns the credential to start with: the stored one when present,
// otherwise fallback.
func Initial(ctx context.Context, s Store, fallback string) (string, error) {
	stored, err := s.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		return fallback, nil
	case err != nil:
		return fallback, err
	case stored == "":
		return fallback, nil
	}
	return stored, nil
}
