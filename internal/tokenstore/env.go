package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to a session provisioned in an environment variable.
type EnvStore struct {
	envKey string
	lookup func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
// The variable may be unset; Read then reports ErrNotFound.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
		lookup: os.LookupEnv,
	}, nil
}

// Read returns the value of the environment variable.
func (e *EnvStore) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, ok := e.lookup(e.envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("environment variable %s: %w", e.envKey, ErrNotFound)
	}
	return strings.TrimSpace(value), nil
}

// Write is not supported for environment variables.
func (e *EnvStore) Write(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}

// Delete is not supported for environment variables.
func (e *EnvStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
