package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when no session has been stored.
var ErrNotFound = errors.New("no stored session")

// ErrReadOnly is returned by Write and Delete on read-only backends.
var ErrReadOnly = errors.New("token store is read-only")

// TokenStore reads and writes the stored session.
type TokenStore interface {
	// Read returns the stored value. Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) (string, error)

	// Write persists value, replacing any previous one.
	Write(ctx context.Context, value string) error

	// Delete removes the stored value. Deleting a missing value is not an error.
	Delete(ctx context.Context) error
}
