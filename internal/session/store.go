package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/florianilch/marketdesk/internal/tokenstore"
)

// EncodeCredentials serializes the pair for a tokenstore.TokenStore.
func EncodeCredentials(creds Credentials) (string, error) {
	data, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	return string(data), nil
}

// DecodeCredentials parses a stored pair. A value that is not a JSON object is
// treated as a bare refresh token, which is what env-provisioned sessions hold.
func DecodeCredentials(raw string) (Credentials, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Credentials{}, errors.New("empty credentials")
	}
	if !strings.HasPrefix(raw, "{") {
		return Credentials{RefreshToken: raw}, nil
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}
	if creds.Empty() {
		return Credentials{}, errors.New("empty credentials")
	}
	return creds, nil
}

// StoreReader reads credentials from a token store on every lookup.
// It backs the Client execution context.
type StoreReader struct {
	store tokenstore.TokenStore
}

// Compile-time check to ensure StoreReader implements Reader
var _ Reader = (*StoreReader)(nil)

// NewStoreReader creates a StoreReader over store.
func NewStoreReader(store tokenstore.TokenStore) (*StoreReader, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	return &StoreReader{store: store}, nil
}

// AccessToken implements Reader.
func (s *StoreReader) AccessToken(ctx context.Context) (string, bool) {
	creds, ok := s.load(ctx)
	if !ok || creds.AccessToken == "" {
		return "", false
	}
	return creds.AccessToken, true
}

// RefreshToken implements Reader.
func (s *StoreReader) RefreshToken(ctx context.Context) (string, bool) {
	creds, ok := s.load(ctx)
	if !ok || creds.RefreshToken == "" {
		return "", false
	}
	return creds.RefreshToken, true
}

func (s *StoreReader) load(ctx context.Context) (Credentials, bool) {
	raw, err := s.store.Read(ctx)
	if err != nil {
		if !errors.Is(err, tokenstore.ErrNotFound) {
			slog.DebugContext(ctx, "client session unavailable", "error", err)
		}
		return Credentials{}, false
	}

	creds, err := DecodeCredentials(raw)
	if err != nil {
		slog.DebugContext(ctx, "client session unreadable", "error", err)
		return Credentials{}, false
	}
	return creds, true
}

// Rotate replaces the stored access token and, when non-empty, the refresh token.
// It is called by the session owner after a refresh, never by readers.
func Rotate(ctx context.Context, store tokenstore.TokenStore, accessToken, refreshToken string) error {
	var creds Credentials
	raw, err := store.Read(ctx)
	switch {
	case err == nil:
		if creds, err = DecodeCredentials(raw); err != nil {
			return err
		}
	case errors.Is(err, tokenstore.ErrNotFound):
	default:
		return fmt.Errorf("reading stored credentials: %w", err)
	}

	creds.AccessToken = accessToken
	if refreshToken != "" {
		creds.RefreshToken = refreshToken
	}

	encoded, err := EncodeCredentials(creds)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, encoded); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}
