package session

import (
	"context"
	"fmt"
	"strings"
)

// Credentials is the access/refresh token pair owned by a session.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether neither token is set.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// ExecutionContext selects where the credentials of a call come from.
type ExecutionContext int

const (
	// Server reads the session attached to an inbound console request.
	Server ExecutionContext = iota
	// Client reads the session held by the local credential store.
	Client
)

func (e ExecutionContext) String() string {
	switch e {
	case Server:
		return "server"
	case Client:
		return "client"
	default:
		return fmt.Sprintf("ExecutionContext(%d)", int(e))
	}
}

// ParseExecutionContext parses "server" or "client".
func ParseExecutionContext(s string) (ExecutionContext, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return Server, nil
	case "client":
		return Client, nil
	default:
		return 0, fmt.Errorf("unknown execution context %q", s)
	}
}

// Reader looks up the tokens of the current session.
// A false result means there is no session or no such token; it is never an error.
type Reader interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshToken(ctx context.Context) (string, bool)
}

// Resolver maps execution contexts to their Reader.
type Resolver struct {
	readers map[ExecutionContext]Reader
}

// NewResolver creates a Resolver from the given readers. Nil readers are skipped.
func NewResolver(readers map[ExecutionContext]Reader) *Resolver {
	r := &Resolver{readers: make(map[ExecutionContext]Reader, len(readers))}
	for ec, reader := range readers {
		if reader != nil {
			r.readers[ec] = reader
		}
	}
	return r
}

// Reader returns the reader registered for ec.
// Unregistered contexts get a reader that never finds a session.
func (r *Resolver) Reader(ec ExecutionContext) Reader {
	if r != nil {
		if reader, ok := r.readers[ec]; ok {
			return reader
		}
	}
	return noSession{}
}

type noSession struct{}

func (noSession) AccessToken(context.Context) (string, bool)  { return "", false }
func (noSession) RefreshToken(context.Context) (string, bool) { return "", false }

type credentialsKey struct{}

// WithCredentials returns a copy of ctx carrying creds.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the credentials attached by WithCredentials.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(Credentials)
	return creds, ok
}

// ContextReader reads credentials carried by the request context.
// It backs the Server execution context.
type ContextReader struct{}

// Compile-time check to ensure ContextReader implements Reader
var _ Reader = ContextReader{}

// AccessToken implements Reader.
func (ContextReader) AccessToken(ctx context.Context) (string, bool) {
	creds, ok := CredentialsFromContext(ctx)
	if !ok || creds.AccessToken == "" {
		return "", false
	}
	return creds.AccessToken, true
}

// RefreshToken implements Reader.
func (ContextReader) RefreshToken(ctx context.Context) (string, bool) {
	creds, ok := CredentialsFromContext(ctx)
	if !ok || creds.RefreshToken == "" {
		return "", false
	}
	return creds.RefreshToken, true
}
