package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// DefaultCookieName names the console session cookie.
const DefaultCookieName = "marketdesk_session"

// CookieCodec encodes and decodes cookie values.
type CookieCodec interface {
	Encode(name string, value any) (string, error)
	Decode(name, value string, dst any) error
}

// NewCookieCodec returns a securecookie codec. A nil blockKey signs without encrypting.
func NewCookieCodec(hashKey, blockKey []byte) (CookieCodec, error) {
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("missing cookie hash key")
	}
	return securecookie.New(hashKey, blockKey), nil
}

// plainCodec stores the session ID verbatim. Only for local development.
type plainCodec struct{}

func (plainCodec) Encode(_ string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("plain cookie codec only encodes strings, got %T", value)
	}
	return s, nil
}

func (plainCodec) Decode(_ string, value string, dst any) error {
	p, ok := dst.(*string)
	if !ok {
		return fmt.Errorf("plain cookie codec only decodes into *string, got %T", dst)
	}
	*p = value
	return nil
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCookieCodec sets the codec used for the session cookie.
func WithCookieCodec(codec CookieCodec) ManagerOption {
	return func(m *Manager) {
		m.codec = codec
	}
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) ManagerOption {
	return func(m *Manager) {
		m.cookieName = name
	}
}

// WithTTL sets the lifetime of new sessions and their cookies.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithSecureCookie marks session cookies Secure.
func WithSecureCookie(secure bool) ManagerOption {
	return func(m *Manager) {
		m.secure = secure
	}
}

// Manager owns server-side sessions: it issues them, attaches them to inbound
// requests and records rotated tokens.
type Manager struct {
	repo       Repository
	codec      CookieCodec
	cookieName string
	ttl        time.Duration
	secure     bool
}

// NewManager creates a Manager backed by repo.
func NewManager(repo Repository, opts ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing session repository")
	}

	m := &Manager{
		repo:       repo,
		codec:      plainCodec{},
		cookieName: DefaultCookieName,
		ttl:        24 * time.Hour,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

type sessionIDKey struct{}

// IDFromContext returns the server session ID attached by Middleware.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey{}).(string)
	return id, ok && id != ""
}

// Middleware loads the session named by the request cookie and attaches its
// credentials to the request context. Requests without a usable session pass
// through unchanged.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(m.cookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var id string
		if err := m.codec.Decode(m.cookieName, cookie.Value, &id); err != nil {
			slog.DebugContext(ctx, "discarding undecodable session cookie", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		creds, err := m.repo.Load(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				slog.WarnContext(ctx, "session lookup failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		ctx = context.WithValue(ctx, sessionIDKey{}, id)
		ctx = WithCredentials(ctx, creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start stores creds under a new session ID and sets the session cookie.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, creds Credentials) (string, error) {
	id := uuid.NewString()
	if err := m.repo.Save(ctx, id, creds, m.ttl); err != nil {
		return "", err
	}

	value, err := m.codec.Encode(m.cookieName, id)
	if err != nil {
		return "", fmt.Errorf("encoding session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// End deletes the session attached to ctx, if any, and expires the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	id, ok := IDFromContext(ctx)
	if !ok {
		return nil
	}
	return m.repo.Delete(ctx, id)
}

// Rotate records refreshed tokens for the session attached to ctx.
// An empty refreshToken keeps the stored one. The session keeps its
// original expiry; refreshing does not extend it.
func (m *Manager) Rotate(ctx context.Context, accessToken, refreshToken string) error {
	id, ok := IDFromContext(ctx)
	if !ok {
		return nil
	}

	creds, _ := CredentialsFromContext(ctx)
	creds.AccessToken = accessToken
	if refreshToken != "" {
		creds.RefreshToken = refreshToken
	}
	return m.repo.Update(ctx, id, creds)
}
