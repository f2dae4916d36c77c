package console_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/console"
	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokensource"
)

// remoteAPI issues a1/r1 on login, a2 on refresh, and accepts only the current token.
type remoteAPI struct {
	mu       sync.Mutex
	valid    string
	status   int
	body     string
	refresh  int
	lastAuth string
}

func (a *remoteAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/login":
		_, _ = io.WriteString(w, `{"accessToken":"a1","refreshToken":"r1"}`)
		return
	case "/auth/refresh":
		a.refresh++
		a.valid = "a2"
		_, _ = io.WriteString(w, `{"tokens":{"accessToken":"a2"}}`)
		return
	}

	a.lastAuth = r.Header.Get("Authorization")
	if a.status != 0 {
		w.WriteHeader(a.status)
		_, _ = io.WriteString(w, a.body)
		return
	}
	if a.lastAuth != "Bearer "+a.valid {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"token expired"}`)
		return
	}
	_, _ = io.WriteString(w, `{"path":"`+r.URL.RequestURI()+`"}`)
}

type harness struct {
	console *console.Server
}

func newHarness(t *testing.T, apiURL string) *harness {
	t.Helper()

	repo := session.NewMemoryRepository()
	manager, err := session.NewManager(repo)
	require.NoError(t, err)

	refresher, err := tokensource.NewEndpointRefresher(apiURL, "/auth/refresh")
	require.NoError(t, err)

	resolver := session.NewResolver(map[session.ExecutionContext]session.Reader{
		session.Server: session.ContextReader{},
	})
	client, err := apiclient.New(apiURL, resolver, refresher,
		apiclient.WithRefreshListener(func(ctx context.Context, ec session.ExecutionContext, tok *oauth2.Token) {
			assert.Equal(t, session.Server, ec)
			assert.NoError(t, manager.Rotate(ctx, tok.AccessToken, tok.RefreshToken))
		}),
	)
	require.NoError(t, err)

	srv, err := console.New(marketplace.New(client), marketplace.NewAuth(client, ""), manager)
	require.NoError(t, err)

	return &harness{console: srv}
}

func newRemote(t *testing.T) (*remoteAPI, string) {
	t.Helper()
	api := &remoteAPI{valid: "a1"}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func (h *harness) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.console.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := h.do(http.MethodPost, "/session", `{"email":"ops@example.com","password":"pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body console.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Code
}

func TestHealthz(t *testing.T) {
	_, url := newRemote(t)
	h := newHarness(t, url)

	rec := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionForwarding(t *testing.T) {
	_, url := newRemote(t)
	h := newHarness(t, url)
	cookie := h.login(t)

	rec := h.do(http.MethodGet, "/api/payments?page=1", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"path":"/payments?page=1"}`, rec.Body.String())
}

func TestRefreshRotatesServerSession(t *testing.T) {
	api, url := newRemote(t)
	h := newHarness(t, url)
	cookie := h.login(t)

	// The API revokes a1 behind the console's back
	api.mu.Lock()
	api.valid = "rotated-elsewhere"
	api.mu.Unlock()

	rec := h.do(http.MethodGet, "/api/profile", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	api.mu.Lock()
	assert.Equal(t, 1, api.refresh)
	api.mu.Unlock()

	// The next request starts from the stored a2, so no further refresh
	rec = h.do(http.MethodGet, "/api/profile", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	api.mu.Lock()
	assert.Equal(t, 1, api.refresh)
	assert.Equal(t, "Bearer a2", api.lastAuth)
	api.mu.Unlock()
}

func TestNoSessionIsUnauthorized(t *testing.T) {
	api, url := newRemote(t)
	h := newHarness(t, url)

	rec := h.do(http.MethodGet, "/api/notifications", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, console.CodeUnauthorized, errorCode(t, rec))

	api.mu.Lock()
	assert.Zero(t, api.refresh, "no refresh token means no refresh")
	api.mu.Unlock()
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantCode   string
	}{
		{"forbidden", http.StatusForbidden, `{"message":"admins only"}`, http.StatusForbidden, console.CodeForbidden},
		{"rejected", http.StatusConflict, `{"message":"already resolved"}`, http.StatusUnprocessableEntity, console.CodeRejected},
		{"server error", http.StatusInternalServerError, `oops`, http.StatusUnprocessableEntity, console.CodeRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, url := newRemote(t)
			h := newHarness(t, url)
			cookie := h.login(t)

			api.mu.Lock()
			api.status, api.body = tt.status, tt.body
			api.mu.Unlock()

			rec := h.do(http.MethodPost, "/api/disputes/D1/resolve", `{"outcome":"refund"}`, cookie)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))

			api.mu.Lock()
			assert.Zero(t, api.refresh, "only a 401 triggers a refresh")
			api.mu.Unlock()
		})
	}
}

func TestUnreachableAPIIsBadGateway(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	h := newHarness(t, srv.URL)

	rec := h.do(http.MethodGet, "/api/settings", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, console.CodeUpstreamFailure, errorCode(t, rec))
}

func TestBadRequests(t *testing.T) {
	_, url := newRemote(t)
	h := newHarness(t, url)
	cookie := h.login(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"negative page", http.MethodGet, "/api/payments?page=-1", ""},
		{"non-numeric limit", http.MethodGet, "/api/ratings?limit=ten", ""},
		{"invalid json", http.MethodPatch, "/api/profile", `{"name":`},
		{"missing status", http.MethodPatch, "/api/support/tickets/T1", `{}`},
		{"login without password", http.MethodPost, "/session", `{"email":"ops@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(tt.method, tt.target, tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, console.CodeInvalidRequest, errorCode(t, rec))
		})
	}
}

func TestLogout(t *testing.T) {
	_, url := newRemote(t)
	h := newHarness(t, url)
	cookie := h.login(t)

	rec := h.do(http.MethodDelete, "/session", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/profile", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
