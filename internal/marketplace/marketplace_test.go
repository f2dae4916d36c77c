package marketplace_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/session"
)

type seen struct {
	Method string
	URI    string
	Body   string
	Auth   string
}

// recorder answers every request with reply and remembers what it saw.
type recorder struct {
	mu     sync.Mutex
	last   seen
	status int
	reply  string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.last = seen{Method: req.Method, URI: req.URL.RequestURI(), Body: string(body), Auth: req.Header.Get("Authorization")}
	status, reply := r.status, r.reply
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func newServices(t *testing.T) (*recorder, *marketplace.Services, context.Context) {
	t.Helper()
	rec := &recorder{reply: `{"ok":true}`}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)

	resolver := session.NewResolver(map[session.ExecutionContext]session.Reader{
		session.Server: session.ContextReader{},
	})
	c, err := apiclient.New(srv.URL, resolver, nil)
	require.NoError(t, err)

	ctx := session.WithCredentials(context.Background(), session.Credentials{AccessToken: "a1", RefreshToken: "r1"})
	return rec, marketplace.New(c), ctx
}

func TestFeatureRoutes(t *testing.T) {
	rec, svc, ctx := newServices(t)
	auth := apiclient.AuthAs(session.Server)

	tests := []struct {
		name     string
		call     func() (json.RawMessage, error)
		wantMeth string
		wantURI  string
		wantBody string
	}{
		{
			name:     "payments page",
			call:     func() (json.RawMessage, error) { return svc.Payments.List(ctx, marketplace.ListParams{Page: 1}, auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/payments?page=1",
		},
		{
			name: "payments filtered",
			call: func() (json.RawMessage, error) {
				return svc.Payments.List(ctx, marketplace.ListParams{Page: 2, Limit: 20, Status: "on hold"}, auth)
			},
			wantMeth: http.MethodGet,
			wantURI:  "/payments?limit=20&page=2&status=on+hold",
		},
		{
			name:     "payment by id",
			call:     func() (json.RawMessage, error) { return svc.Payments.Get(ctx, "P1", auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/payments/P1",
		},
		{
			name: "resolve dispute",
			call: func() (json.RawMessage, error) {
				return svc.Disputes.Resolve(ctx, "D1", json.RawMessage(`{"outcome":"refund"}`), auth)
			},
			wantMeth: http.MethodPost,
			wantURI:  "/disputes/D1/resolve",
			wantBody: `{"outcome":"refund"}`,
		},
		{
			name:     "dispute id is escaped",
			call:     func() (json.RawMessage, error) { return svc.Disputes.Get(ctx, "a/b", auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/disputes/a%2Fb",
		},
		{
			name:     "resolve dispute without body",
			call:     func() (json.RawMessage, error) { return svc.Disputes.Resolve(ctx, "D2", nil, auth) },
			wantMeth: http.MethodPost,
			wantURI:  "/disputes/D2/resolve",
		},
		{
			name:     "ticket page",
			call:     func() (json.RawMessage, error) { return svc.Support.ListTickets(ctx, marketplace.ListParams{Page: 1}, auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/help-support?page=1",
		},
		{
			name:     "ticket status",
			call:     func() (json.RawMessage, error) { return svc.Support.UpdateTicketStatus(ctx, "T1", "RESOLVED", auth) },
			wantMeth: http.MethodPatch,
			wantURI:  "/help-support/T1/status",
			wantBody: `{"status":"RESOLVED"}`,
		},
		{
			name:     "delete rating",
			call:     func() (json.RawMessage, error) { return svc.Ratings.Delete(ctx, "R3", auth) },
			wantMeth: http.MethodDelete,
			wantURI:  "/ratings/R3",
		},
		{
			name: "referral settings",
			call: func() (json.RawMessage, error) {
				return svc.Referrals.UpdateSettings(ctx, json.RawMessage(`{"reward":5}`), auth)
			},
			wantMeth: http.MethodPatch,
			wantURI:  "/referrals/settings",
			wantBody: `{"reward":5}`,
		},
		{
			name:     "notification read",
			call:     func() (json.RawMessage, error) { return svc.Notifications.MarkRead(ctx, "N1", auth) },
			wantMeth: http.MethodPatch,
			wantURI:  "/notifications/N1/read",
		},
		{
			name:     "profile",
			call:     func() (json.RawMessage, error) { return svc.Profile.Get(ctx, auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/profile",
		},
		{
			name:     "profile update without body",
			call:     func() (json.RawMessage, error) { return svc.Profile.Update(ctx, json.RawMessage{}, auth) },
			wantMeth: http.MethodPatch,
			wantURI:  "/profile",
		},
		{
			name:     "platform settings",
			call:     func() (json.RawMessage, error) { return svc.Settings.Get(ctx, auth) },
			wantMeth: http.MethodGet,
			wantURI:  "/settings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call()
			require.NoError(t, err)
			assert.JSONEq(t, `{"ok":true}`, string(got))

			rec.mu.Lock()
			last := rec.last
			rec.mu.Unlock()
			assert.Equal(t, tt.wantMeth, last.Method)
			assert.Equal(t, tt.wantURI, last.URI)
			assert.Equal(t, "Bearer a1", last.Auth)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, last.Body)
			} else {
				assert.Empty(t, last.Body)
			}
		})
	}
}

func TestInvalidArgumentsAreTransportFailures(t *testing.T) {
	_, svc, ctx := newServices(t)
	auth := apiclient.AuthAs(session.Server)

	_, err := svc.Payments.Get(ctx, "", auth)
	assert.ErrorIs(t, err, apiclient.ErrTransportFailure)

	_, err = svc.Support.UpdateTicketStatus(ctx, "T1", "", auth)
	assert.ErrorIs(t, err, apiclient.ErrTransportFailure)
}

func TestFeatureErrorsKeepTheirKind(t *testing.T) {
	rec, svc, ctx := newServices(t)
	rec.mu.Lock()
	rec.status = http.StatusForbidden
	rec.reply = `{"message":"admins only"}`
	rec.mu.Unlock()

	_, err := svc.Settings.Update(ctx, json.RawMessage(`{"fee":3}`), apiclient.AuthAs(session.Server))
	require.Error(t, err)
	assert.Equal(t, apiclient.KindForbidden, apiclient.KindOf(err))
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    session.Credentials
		wantErr apiclient.Kind
	}{
		{
			name:  "flat",
			reply: `{"accessToken":"a1","refreshToken":"r1"}`,
			want:  session.Credentials{AccessToken: "a1", RefreshToken: "r1"},
		},
		{
			name:  "nested",
			reply: `{"tokens":{"accessToken":"a2","refreshToken":"r2"}}`,
			want:  session.Credentials{AccessToken: "a2", RefreshToken: "r2"},
		},
		{
			name:    "no token",
			reply:   `{"user":{"id":"u1"}}`,
			wantErr: apiclient.KindServerRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{reply: tt.reply}
			srv := httptest.NewServer(rec)
			defer srv.Close()

			c, err := apiclient.New(srv.URL, nil, nil)
			require.NoError(t, err)

			creds, err := marketplace.NewAuth(c, "").Login(context.Background(), marketplace.LoginRequest{Email: "ops@example.com", Password: "pw"})
			if tt.wantErr != 0 {
				assert.Equal(t, tt.wantErr, apiclient.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, creds)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			assert.Equal(t, "/auth/login", rec.last.URI)
			assert.Empty(t, rec.last.Auth, "login is never authenticated")
			assert.JSONEq(t, `{"email":"ops@example.com","password":"pw"}`, rec.last.Body)
		})
	}
}
