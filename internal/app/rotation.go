package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokenstore"
)

// rotationRecorder persists refreshed tokens to whichever session owns them.
// The API client only reads sessions; this is the single writer.
type rotationRecorder struct {
	manager *session.Manager
	store   tokenstore.TokenStore

	lastAccessToken atomic.Pointer[string]
	writeMu         sync.Mutex
}

func newRotationRecorder(manager *session.Manager, store tokenstore.TokenStore) *rotationRecorder {
	return &rotationRecorder{manager: manager, store: store}
}

// Record is an apiclient.RefreshListener.
func (r *rotationRecorder) Record(ctx context.Context, ec session.ExecutionContext, token *oauth2.Token) {
	switch ec {
	case session.Server:
		if r.manager == nil {
			return
		}
		if err := r.manager.Rotate(ctx, token.AccessToken, token.RefreshToken); err != nil {
			// The current call still succeeds; the next one refreshes again
			slog.ErrorContext(ctx, "failed to persist refreshed server session", "error", err)
		}
	case session.Client:
		r.recordClient(ctx, token)
	}
}

func (r *rotationRecorder) recordClient(ctx context.Context, token *oauth2.Token) {
	if r.store == nil {
		return
	}

	// Hot path: lock-free atomic read for minimal contention
	if last := r.lastAccessToken.Load(); last != nil && *last == token.AccessToken {
		return
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := session.Rotate(ctx, r.store, token.AccessToken, token.RefreshToken); err != nil {
		// A read-only store (env) keeps serving the old pair; every run refreshes once
		slog.WarnContext(ctx, "failed to persist refreshed client session", "error", err)
		return
	}

	// Update cached token only on success - allows retry on next refresh
	access := token.AccessToken
	r.lastAccessToken.Store(&access)
}
