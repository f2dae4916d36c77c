package apiclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh operation.
const DefaultRefreshTimeout = 30 * time.Second

// RefreshPolicy decides what a caller does when a refresh for its refresh
// token is already running.
type RefreshPolicy string

const (
	// PolicyShare makes concurrent callers wait for the running refresh and reuse its token.
	PolicyShare RefreshPolicy = "share"
	// PolicyFailFast makes concurrent callers give up with KindUnauthorized.
	PolicyFailFast RefreshPolicy = "fail-fast"
)

// ParseRefreshPolicy parses "share" or "fail-fast".
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch p := RefreshPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyShare, PolicyFailFast:
		return p, nil
	default:
		return "", fmt.Errorf("unknown refresh policy %q", s)
	}
}

var errRefreshInFlight = errors.New("refresh already in flight")

// errNoAccessToken reports a refresher that succeeded without issuing a token.
var errNoAccessToken = errors.New("refresher returned no access token")

type refreshFunc func(ctx context.Context) (*oauth2.Token, error)

// coordinator guarantees at most one refresh in flight per refresh token.
type coordinator interface {
	do(ctx context.Context, refreshToken string, fn refreshFunc) (*oauth2.Token, error)
}

// sharedRefresh runs one refresh per refresh token and hands its result to
// every caller that asks while it runs.
type sharedRefresh struct {
	group   singleflight.Group
	timeout time.Duration
}

func (s *sharedRefresh) do(ctx context.Context, refreshToken string, fn refreshFunc) (*oauth2.Token, error) {
	ch := s.group.DoChan(refreshToken, func() (any, error) {
		// Detached so that the initiating caller going away does not fail the waiters
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return fn(rctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failFastRefresh lets exactly one caller refresh; the others are turned away.
type failFastRefresh struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
	timeout  time.Duration
}

func (f *failFastRefresh) do(ctx context.Context, refreshToken string, fn refreshFunc) (*oauth2.Token, error) {
	f.mu.Lock()
	if _, busy := f.inFlight[refreshToken]; busy {
		f.mu.Unlock()
		return nil, errRefreshInFlight
	}
	f.inFlight[refreshToken] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.inFlight, refreshToken)
		f.mu.Unlock()
	}()

	rctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return fn(rctx)
}
