package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/console"
	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokensource"
	"github.com/florianilch/marketdesk/internal/tokenstore"
)

// App orchestrates the lifecycle of the console server and related services.
type App struct {
	cfg     *Config
	console *console.Server
	redis   redis.UniversalClient
}

// New creates a new App instance.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// I/O deferred to the first API call
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	repo, rdb, err := newRepository(cfg.Session.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create session repository: %w", err)
	}

	manager, err := newManager(cfg.Session, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	client, err := NewClient(cfg, store, manager)
	if err != nil {
		return nil, err
	}

	server, err := console.New(marketplace.New(client), marketplace.NewAuth(client, cfg.API.LoginPath), manager)
	if err != nil {
		return nil, fmt.Errorf("failed to create console: %w", err)
	}

	return &App{
		cfg:     cfg,
		console: server,
		redis:   rdb,
	}, nil
}

// NewClient creates the API client with both execution contexts registered.
// A nil manager leaves server-side refreshes unpersisted, which suits one-shot CLI calls.
func NewClient(cfg *Config, store tokenstore.TokenStore, manager *session.Manager) (*apiclient.Client, error) {
	clientReader, err := session.NewStoreReader(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create client session reader: %w", err)
	}

	resolver := session.NewResolver(map[session.ExecutionContext]session.Reader{
		session.Server: session.ContextReader{},
		session.Client: clientReader,
	})

	refresher, err := newRefresher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresher: %w", err)
	}

	rotations := newRotationRecorder(manager, store)

	client, err := apiclient.New(cfg.API.BaseURL, resolver, refresher,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		apiclient.WithRefreshPolicy(cfg.API.RefreshPolicy),
		apiclient.WithRefreshTimeout(cfg.API.RefreshTimeout),
		apiclient.WithRefreshListener(rotations.Record),
		apiclient.WithUserAgent(cfg.API.UserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

// newRefresher creates the credential authority for the configured method.
func newRefresher(cfg *Config) (apiclient.Refresher, error) {
	opts := []tokensource.Option{tokensource.WithTimeout(cfg.API.RefreshTimeout)}

	switch cfg.Auth.Method {
	case RefreshMethodEndpoint:
		return tokensource.NewEndpointRefresher(cfg.API.BaseURL, cfg.API.RefreshPath, opts...)
	case RefreshMethodOAuth2:
		if cfg.Auth.JSONRequests {
			opts = append(opts, tokensource.WithJSONRequests())
		}
		return tokensource.NewOAuth2Refresher(cfg.Auth.ClientID, cfg.Auth.TokenURL, opts...)
	default:
		return nil, fmt.Errorf("unsupported refresh method: %s", cfg.Auth.Method)
	}
}

// newRepository returns a Redis-backed repository when an address is configured.
func newRepository(cfg RedisConfig) (session.Repository, redis.UniversalClient, error) {
	if cfg.Addr == "" {
		return session.NewMemoryRepository(), nil, nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	repo, err := session.NewRedisRepository(rdb, cfg.Prefix)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return repo, rdb, nil
}

func newManager(cfg SessionConfig, repo session.Repository) (*session.Manager, error) {
	opts := []session.ManagerOption{
		session.WithCookieName(cfg.CookieName),
		session.WithTTL(cfg.TTL),
		session.WithSecureCookie(cfg.Secure),
	}

	if cfg.HashKey != "" {
		var blockKey []byte
		if cfg.BlockKey != "" {
			blockKey = []byte(cfg.BlockKey)
		}
		codec, err := session.NewCookieCodec([]byte(cfg.HashKey), blockKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithCookieCodec(codec))
	} else {
		slog.Warn("session cookies are unsigned; set session.hash_key outside local development")
	}

	return session.NewManager(repo, opts...)
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	if a.redis != nil {
		if err := a.redis.Ping(gCtx).Err(); err != nil {
			_ = a.redis.Close()
			return fmt.Errorf("session store unreachable: %w", err)
		}
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return a.redis.Close() })
	}

	slog.InfoContext(gCtx, "starting console server", "address", address, "api", a.cfg.API.BaseURL)
	consoleErrCh, err := a.console.Start(gCtx, address)
	if err != nil {
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			_ = shutdownFuncs[i](context.Background())
		}
		return fmt.Errorf("console startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.console.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-consoleErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "console runtime error", "error", err)
				return fmt.Errorf("console: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
