package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"

	"github.com/florianilch/marketdesk/internal/session"
)

// DefaultTimeout bounds a single HTTP exchange when no client is supplied.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// RefreshListener is told about every successful refresh so the owner of the
// session can store the new token. ctx carries the values of the call that
// triggered the refresh but is detached from its cancellation.
type RefreshListener func(ctx context.Context, ec session.ExecutionContext, token *oauth2.Token)

// AuthMode selects whether and how a call is authenticated.
type AuthMode struct {
	enabled bool
	ec      session.ExecutionContext
}

// NoAuth sends a call without credentials and never refreshes.
var NoAuth = AuthMode{}

// AuthAs authenticates a call with the session of the given execution context.
func AuthAs(ec session.ExecutionContext) AuthMode {
	return AuthMode{enabled: true, ec: ec}
}

// Enabled reports whether credentials are attached.
func (a AuthMode) Enabled() bool { return a.enabled }

// ExecutionContext returns the session source of an authenticated call.
func (a AuthMode) ExecutionContext() session.ExecutionContext { return a.ec }

func (a AuthMode) String() string {
	if !a.enabled {
		return "none"
	}
	return a.ec.String()
}

// Request describes one logical API operation.
type Request struct {
	Method string
	// Path is relative to the client's base URL and may carry a query string.
	Path string
	// Body is marshalled to JSON for POST, PATCH and DELETE. Ignored for GET.
	Body any
	Auth AuthMode
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRefreshPolicy selects how concurrent refreshes are coordinated.
func WithRefreshPolicy(p RefreshPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithRefreshTimeout bounds a single refresh operation.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithRefreshListener registers fn to run after every successful refresh.
func WithRefreshListener(fn RefreshListener) Option {
	return func(c *Client) {
		c.listener = fn
	}
}

// WithUserAgent sets the User-Agent header of API calls.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client executes API calls with at most one transparent credential refresh.
// It is safe for concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	sessions       *session.Resolver
	refresher      Refresher
	listener       RefreshListener
	policy         RefreshPolicy
	refreshTimeout time.Duration
	coordinator    coordinator
	userAgent      string
	logger         *slog.Logger
}

// New creates a Client for the API at baseURL. A nil refresher disables refresh:
// every 401 on an authenticated call becomes KindUnauthorized.
func New(baseURL string, sessions *session.Resolver, refresher Refresher, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", baseURL)
	}
	if sessions == nil {
		sessions = session.NewResolver(nil)
	}

	c := &Client{
		baseURL:        strings.TrimRight(u.String(), "/"),
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		sessions:       sessions,
		refresher:      refresher,
		policy:         PolicyShare,
		refreshTimeout: DefaultRefreshTimeout,
		userAgent:      "marketdesk",
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = DefaultRefreshTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	switch c.policy {
	case PolicyShare:
		c.coordinator = &sharedRefresh{timeout: c.refreshTimeout}
	case PolicyFailFast:
		c.coordinator = &failFastRefresh{timeout: c.refreshTimeout, inFlight: make(map[string]struct{})}
	default:
		return nil, fmt.Errorf("unknown refresh policy %q", c.policy)
	}

	return c, nil
}

// Do executes req and decodes a successful JSON response into out.
// A nil out discards the body. Every failure is an *Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	method := strings.ToUpper(req.Method)
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		return transportFailure(fmt.Errorf("unsupported method %q", req.Method))
	}

	endpoint, err := c.resolve(req.Path)
	if err != nil {
		return transportFailure(err)
	}

	var body []byte
	if method != http.MethodGet && hasBody(req.Body) {
		if body, err = json.Marshal(req.Body); err != nil {
			return transportFailure(fmt.Errorf("marshaling request body: %w", err))
		}
	}

	cl := &call{
		method:    method,
		endpoint:  endpoint,
		path:      req.Path,
		body:      body,
		requestID: uuid.NewString(),
	}

	var token string
	if req.Auth.enabled {
		token, _ = c.sessions.Reader(req.Auth.ec).AccessToken(ctx)
	}

	resp, err := c.send(ctx, cl, token)
	if err != nil {
		return transportFailure(err)
	}

	if resp.StatusCode == http.StatusUnauthorized && req.Auth.enabled {
		discard(resp)

		fresh, apiErr := c.refresh(ctx, req.Auth.ec)
		if apiErr != nil {
			return apiErr
		}

		// A second 401 is terminal
		resp, err = c.send(ctx, cl, fresh)
		if err != nil {
			return transportFailure(err)
		}
	}

	return c.handle(resp, out)
}

type call struct {
	method    string
	endpoint  string
	path      string
	body      []byte
	requestID string
}

func (c *Client) resolve(path string) (string, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	return u.String(), nil
}

// send issues one HTTP exchange. The body bytes are reused on retry.
func (c *Client) send(ctx context.Context, cl *call, token string) (*http.Response, error) {
	var body io.Reader
	if cl.body != nil {
		body = bytes.NewReader(cl.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, cl.method, cl.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", cl.requestID)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.DebugContext(ctx, "api call failed",
			"method", cl.method, "path", cl.path, "request_id", cl.requestID, "error", err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "api call",
		"method", cl.method,
		"path", cl.path,
		"status", resp.StatusCode,
		"request_id", cl.requestID,
		"authenticated", token != "",
		"duration", time.Since(start),
	)
	return resp, nil
}

// handle classifies a response and decodes successful bodies.
func (c *Client) handle(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if readErr != nil {
			return &Error{Kind: KindServerRejected, Message: "reading response: " + readErr.Error(), StatusCode: resp.StatusCode, Err: readErr}
		}
		if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Kind: KindServerRejected, Message: "decoding response: " + err.Error(), StatusCode: resp.StatusCode, Err: err}
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return unauthorized(serverMessage(data, http.StatusText(resp.StatusCode)), resp.StatusCode, nil)
	case resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindForbidden, Message: serverMessage(data, http.StatusText(resp.StatusCode)), StatusCode: resp.StatusCode}
	default:
		return &Error{Kind: KindServerRejected, Message: serverMessage(data, DefaultMessage), StatusCode: resp.StatusCode}
	}
}

// refresh obtains a fresh access token for one retry.
func (c *Client) refresh(ctx context.Context, ec session.ExecutionContext) (string, *Error) {
	if c.refresher == nil {
		return "", unauthorized("credential refresh is not configured", http.StatusUnauthorized, nil)
	}

	refreshToken, ok := c.sessions.Reader(ec).RefreshToken(ctx)
	if !ok {
		return "", unauthorized("no refresh token available", http.StatusUnauthorized, nil)
	}

	token, err := c.coordinator.do(ctx, refreshToken, func(rctx context.Context) (*oauth2.Token, error) {
		c.logger.InfoContext(rctx, "refreshing access token", "execution_context", ec.String())
		tok, err := c.refresher.Refresh(rctx, refreshToken)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, errNoAccessToken
		}
		if c.listener != nil {
			c.listener(rctx, ec, tok)
		}
		return tok, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", transportFailure(ctxErr)
		}
		if errors.Is(err, errRefreshInFlight) {
			return "", unauthorized("credential refresh already in progress", http.StatusUnauthorized, err)
		}
		c.logger.WarnContext(ctx, "access token refresh failed", "execution_context", ec.String(), "error", err)
		return "", unauthorized("credential refresh failed", http.StatusUnauthorized, err)
	}

	if token == nil || token.AccessToken == "" {
		return "", unauthorized("credential refresh returned no access token", http.StatusUnauthorized, errNoAccessToken)
	}
	return token.AccessToken, nil
}

// hasBody reports whether v should be sent as a JSON body.
// An empty json.RawMessage means no body rather than null.
func hasBody(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case json.RawMessage:
		return len(b) > 0
	}
	return true
}

// discard drains and closes a response that will not be read.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
	_ = resp.Body.Close()
}
