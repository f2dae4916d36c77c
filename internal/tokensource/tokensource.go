package tokensource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a single refresh request.
const DefaultTimeout = 30 * time.Second

// ErrNoAccessToken is returned when the authority answers without an access token.
var ErrNoAccessToken = errors.New("refresh response carries no access token")

// Option configures a refresher.
type Option func(*options)

type options struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
	jsonRequests  bool
}

// WithTransport sets a custom base transport for refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.baseTransport = transport
	}
}

// WithTimeout bounds each refresh request. Defaults to DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithJSONRequests makes OAuth2Refresher send the grant as a JSON body.
func WithJSONRequests() Option {
	return func(o *options) {
		o.jsonRequests = true
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EndpointRefresher calls the API's refresh endpoint.
type EndpointRefresher struct {
	endpoint string
	client   *http.Client
}

// NewEndpointRefresher creates a refresher posting to baseURL joined with path.
func NewEndpointRefresher(baseURL, path string, opts ...Option) (*EndpointRefresher, error) {
	endpoint, err := url.JoinPath(baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh endpoint: %w", err)
	}
	o := newOptions(opts)

	return &EndpointRefresher{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   o.timeout,
			Transport: o.baseTransport,
		},
	}, nil
}

type tokenFields struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// refreshResponse accepts both {"accessToken"} and {"tokens": {"accessToken"}}.
type refreshResponse struct {
	tokenFields
	Tokens *tokenFields `json:"tokens"`
}

// Refresh exchanges refreshToken for a new access token.
func (e *EndpointRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("marshaling refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}

	fields := parsed.tokenFields
	if parsed.Tokens != nil && parsed.Tokens.AccessToken != "" {
		fields = *parsed.Tokens
	}
	if fields.AccessToken == "" {
		return nil, ErrNoAccessToken
	}

	token := &oauth2.Token{
		AccessToken:  fields.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: fields.RefreshToken,
	}
	if fields.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(fields.ExpiresIn) * time.Second)
	}
	return token, nil
}

// OAuth2Refresher performs a refresh_token grant against an OAuth2 token endpoint.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Refresher creates a refresher for a public client (no secret).
func NewOAuth2Refresher(clientID, tokenURL string, opts ...Option) (*OAuth2Refresher, error) {
	if clientID == "" {
		return nil, fmt.Errorf("missing oauth2 client id")
	}
	if _, err := url.ParseRequestURI(tokenURL); err != nil {
		return nil, fmt.Errorf("invalid token url: %w", err)
	}
	o := newOptions(opts)

	transport := o.baseTransport
	if o.jsonRequests {
		transport = &tokenRefreshTransport{base: o.baseTransport}
	}

	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{
			Timeout:   o.timeout,
			Transport: transport,
		},
	}, nil
}

// Refresh exchanges refreshToken for a new access token.
func (o *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	// oauth2 picks the HTTP client up from the context
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	token, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2 refresh: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return token, nil
}

// tokenRefreshTransport converts oauth2's form-encoded token requests to JSON.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type tokenRefreshTransport struct {
	base http.RoundTripper
}

// Compile-time check that tokenRefreshTransport implements http.RoundTripper.
var _ http.RoundTripper = (*tokenRefreshTransport)(nil)

// RoundTrip rewrites the form body as a JSON object.
func (t *tokenRefreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The original body is consumed here and never forwarded
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonData := make(map[string]string, len(formData))
	for key, values := range formData {
		jsonData[key] = strings.Join(values, " ")
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")

	return t.base.RoundTrip(newReq)
}
