package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/marketplace"
	"github.com/florianilch/marketdesk/internal/observability"
	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the storage backends for the client-side session.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// RefreshMethod selects the credential authority used to refresh access tokens.
type RefreshMethod string

const (
	// RefreshMethodEndpoint posts {refreshToken} to the API's refresh path.
	RefreshMethodEndpoint RefreshMethod = "endpoint"
	// RefreshMethodOAuth2 uses the refresh_token grant against a token URL.
	RefreshMethodOAuth2 RefreshMethod = "oauth2"
)

// keyringService names the keyring entry holding the client-side session.
const keyringService = "marketdesk-session"

// Default configuration values
const (
	DefaultConfigLogFormat          = LogFormatText
	DefaultConfigServerHost         = "127.0.0.1"
	DefaultConfigServerPort         = 4000
	DefaultConfigShutdownTimeout    = 5 * time.Second
	DefaultConfigAPIBaseURL         = "http://127.0.0.1:8080/api"
	DefaultConfigAPITimeout         = 30 * time.Second
	DefaultConfigAPIRefreshPath     = "/auth/refresh"
	DefaultConfigAPIRefreshPolicy   = apiclient.PolicyShare
	DefaultConfigAPIRefreshTimeout  = apiclient.DefaultRefreshTimeout
	DefaultConfigAPIUserAgent       = "marketdesk"
	DefaultConfigAuthStorage        = TokenStorageTypeFile
	DefaultConfigAuthMethod         = RefreshMethodEndpoint
	DefaultConfigSessionTTL         = 24 * time.Hour
	DefaultConfigSessionRedisPrefix = "marketdesk:session"
)

// ServerConfig holds console server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// TelemetryConfig selects where logs are exported besides stderr.
type TelemetryConfig struct {
	Exporter observability.Exporter `json:"exporter" validate:"omitempty,oneof=none stdout otlp-grpc otlp-http"`
}

// APIConfig describes the remote marketplace API.
type APIConfig struct {
	BaseURL        string                  `json:"base_url" validate:"required,url"`
	Timeout        time.Duration           `json:"timeout" validate:"gte=0"`
	LoginPath      string                  `json:"login_path"`
	RefreshPath    string                  `json:"refresh_path"`
	RefreshPolicy  apiclient.RefreshPolicy `json:"refresh_policy" validate:"oneof=share fail-fast"`
	RefreshTimeout time.Duration           `json:"refresh_timeout" validate:"gte=0"`
	UserAgent      string                  `json:"user_agent"`
}

// AuthConfig describes the client-side session and how credentials are refreshed.
type AuthConfig struct {
	// Storage configuration - where the client-side credential pair lives
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to session file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier

	// Refresh method - which authority exchanges a refresh token for an access token
	Method RefreshMethod `json:"method" validate:"required,oneof=endpoint oauth2"`

	// OAuth2 settings, required when Method is oauth2
	TokenURL     string `json:"token_url,omitempty" validate:"omitempty,url"`
	ClientID     string `json:"client_id,omitempty"`
	JSONRequests bool   `json:"json_requests,omitempty"`
}

// RedisConfig locates the server-side session store. Sessions are kept in
// memory when Addr is empty.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db" validate:"gte=0"`
	Prefix   string `json:"prefix"`
}

// SessionConfig holds the server-side session settings of the console.
type SessionConfig struct {
	CookieName string        `json:"cookie_name"`
	HashKey    string        `json:"hash_key,omitempty" validate:"omitempty,min=32"`
	BlockKey   string        `json:"block_key,omitempty"`
	TTL        time.Duration `json:"ttl" validate:"gte=0"`
	Secure     bool          `json:"secure"`
	Redis      RedisConfig   `json:"redis"`
}

// NewTokenStore creates the client-side session store from the authentication configuration.
func (a *AuthConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch a.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(a.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(a.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level      `json:"log_level"`
	LogFormat LogFormat       `json:"log_format" validate:"oneof=text json"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Server    ServerConfig    `json:"server"`
	Shutdown  ShutdownConfig  `json:"shutdown"`
	API       APIConfig       `json:"api"`
	Auth      AuthConfig      `json:"auth"`
	Session   SessionConfig   `json:"session"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = observability.ExporterNone
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = marketplace.DefaultLoginPath
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = DefaultConfigAPIRefreshPath
	}
	if c.API.RefreshPolicy == "" {
		c.API.RefreshPolicy = DefaultConfigAPIRefreshPolicy
	}
	if c.API.RefreshTimeout == 0 {
		c.API.RefreshTimeout = DefaultConfigAPIRefreshTimeout
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = DefaultConfigAPIUserAgent
	}

	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Auth.Method == "" {
		c.Auth.Method = DefaultConfigAuthMethod
	}

	if c.Session.CookieName == "" {
		c.Session.CookieName = session.DefaultCookieName
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultConfigSessionTTL
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = DefaultConfigSessionRedisPrefix
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "marketdesk", "session")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		// env_key must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	switch c.Auth.Method {
	case RefreshMethodEndpoint:
		if c.API.RefreshPath == "" {
			return errors.New("api.refresh_path required for endpoint refresh")
		}
	case RefreshMethodOAuth2:
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			return errors.New("auth.token_url and auth.client_id required for oauth2 refresh")
		}
	}

	// securecookie accepts AES-128, AES-192 or AES-256 block keys
	switch len(c.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("session.block_key must be 16, 24 or 32 bytes, got %d", len(c.Session.BlockKey))
	}
	if c.Session.BlockKey != "" && c.Session.HashKey == "" {
		return errors.New("session.block_key requires session.hash_key")
	}

	return nil
}
