package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/app"
	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokenstore"
)

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "config.toml")
	toml := `
log_format = "json"

[api]
base_url = "https://file.example.com"
refresh_policy = "fail-fast"

[session]
ttl = "2h"
`
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatal(err)
	}

	environ := func() []string {
		return []string{
			"MARKETDESK_API__BASE_URL=https://env.example.com",
			"MARKETDESK_AUTH__FILE=" + filepath.Join(dir, "session"),
			"MARKETDESK_SESSION__REDIS__ADDR=",
			"UNRELATED=1",
		}
	}

	cfg, err := loadConfig(configSources{
		path:    path,
		environ: environ,
		flags:   map[string]any{"server.port": 9000},
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.LogFormat != app.LogFormatJSON {
		t.Errorf("LogFormat = %q, want json from file", cfg.LogFormat)
	}
	if cfg.API.BaseURL != "https://env.example.com" {
		t.Errorf("BaseURL = %q, env must override file", cfg.API.BaseURL)
	}
	if cfg.API.RefreshPolicy != apiclient.PolicyFailFast {
		t.Errorf("RefreshPolicy = %q", cfg.API.RefreshPolicy)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, flag must override", cfg.Server.Port)
	}
	if cfg.Session.Redis.Addr != "" {
		t.Errorf("empty env value must be ignored, got %q", cfg.Session.Redis.Addr)
	}
}

func TestLoadConfigMissingFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	environ := func() []string {
		return []string{"MARKETDESK_AUTH__FILE=" + filepath.Join(t.TempDir(), "session")}
	}

	// An absent default config file is not an error
	if _, err := loadConfig(configSources{environ: environ}); err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	// An absent explicit config file is
	if _, err := loadConfig(configSources{path: filepath.Join(t.TempDir(), "missing.toml"), environ: environ}); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	environ := func() []string {
		return []string{
			"MARKETDESK_AUTH__FILE=" + filepath.Join(t.TempDir(), "session"),
			"MARKETDESK_API__REFRESH_POLICY=wait",
		}
	}
	if _, err := loadConfig(configSources{environ: environ}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRequestBody(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "none"},
		{name: "inline", data: `{"status":"closed"}`, want: `{"status":"closed"}`},
		{name: "stdin", data: "-", stdin: "{\"a\":1}\n", want: `{"a":1}`},
		{name: "invalid", data: `{"a":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requestBody(tt.data, strings.NewReader(tt.stdin))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("requestBody() error = %v", err)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("got %v, want no body", got)
				}
				return
			}
			raw, ok := got.(json.RawMessage)
			if !ok {
				t.Fatalf("body type = %T, want json.RawMessage", got)
			}
			if string(raw) != tt.want {
				t.Errorf("body = %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestExitError(t *testing.T) {
	tests := []struct {
		kind apiclient.Kind
		want int
	}{
		{apiclient.KindUnauthorized, exitUnauthorized},
		{apiclient.KindForbidden, exitForbidden},
		{apiclient.KindTransportFailure, exitTransportFailure},
		{apiclient.KindServerRejected, exitServerRejected},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := exitError(&apiclient.Error{Kind: tt.kind, Message: "Request failed"})
			var exit cli.ExitCoder
			if !errors.As(err, &exit) {
				t.Fatalf("exitError() = %T, want cli.ExitCoder", err)
			}
			if exit.ExitCode() != tt.want {
				t.Errorf("exit code = %d, want %d", exit.ExitCode(), tt.want)
			}
		})
	}

	plain := errors.New("boom")
	if got := exitError(plain); got != plain {
		t.Errorf("unclassified errors pass through, got %v", got)
	}
}

func TestImportAndDescribeSession(t *testing.T) {
	ctx := context.Background()
	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "session"))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := describeSession(ctx, store, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no session stored") {
		t.Errorf("output = %q", out.String())
	}

	if err := importSession(ctx, store, session.Credentials{}); err == nil {
		t.Error("empty credentials must be rejected")
	}

	creds, err := readCredentials(strings.NewReader(`{"accessToken":"access-token-1234","refreshToken":"r1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := importSession(ctx, store, creds); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := describeSession(ctx, store, &out); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "access-token-1234") {
		t.Errorf("token revealed: %q", out.String())
	}
	if !strings.Contains(out.String(), "acce... (17 chars)") || !strings.Contains(out.String(), "refresh token: **") {
		t.Errorf("output = %q", out.String())
	}
}
