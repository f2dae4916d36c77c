package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/marketdesk/internal/app"
)

// envPrefix is stripped from environment variables during config loading
// (e.g., MARKETDESK_API__BASE_URL → api.base_url).
const envPrefix = "MARKETDESK_"

// configSources lists where configuration is read from, lowest precedence first.
type configSources struct {
	// path is an explicit config file. Empty means the user config dir is probed.
	path    string
	environ func() []string
	flags   map[string]any
}

// loadConfig merges config file → environment variables → CLI flags → defaults
// and validates the result.
func loadConfig(src configSources) (*app.Config, error) {
	k := koanf.New(".")

	path, explicit := src.path, src.path != ""
	if !explicit {
		path = defaultConfigPath()
	}
	if path != "" {
		err := k.Load(file.Provider(path), toml.Parser())
		switch {
		case err == nil:
		case !explicit && errors.Is(err, fs.ErrNotExist):
			// An absent default config file is fine
		default:
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if src.environ != nil {
		envProvider := env.Provider(".", env.Opt{
			Prefix:        envPrefix,
			TransformFunc: envKey,
			EnvironFunc:   src.environ,
		})
		if err := k.Load(envProvider, nil); err != nil {
			return nil, fmt.Errorf("loading environment variables: %w", err)
		}
	}

	if len(src.flags) > 0 {
		if err := k.Load(confmap.Provider(src.flags, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	cfg := &app.Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// envKey maps MARKETDESK_SESSION__REDIS__ADDR to session.redis.addr.
// Empty values are dropped so they cannot mask a config file entry.
func envKey(key, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	stripped := strings.TrimPrefix(key, envPrefix)
	return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "marketdesk", "config.toml")
}

// flagValues transforms the flags set on cmd and its parents to config keys.
// Examples: --api--base-url → api.base_url, --log-level → log_level
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		if name == "config" || !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}

// configFromCommand loads the configuration for cmd from all sources.
func configFromCommand(cmd *cli.Command) (*app.Config, error) {
	return loadConfig(configSources{
		path:    cmd.String("config"),
		environ: os.Environ,
		flags:   flagValues(cmd),
	})
}
