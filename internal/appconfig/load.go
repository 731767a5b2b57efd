package appconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no config
// path is given.
const EnvConfigPath = "JUNO_CONFIG"

const defaultHeader = "# juno configuration. Paths accept $VAR and ~/ expansion.\n"

// Load reads configuration from the provided path. If path is empty, uses
// $JUNO_CONFIG or DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("server.default_command", cfg.Server.DefaultCommand)
	v.SetDefault("server.buffer_max_lines", cfg.Server.BufferMaxLines)
	v.SetDefault("server.terminate_grace_seconds", cfg.Server.TerminateGraceSeconds)
	v.SetDefault("window.width", cfg.Window.Width)
	v.SetDefault("window.height", cfg.Window.Height)
	v.SetDefault("browser.exec_path", cfg.Browser.ExecPath)
	v.SetDefault("browser.flags", cfg.Browser.Flags)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.user_data_dir", cfg.Browser.UserDataDir)
	v.SetDefault("http.addr", cfg.HTTP.Addr)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.BufferMaxLines <= 0 || cfg.Server.BufferMaxLines > 1_000_000 {
		return fmt.Errorf("server.buffer_max_lines must be between 1 and 1000000")
	}
	if cfg.Server.TerminateGraceSeconds < 0 {
		return fmt.Errorf("server.terminate_grace_seconds must not be negative")
	}
	if cfg.Window.Width < 0 || cfg.Window.Height < 0 {
		return fmt.Errorf("window.width and window.height must not be negative")
	}
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("http.addr must be host:port: %w", err)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Browser.ExecPath = expandEnv(cfg.Browser.ExecPath)
	cfg.Browser.UserDataDir = expandEnv(cfg.Browser.UserDataDir)
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return expandEnv(path), nil
	}
	if env, ok := os.LookupEnv(EnvConfigPath); ok && env != "" {
		return expandEnv(env), nil
	}
	return DefaultConfigPath()
}

// expandEnv expands $VAR references and a leading ~/. Unknown variables
// are kept as written.
func expandEnv(value string) string {
	if value == "" {
		return value
	}
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = home + value[1:]
		}
	}
	return os.Expand(value, func(key string) string {
		if val, ok := os.LookupEnv(key); ok && key != "" {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to path (or the default location)
// and returns the path written. An existing file is kept unless overwrite
// is set.
func WriteDefault(path string, overwrite bool) (string, error) {
	path, err := resolvePath(path)
	if err != nil {
		return "", err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
