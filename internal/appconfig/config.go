package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/juno/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Server        ServerConfig  `mapstructure:"server" yaml:"server"`
	Window        WindowConfig  `mapstructure:"window" yaml:"window"`
	Browser       BrowserConfig `mapstructure:"browser" yaml:"browser"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServerConfig controls notebook server supervision.
type ServerConfig struct {
	DefaultCommand        string `mapstructure:"default_command" yaml:"default_command"`
	BufferMaxLines        int    `mapstructure:"buffer_max_lines" yaml:"buffer_max_lines"`
	TerminateGraceSeconds int    `mapstructure:"terminate_grace_seconds" yaml:"terminate_grace_seconds"`
}

// WindowConfig sets the size of windows without saved geometry.
type WindowConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig selects and configures the Chrome/Chromium binary.
type BrowserConfig struct {
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// Flags are extra switches, "name" or "name=value", without dashes.
	Flags       []string `mapstructure:"flags" yaml:"flags"`
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
}

// HTTPConfig configures the loopback front-end server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".juno", "state"),
		Server: ServerConfig{
			DefaultCommand:        schema.DefaultLaunchCommand,
			BufferMaxLines:        schema.DefaultBufferMaxLines,
			TerminateGraceSeconds: int(schema.DefaultTerminateGrace / time.Second),
		},
		Window: WindowConfig{
			Width:  schema.DefaultWindowWidth,
			Height: schema.DefaultWindowHeight,
		},
		Browser: BrowserConfig{
			ExecPath:    "",
			Flags:       []string{},
			Headless:    false,
			UserDataDir: filepath.Join(home, ".juno", "browser"),
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:0",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".juno", "config.yaml"), nil
}

// ShellConfig converts the config into the shell's limits and defaults.
func (c Config) ShellConfig() schema.ShellConfig {
	return schema.ShellConfig{
		DefaultCommand: c.Server.DefaultCommand,
		BufferMaxLines: c.Server.BufferMaxLines,
		WindowWidth:    c.Window.Width,
		WindowHeight:   c.Window.Height,
		TerminateGrace: time.Duration(c.Server.TerminateGraceSeconds) * time.Second,
	}
}

// FlagMap turns the configured browser flags into switch values.
func (b BrowserConfig) FlagMap() map[string]any {
	out := make(map[string]any, len(b.Flags))
	for _, flag := range b.Flags {
		flag = strings.TrimLeft(strings.TrimSpace(flag), "-")
		if flag == "" {
			continue
		}
		name, value, ok := strings.Cut(flag, "=")
		if !ok {
			out[name] = true
			continue
		}
		out[name] = value
	}
	return out
}
