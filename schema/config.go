package schema

import (
	"errors"
	"strings"
	"time"
)

// ShellConfig defines defaults and limits for the notebook shell.
type ShellConfig struct {
	DefaultCommand string
	BufferMaxLines int
	WindowWidth    int
	WindowHeight   int
	PaneWidth      int
	PaneHeight     int
	TerminateGrace time.Duration
}

const (
	// DefaultLaunchCommand starts a JupyterLab server without opening a browser.
	DefaultLaunchCommand = "jupyter lab --no-browser"
	// DefaultBufferMaxLines is the per-window output buffer limit.
	DefaultBufferMaxLines = 1000
	// DefaultWindowWidth is used when no geometry was saved for a resource.
	DefaultWindowWidth = 800
	// DefaultWindowHeight is used when no geometry was saved for a resource.
	DefaultWindowHeight = 600
	// DefaultTerminateGrace is how long a server gets between SIGTERM and SIGKILL.
	DefaultTerminateGrace = 5 * time.Second
)

// Diagnostic pane titles.
const (
	PaneTitleFailedToStart = "Server Failed to Start"
	PaneTitleDied          = "Server Died"
)

// NormalizeShellConfig applies defaults and validates the config.
func NormalizeShellConfig(cfg ShellConfig) (ShellConfig, error) {
	cfg.DefaultCommand = strings.TrimSpace(cfg.DefaultCommand)
	if cfg.DefaultCommand == "" {
		cfg.DefaultCommand = DefaultLaunchCommand
	}
	if cfg.BufferMaxLines <= 0 {
		cfg.BufferMaxLines = DefaultBufferMaxLines
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = DefaultWindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = DefaultWindowHeight
	}
	if cfg.PaneWidth <= 0 {
		cfg.PaneWidth = DefaultWindowWidth
	}
	if cfg.PaneHeight <= 0 {
		cfg.PaneHeight = DefaultWindowHeight
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = DefaultTerminateGrace
	}
	if cfg.BufferMaxLines > 1_000_000 {
		return ShellConfig{}, errors.New("buffer max lines must not exceed 1000000")
	}
	return cfg, nil
}
