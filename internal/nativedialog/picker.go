// Package nativedialog shows the platform's folder chooser by running the
// desktop's dialog tool (zenity or kdialog on Linux, osascript on macOS).
package nativedialog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"pkt.systems/pslog"
)

// ErrUnavailable reports that no dialog tool is installed.
var ErrUnavailable = errors.New("no native directory picker available")

var (
	lookPath = exec.LookPath
	goos     = runtime.GOOS
)

type tool struct {
	name string
	args func(title string) []string
	// cancelled reports whether a failed run was the user dismissing the dialog.
	cancelled func(exitCode int, stderr string) bool
}

var linuxTools = []tool{
	{
		name: "zenity",
		args: func(title string) []string {
			return []string{"--file-selection", "--directory", "--title=" + title}
		},
		cancelled: func(code int, _ string) bool { return code == 1 },
	},
	{
		name: "kdialog",
		args: func(title string) []string {
			return []string{"--getexistingdirectory", ".", "--title", title}
		},
		cancelled: func(code int, _ string) bool { return code == 1 },
	},
}

var darwinTools = []tool{
	{
		name: "osascript",
		args: func(title string) []string {
			script := fmt.Sprintf("POSIX path of (choose folder with prompt %q)", title)
			return []string{"-e", script}
		},
		cancelled: func(code int, stderr string) bool {
			return code == 1 && strings.Contains(stderr, "-128")
		},
	},
}

// PickDirectory asks the user for a directory. ok is false when the user
// cancelled.
func PickDirectory(ctx context.Context, title string) (path string, ok bool, err error) {
	tools := linuxTools
	if goos == "darwin" {
		tools = darwinTools
	}
	log := pslog.Ctx(ctx)
	for _, t := range tools {
		bin, err := lookPath(t.name)
		if err != nil {
			continue
		}
		log.Debug("directory picker start", "tool", t.name)
		return run(ctx, bin, t, title)
	}
	return "", false, ErrUnavailable
}

func run(ctx context.Context, bin string, t tool, title string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, bin, t.args(title)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && t.cancelled(exitErr.ExitCode(), stderr.String()) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%s: %w: %s", t.name, err, strings.TrimSpace(stderr.String()))
	}
	path := strings.TrimRight(stdout.String(), "\r\n")
	if path == "" {
		return "", false, nil
	}
	return path, true, nil
}
