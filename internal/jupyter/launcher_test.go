package jupyter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"pkt.systems/juno/core"
	"pkt.systems/juno/schema"
)

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("JUNO_HELPER_MODE") {
	case "serve":
		wd, _ := os.Getwd()
		_, _ = fmt.Fprintf(os.Stdout, "cwd %s\n", wd)
		_, _ = fmt.Fprintln(os.Stderr, "[I ServerApp] http://localhost:8888/lab?token=abc")
		os.Exit(0)
	case "fail":
		_, _ = fmt.Fprintln(os.Stderr, "boom")
		os.Exit(3)
	case "sleep":
		_, _ = fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "longline":
		_, _ = os.Stdout.WriteString(strings.Repeat("x", longLineSize) + "\nafter-long-line\n")
		time.Sleep(100 * time.Millisecond)
		_, _ = os.Stdout.WriteString("still-alive\n")
		os.Exit(0)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
		_, _ = fmt.Fprintln(os.Stdout, "ready")
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}
	os.Exit(0)
}

const longLineSize = 1200 * 1024

func helperLauncher(mode string, grace time.Duration) *Launcher {
	return NewLauncher(Config{
		Env:            []string{"GO_WANT_HELPER_PROCESS=1", "JUNO_HELPER_MODE=" + mode},
		TerminateGrace: grace,
	})
}

func helperArgv() []string {
	return []string{os.Args[0], "-test.run=TestHelperProcess"}
}

func collect(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var out []string
	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, line)
		case <-timeout:
			t.Fatalf("timed out reading output, have %q", out)
		}
	}
}

func waitLine(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				t.Fatalf("stream closed before %q", want)
			}
			if line == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func waitExit(t *testing.T, proc core.Process) core.ExitStatus {
	t.Helper()
	done := make(chan core.ExitStatus, 1)
	go func() { done <- proc.Wait() }()
	select {
	case status := <-done:
		return status
	case <-time.After(10 * time.Second):
		t.Fatalf("process %d did not exit", proc.PID())
		return core.ExitStatus{}
	}
}

func TestLauncherStreamsOutputInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	proc, err := helperLauncher("serve", 0).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: dir})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stdout := collect(t, proc.Stdout())
	stderr := collect(t, proc.Stderr())
	status := waitExit(t, proc)
	if status.Code != 0 || status.Signal != "" {
		t.Fatalf("unexpected status %+v", status)
	}

	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	var sawCwd bool
	for _, line := range stdout {
		if strings.HasPrefix(line, "cwd ") {
			got, err := filepath.EvalSymlinks(strings.TrimSpace(strings.TrimPrefix(line, "cwd ")))
			if err != nil {
				t.Fatalf("eval symlinks: %v", err)
			}
			if got != want {
				t.Fatalf("expected cwd %q, got %q", want, got)
			}
			sawCwd = true
		}
	}
	if !sawCwd {
		t.Fatalf("expected cwd line, got %q", stdout)
	}
	var sawURL bool
	for _, line := range stderr {
		if line == "[I ServerApp] http://localhost:8888/lab?token=abc\n" {
			sawURL = true
		}
	}
	if !sawURL {
		t.Fatalf("expected url line with newline, got %q", stderr)
	}
}

func TestLauncherSplitsOverlongLines(t *testing.T) {
	proc, err := helperLauncher("longline", 0).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stdout := collect(t, proc.Stdout())
	collect(t, proc.Stderr())
	status := waitExit(t, proc)
	if status.Code != 0 || status.Signal != "" {
		t.Fatalf("expected clean exit, got %+v", status)
	}

	var long strings.Builder
	rest := stdout
	for len(rest) > 0 {
		chunk := rest[0]
		rest = rest[1:]
		if len(chunk) > maxLineChunk {
			t.Fatalf("chunk of %d bytes exceeds %d", len(chunk), maxLineChunk)
		}
		long.WriteString(chunk)
		if strings.HasSuffix(chunk, "\n") {
			break
		}
	}
	if got := long.String(); got != strings.Repeat("x", longLineSize)+"\n" {
		t.Fatalf("long line mangled: got %d bytes", len(got))
	}
	if len(rest) != 2 || rest[0] != "after-long-line\n" || rest[1] != "still-alive\n" {
		t.Fatalf("unexpected output after long line %q", rest)
	}
}

func TestLauncherReportsExitCode(t *testing.T) {
	proc, err := helperLauncher("fail", 0).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	collect(t, proc.Stdout())
	collect(t, proc.Stderr())
	if status := waitExit(t, proc); status.Code != 3 {
		t.Fatalf("expected exit code 3, got %+v", status)
	}
}

func TestLauncherSpawnErrors(t *testing.T) {
	launcher := NewLauncher(Config{})
	cases := []struct {
		name string
		req  core.LaunchRequest
		code string
	}{
		{"missing binary", core.LaunchRequest{Argv: []string{"juno-test-no-such-binary"}, Dir: t.TempDir()}, "ENOENT"},
		{"missing dir", core.LaunchRequest{Argv: helperArgv(), Dir: filepath.Join(t.TempDir(), "gone")}, "ENOENT"},
		{"empty argv", core.LaunchRequest{}, "EINVAL"},
	}
	for _, tc := range cases {
		_, err := launcher.Start(context.Background(), tc.req)
		var spawnErr *schema.SpawnError
		if !errors.As(err, &spawnErr) {
			t.Fatalf("%s: expected spawn error, got %v", tc.name, err)
		}
		if spawnErr.Code != tc.code {
			t.Fatalf("%s: expected %s, got %s (%v)", tc.name, tc.code, spawnErr.Code, err)
		}
	}
}

func TestLauncherSpawnErrorNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jupyter")
	if err := os.WriteFile(path, []byte("not a program"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewLauncher(Config{}).Start(context.Background(), core.LaunchRequest{Argv: []string{path}, Dir: t.TempDir()})
	var spawnErr *schema.SpawnError
	if !errors.As(err, &spawnErr) || spawnErr.Code != "EACCES" {
		t.Fatalf("expected EACCES spawn error, got %v", err)
	}
}

func TestTerminateStopsProcessGroup(t *testing.T) {
	proc, err := helperLauncher("sleep", time.Minute).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitLine(t, proc.Stdout(), "ready\n")
	if err := proc.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := proc.Terminate(); err != nil {
		t.Fatalf("second terminate: %v", err)
	}
	status := waitExit(t, proc)
	if status.Signal != "SIGTERM" {
		t.Fatalf("expected SIGTERM, got %+v", status)
	}
}

func TestTerminateKillsAfterGrace(t *testing.T) {
	proc, err := helperLauncher("stubborn", 100*time.Millisecond).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitLine(t, proc.Stdout(), "ready\n")
	if err := proc.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	status := waitExit(t, proc)
	if status.Signal != "SIGKILL" {
		t.Fatalf("expected SIGKILL, got %+v", status)
	}
}

func TestTerminateAfterExitIsNoop(t *testing.T) {
	proc, err := helperLauncher("fail", 0).Start(context.Background(), core.LaunchRequest{Argv: helperArgv(), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitExit(t, proc)
	if err := proc.Terminate(); err != nil {
		t.Fatalf("terminate after exit: %v", err)
	}
}
