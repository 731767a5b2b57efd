// Package jupyter starts notebook server processes for the shell.
package jupyter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/juno/core"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// Config controls how server processes are started and stopped.
type Config struct {
	// Env is appended to the inherited environment.
	Env            []string
	TerminateGrace time.Duration
	Logger         pslog.Logger
}

// Launcher implements core.ProcessLauncher with os/exec. Each server runs
// in its own process group so terminating it also stops its children.
type Launcher struct {
	cfg Config
}

// NewLauncher constructs a launcher.
func NewLauncher(cfg Config) *Launcher {
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = schema.DefaultTerminateGrace
	}
	if cfg.Logger == nil {
		cfg.Logger = pslog.Ctx(context.Background())
	}
	return &Launcher{cfg: cfg}
}

// Start spawns req.Argv in req.Dir. The process outlives ctx; stop it with
// Terminate.
func (l *Launcher) Start(ctx context.Context, req core.LaunchRequest) (core.Process, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return nil, schema.NewSpawnError("EINVAL", schema.ErrEmptyCommand)
	}
	_ = ctx
	log := l.cfg.Logger

	cmd := exec.Command(req.Argv[0], req.Argv[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), l.cfg.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, schema.NewSpawnError(errnoName(err), fmt.Errorf("stdout pipe: %w", err))
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, schema.NewSpawnError(errnoName(err), fmt.Errorf("stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if startErr != nil {
		_ = stdoutR.Close()
		_ = stderrR.Close()
		log.Warn("server spawn failed", "argv", req.Argv, "dir", req.Dir, "err", startErr)
		return nil, schema.NewSpawnError(errnoName(startErr), startErr)
	}

	p := &process{
		cmd:     cmd,
		stdout:  newLineStream(stdoutR, log.With("stream", schema.StreamStdout)),
		stderr:  newLineStream(stderrR, log.With("stream", schema.StreamStderr)),
		done:    make(chan struct{}),
		grace:   l.cfg.TerminateGrace,
		log:     log.With("pid", cmd.Process.Pid),
		started: time.Now(),
	}
	go p.wait()
	p.log.Debug("server process spawned", "argv", req.Argv, "dir", req.Dir)
	return p, nil
}

func errnoName(err error) string {
	var errno syscall.Errno
	switch {
	case errors.Is(err, exec.ErrNotFound):
		return "ENOENT"
	case errors.As(err, &errno):
		if name := unix.ErrnoName(errno); name != "" {
			return name
		}
		return fmt.Sprintf("errno %d", int(errno))
	default:
		return "UNKNOWN"
	}
}

type process struct {
	cmd     *exec.Cmd
	stdout  *lineStream
	stderr  *lineStream
	done    chan struct{}
	status  core.ExitStatus
	grace   time.Duration
	log     pslog.Logger
	started time.Time

	termMu     sync.Mutex
	terminated bool
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Stdout() <-chan string {
	return p.stdout.lines
}

func (p *process) Stderr() <-chan string {
	return p.stderr.lines
}

func (p *process) wait() {
	err := p.cmd.Wait()
	p.status = exitStatus(err)
	fields := []any{
		"exit_code", p.status.Code,
		"duration_ms", time.Since(p.started).Milliseconds(),
	}
	if p.status.Signal != "" {
		fields = append(fields, "signal", p.status.Signal)
	}
	if p.status.Err != nil {
		fields = append(fields, "err", p.status.Err)
	}
	p.log.Info("server process finished", fields...)
	close(p.done)
}

// Wait blocks until the process has exited. Output streams may still be
// delivering buffered lines.
func (p *process) Wait() core.ExitStatus {
	<-p.done
	return p.status
}

// Terminate sends SIGTERM to the process group and SIGKILL once the grace
// period has passed without an exit. It does not wait for the exit.
func (p *process) Terminate() error {
	p.termMu.Lock()
	defer p.termMu.Unlock()
	if p.terminated {
		return nil
	}
	select {
	case <-p.done:
		p.terminated = true
		return nil
	default:
	}
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			p.terminated = true
			return nil
		}
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	p.terminated = true
	p.log.Debug("server process group signalled", "signal", "SIGTERM")
	go func() {
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			p.log.Warn("server process ignored SIGTERM, killing", "grace", p.grace)
			if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				p.log.Warn("server process kill failed", "err", err)
			}
		}
	}()
	return nil
}

func exitStatus(err error) core.ExitStatus {
	if err == nil {
		return core.ExitStatus{}
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return core.ExitStatus{Code: -1, Err: err}
	}
	status := core.ExitStatus{Code: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = unix.SignalName(ws.Signal())
	}
	return status
}
