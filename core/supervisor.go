package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/juno/internal/cmdline"
	"pkt.systems/juno/internal/logx"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// streamDrainTimeout bounds how long output is still read after the process exited.
var streamDrainTimeout = 2 * time.Second

// binding ties a server process to a window. Cancelling ctx unsubscribes
// the exit handler; terminate runs at most once.
type binding struct {
	proc     Process
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

func newBinding(proc Process) *binding {
	ctx, cancel := context.WithCancel(context.Background())
	return &binding{proc: proc, ctx: ctx, cancel: cancel}
}

func (b *binding) unsubscribe() {
	b.cancel()
}

func (b *binding) subscribed() bool {
	return b.ctx.Err() == nil
}

// stop unsubscribes the exit handler before terminating the process.
func (b *binding) stop() error {
	b.unsubscribe()
	b.stopOnce.Do(func() {
		b.stopErr = b.proc.Terminate()
	})
	return b.stopErr
}

// Start spawns the server process for a local window. Spawn failures are
// reported through the diagnostic pane and do not fail the call.
func (s *Shell) Start(ctx context.Context, id schema.WindowID) error {
	s.reg.mu.Lock()
	state := s.reg.windows[id]
	switch {
	case state == nil || state.closed:
		s.reg.mu.Unlock()
		return schema.ErrWindowNotFound
	case !state.Local:
		s.reg.mu.Unlock()
		return schema.ErrNotLocal
	case state.Server != nil || state.starting:
		s.reg.mu.Unlock()
		return schema.ErrServerRunning
	}
	state.starting = true
	state.Buffer.Reset()
	s.reg.mu.Unlock()

	log := logx.WithResource(logx.WithWindow(s.logger, id), state.Resource)
	command := s.effectiveCommand(state.Resource)
	argv, err := cmdline.Split(command)
	if err != nil {
		s.spawnFailed(ctx, state, schema.NewSpawnError("EINVAL", err))
		return nil
	}
	log.Info("server starting", "cmd", command)
	proc, err := s.launcher.Start(ctx, LaunchRequest{Argv: argv, Dir: string(state.Resource)})
	if err != nil {
		s.spawnFailed(ctx, state, err)
		return nil
	}

	b := newBinding(proc)
	s.reg.mu.Lock()
	state.starting = false
	if state.closed {
		s.reg.mu.Unlock()
		log.Info("window closed during server start", "pid", proc.PID())
		if err := b.stop(); err != nil {
			log.Warn("server terminate failed", "pid", proc.PID(), "err", err)
		}
		return schema.ErrWindowNotFound
	}
	state.Server = b
	s.reg.mu.Unlock()

	log.Info("server started", "pid", proc.PID())
	s.emit(schema.WindowEvent{Type: schema.ServerStarted, WindowID: id, Resource: state.Resource, PID: proc.PID()})
	go s.watch(state, b, log)
	return nil
}

// Restart stores command as the resource's launch command and replaces the
// running server, if any, with a fresh one. The old process's exit does
// not open the diagnostic pane.
func (s *Shell) Restart(ctx context.Context, id schema.WindowID, command string) error {
	state := s.reg.Get(id)
	if state == nil {
		return schema.ErrWindowNotFound
	}
	if !state.Local {
		return schema.ErrNotLocal
	}
	command = strings.TrimSpace(command)
	s.settings.UpdateWindowSettings(state.Resource, schema.CommandUpdate(command))

	s.reg.mu.Lock()
	b := state.Server
	state.Server = nil
	s.reg.mu.Unlock()

	log := logx.WithResource(logx.WithWindow(s.logger, id), state.Resource)
	if b != nil {
		pid := b.proc.PID()
		if err := b.stop(); err != nil {
			log.Warn("server terminate failed", "pid", pid, "err", err)
		}
		log.Info("server stopped for restart", "pid", pid)
		s.emit(schema.WindowEvent{Type: schema.ServerStopped, WindowID: id, Resource: state.Resource, PID: pid})
	}
	return s.Start(ctx, id)
}

// OpenPane shows the diagnostic pane of a window with the given title,
// creating it when none is open. A new pane receives the whole output
// buffer once it has loaded.
func (s *Shell) OpenPane(ctx context.Context, id schema.WindowID, title string) error {
	s.reg.mu.Lock()
	state := s.reg.windows[id]
	if state == nil || state.closed {
		s.reg.mu.Unlock()
		return schema.ErrWindowNotFound
	}
	if pane := state.Pane; pane != nil {
		pane.title = title
		surface := pane.surface
		if pane.ready && surface != nil {
			surface.Send(schema.Message{Type: schema.MessageSetTitle, Title: title})
		}
		s.reg.mu.Unlock()
		if surface != nil {
			if err := surface.Show(ctx); err != nil {
				return fmt.Errorf("show server pane: %w", err)
			}
		}
		return nil
	}
	pane := &paneState{title: title}
	state.Pane = pane
	parent := state.Surface
	s.reg.mu.Unlock()

	surface, err := s.display.CreateWindow(ctx, WindowOptions{
		Title:  title,
		Bounds: schema.Bounds{Width: s.cfg.PaneWidth, Height: s.cfg.PaneHeight},
		Parent: parent,
		Modal:  true,
		Hidden: true,
		OnEvent: func(event SurfaceEvent) {
			switch event.Type {
			case SurfaceLoaded:
				s.paneReady(state, pane)
			case SurfaceClosed:
				s.paneClosed(state, pane)
			}
		},
	})
	if err != nil {
		s.paneClosed(state, pane)
		return fmt.Errorf("open server pane: %w", err)
	}

	s.reg.mu.Lock()
	pane.surface = surface
	gone := state.closed || state.Pane != pane
	s.reg.mu.Unlock()
	if gone {
		return surface.Destroy(ctx)
	}
	if err := surface.Load(ctx, s.pages.ServerPane(id, surface.ID())); err != nil {
		return fmt.Errorf("load server pane: %w", err)
	}
	return nil
}

func (s *Shell) paneReady(state *WindowState, pane *paneState) {
	s.reg.mu.Lock()
	if state.Pane != pane || pane.ready || pane.surface == nil {
		s.reg.mu.Unlock()
		return
	}
	pane.ready = true
	surface := pane.surface
	if pane.title != "" {
		surface.Send(schema.Message{Type: schema.MessageSetTitle, Title: pane.title})
	}
	for _, line := range state.Buffer.Lines() {
		surface.Send(schema.Message{Type: schema.MessageOutputLine, Line: line})
	}
	s.reg.mu.Unlock()
	if err := surface.Show(s.baseContext()); err != nil {
		s.logger.Warn("server pane show failed", "window", state.ID, "err", err)
	}
}

func (s *Shell) paneClosed(state *WindowState, pane *paneState) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()
	if state.Pane == pane {
		state.Pane = nil
	}
}

// appendOutputLocked buffers a chunk and forwards it to a ready pane.
// Callers hold the registry lock.
func (s *Shell) appendOutputLocked(state *WindowState, chunk string) {
	state.Buffer.Append(chunk)
	if pane := state.Pane; pane != nil && pane.ready && pane.surface != nil {
		pane.surface.Send(schema.Message{Type: schema.MessageOutputLine, Line: chunk})
	}
}

func (s *Shell) spawnFailed(ctx context.Context, state *WindowState, err error) {
	line := fmt.Sprintf("Error spawning server process: %s\n  %s\n", spawnErrorCode(err), err.Error())
	s.reg.mu.Lock()
	state.starting = false
	state.Server = nil
	closed := state.closed
	s.appendOutputLocked(state, line)
	s.reg.mu.Unlock()

	log := logx.WithResource(logx.WithWindow(s.logger, state.ID), state.Resource)
	log.Warn("server spawn failed", "err", err)
	s.emit(schema.WindowEvent{Type: schema.ServerFailed, WindowID: state.ID, Resource: state.Resource, Error: err.Error()})
	if closed {
		return
	}
	if err := s.OpenPane(ctx, state.ID, schema.PaneTitleFailedToStart); err != nil {
		log.Warn("server pane open failed", "err", err)
	}
}

func spawnErrorCode(err error) string {
	var spawnErr *schema.SpawnError
	if errors.As(err, &spawnErr) && spawnErr.Code != "" {
		return spawnErr.Code
	}
	return "UNKNOWN"
}

// watch consumes both output streams until they close, then reacts to the
// process exit.
func (s *Shell) watch(state *WindowState, b *binding, log pslog.Logger) {
	probe := s.readiness.NewProbe()
	stdout := b.proc.Stdout()
	stderr := b.proc.Stderr()
	exited := make(chan ExitStatus, 1)
	go func() {
		exited <- b.proc.Wait()
	}()

	var (
		status    ExitStatus
		gotStatus bool
		drain     <-chan time.Time
	)
	for stdout != nil || stderr != nil {
		select {
		case chunk, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			s.output(state, b, probe, schema.StreamStdout, chunk, log)
		case chunk, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			s.output(state, b, probe, schema.StreamStderr, chunk, log)
		case status = <-exited:
			gotStatus = true
			exited = nil
			drain = time.After(streamDrainTimeout)
		case <-drain:
			log.Debug("server output still open after exit", "pid", b.proc.PID())
			// Grandchildren may hold the pipes open; keep the readers unblocked.
			go discard(stdout)
			go discard(stderr)
			stdout, stderr = nil, nil
		}
	}
	if !gotStatus {
		status = <-exited
	}
	s.exited(state, b, status, log)
}

func (s *Shell) output(state *WindowState, b *binding, probe ReadinessProbe, stream schema.StreamKind, chunk string, log pslog.Logger) {
	s.reg.mu.Lock()
	if state.Server != b {
		s.reg.mu.Unlock()
		return
	}
	s.appendOutputLocked(state, chunk)
	surface := state.Surface
	s.reg.mu.Unlock()
	log.Trace("server output", "stream", stream, "chunk", chunk)

	url, ok := probe.Observe(stream, chunk)
	if !ok || surface == nil {
		return
	}
	log.Info("server ready", "url", url)
	s.emit(schema.WindowEvent{Type: schema.ServerReady, WindowID: state.ID, Resource: state.Resource, PID: b.proc.PID(), URL: url})
	// Loading waits for the page; keep draining output meanwhile.
	go func() {
		if err := surface.Load(s.baseContext(), url); err != nil {
			log.Warn("server url load failed", "url", url, "err", err)
		}
	}()
}

func (s *Shell) exited(state *WindowState, b *binding, status ExitStatus, log pslog.Logger) {
	event := schema.WindowEvent{
		WindowID: state.ID,
		Resource: state.Resource,
		PID:      b.proc.PID(),
		ExitCode: status.Code,
		Signal:   status.Signal,
	}
	if status.Err != nil {
		event.Error = status.Err.Error()
	}
	if !b.subscribed() {
		log.Debug("server exited after stop", "pid", event.PID, "code", status.Code, "signal", status.Signal)
		return
	}
	s.reg.mu.Lock()
	if state.Server != b || state.closed {
		s.reg.mu.Unlock()
		return
	}
	state.Server = nil
	s.reg.mu.Unlock()
	b.unsubscribe()

	log.Warn("server process ended", "pid", event.PID, "code", status.Code, "signal", status.Signal)
	event.Type = schema.ServerExited
	s.emit(event)
	if err := s.OpenPane(s.baseContext(), state.ID, schema.PaneTitleDied); err != nil {
		log.Warn("server pane open failed", "err", err)
	}
}

// Shutdown terminates every running server without opening diagnostic panes.
func (s *Shell) Shutdown(ctx context.Context) error {
	var errs []error
	for _, state := range s.reg.snapshot() {
		s.reg.mu.Lock()
		b := state.Server
		state.Server = nil
		s.reg.mu.Unlock()
		if b == nil {
			continue
		}
		pid := b.proc.PID()
		if err := b.stop(); err != nil {
			errs = append(errs, fmt.Errorf("terminate server %d: %w", pid, err))
			continue
		}
		logx.WithWindowState(ctx, state.ID, state.Resource).Info("server stopped", "pid", pid)
		s.emit(schema.WindowEvent{Type: schema.ServerStopped, WindowID: state.ID, Resource: state.Resource, PID: pid})
	}
	return errors.Join(errs...)
}

func (s *Shell) effectiveCommand(resource schema.Resource) string {
	command := strings.TrimSpace(s.settings.WindowSettings(resource).Cmd)
	if command == "" {
		command = s.cfg.DefaultCommand
	}
	return command
}

func discard(ch <-chan string) {
	if ch == nil {
		return
	}
	for range ch {
	}
}
