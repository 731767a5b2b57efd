package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/juno/internal/logx"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

var closeButtons = []string{"Cancel", "Close"}

// Shell opens notebooks in windows and supervises their servers.
type Shell struct {
	cfg       schema.ShellConfig
	display   Display
	pages     Pages
	settings  SettingsStore
	launcher  ProcessLauncher
	readiness ReadinessDetector
	sink      EventSink
	logger    pslog.Logger
	reg       *Registry

	done     chan struct{}
	doneOnce sync.Once
}

// NewShell constructs the shell and registers it as the display's
// certificate error handler.
func NewShell(cfg schema.ShellConfig, deps ShellDeps) (*Shell, error) {
	normalized, err := schema.NormalizeShellConfig(cfg)
	if err != nil {
		return nil, err
	}
	switch {
	case deps.Display == nil:
		return nil, errors.New("display is required")
	case deps.Pages == nil:
		return nil, errors.New("pages are required")
	case deps.Settings == nil:
		return nil, errors.New("settings store is required")
	case deps.Launcher == nil:
		return nil, errors.New("process launcher is required")
	}
	if deps.Readiness == nil {
		deps.Readiness = NewURLScraper()
	}
	if deps.EventSink == nil {
		deps.EventSink = nopSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &Shell{
		cfg:       normalized,
		display:   deps.Display,
		pages:     deps.Pages,
		settings:  deps.Settings,
		launcher:  deps.Launcher,
		readiness: deps.Readiness,
		sink:      deps.EventSink,
		logger:    logger,
		reg:       NewRegistry(deps.Display, normalized.BufferMaxLines, logger),
		done:      make(chan struct{}),
	}
	s.reg.onRemove = s.windowRemoved
	s.reg.onEmpty = s.quit
	deps.Display.HandleCertificateErrors(s)
	return s, nil
}

// Registry exposes the live window registry.
func (s *Shell) Registry() *Registry {
	return s.reg
}

// Done is closed once the last window has closed.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// OpenNotebook shows resource in a window, focusing an existing one or
// creating a new window and starting its server. Server start failures
// are reported through the diagnostic pane, not the returned error.
func (s *Shell) OpenNotebook(ctx context.Context, raw string) error {
	resource, err := ResolveResource(raw)
	if err != nil {
		s.logger.Warn("notebook resolve failed", "resource", raw, "err", err)
		return err
	}
	log := logx.WithResource(s.logger, resource)
	s.settings.UpdateSources(resource)

	// The connect dialog may own the request that got us here; close it
	// after this call has returned.
	defer func() {
		go s.CloseConnectDialog(s.baseContext())
	}()

	if s.reg.Focus(ctx, resource) {
		log.Debug("notebook focused")
		return nil
	}

	state, created, err := s.reg.Create(ctx, resource, resource.IsLocal(), func(state *WindowState) WindowOptions {
		opts := s.windowOptions(state, nil)
		if state.Local {
			opts.OnCloseRequest = func() bool {
				return s.confirmClose(state)
			}
		}
		return opts
	})
	if err != nil {
		log.Error("window create failed", "err", err)
		return fmt.Errorf("create window: %w", err)
	}
	if !created {
		s.reg.Focus(ctx, resource)
		return nil
	}
	log = logx.WithWindow(log, state.ID)
	log.Info("notebook window opened")
	s.emit(schema.WindowEvent{Type: schema.WindowOpened, WindowID: state.ID, Resource: resource})

	if state.Local {
		return s.Start(ctx, state.ID)
	}
	// The window stays open on a failed load and shows the browser's error page.
	if err := s.reg.surfaceOf(state).Load(ctx, string(resource)); err != nil {
		log.Warn("remote load failed", "err", err)
	}
	return nil
}

// OpenDialog lets the user pick a directory and opens it. Cancelling the
// picker is not an error.
func (s *Shell) OpenDialog(ctx context.Context, parent schema.WindowID) error {
	var surface Surface
	if parent != "" {
		if state := s.reg.Get(parent); state != nil {
			surface = s.reg.surfaceOf(state)
		}
	}
	path, ok, err := s.display.PickDirectory(ctx, surface)
	if err != nil {
		return fmt.Errorf("pick directory: %w", err)
	}
	if !ok {
		s.logger.Debug("directory picker cancelled")
		return nil
	}
	return s.OpenNotebook(ctx, path)
}

// WindowCommand returns the effective launch command of a local window.
func (s *Shell) WindowCommand(id schema.WindowID) (string, error) {
	state := s.reg.Get(id)
	if state == nil {
		return "", schema.ErrWindowNotFound
	}
	if !state.Local {
		return "", schema.ErrNotLocal
	}
	return s.effectiveCommand(state.Resource), nil
}

// Windows lists the live windows.
func (s *Shell) Windows() []schema.WindowInfo {
	states := s.reg.snapshot()
	out := make([]schema.WindowInfo, 0, len(states))
	for _, state := range states {
		info := schema.WindowInfo{ID: state.ID, Resource: state.Resource, Local: state.Local}
		s.reg.mu.Lock()
		if state.Server != nil {
			info.Running = true
			info.PID = state.Server.proc.PID()
		}
		s.reg.mu.Unlock()
		if state.Local {
			info.Command = s.effectiveCommand(state.Resource)
		}
		out = append(out, info)
	}
	return out
}

func (s *Shell) windowOptions(state *WindowState, next func(SurfaceEvent)) WindowOptions {
	settings := s.settings.WindowSettings(state.Resource)
	resource := state.Resource
	return WindowOptions{
		Title:  windowTitle(resource),
		Bounds: settings.Bounds,
		OnEvent: func(event SurfaceEvent) {
			if event.Type == SurfaceBounds {
				s.settings.UpdateWindowSettings(resource, schema.GeometryUpdate(event.Bounds))
			}
			if next != nil {
				next(event)
			}
		},
	}
}

func windowTitle(resource schema.Resource) string {
	if resource == schema.ConnectDialogResource {
		return "Juno"
	}
	return "Juno - " + string(resource)
}

func (s *Shell) confirmClose(state *WindowState) bool {
	s.reg.mu.Lock()
	bound := state.Server != nil
	surface := state.Surface
	s.reg.mu.Unlock()

	detail := "Closing the window will discard any unsaved changes."
	if bound {
		detail = "Closing the window will discard any unsaved changes and close the Jupyter server."
	}
	box := schema.MessageBox{
		Type:      schema.MessageBoxQuestion,
		Title:     "Close Window",
		Message:   "Close Window?",
		Detail:    detail,
		Buttons:   closeButtons,
		DefaultID: 1,
		CancelID:  0,
	}
	choice, err := s.display.MessageBox(s.baseContext(), surface, box)
	if err != nil {
		s.logger.Warn("close confirmation failed", "window", state.ID, "err", err)
		return true
	}
	return choice >= 0 && choice < len(box.Buttons) && box.Buttons[choice] == "Close"
}

// windowRemoved tears down the server binding and pane of a closed window.
func (s *Shell) windowRemoved(state *WindowState) {
	s.reg.mu.Lock()
	b := state.Server
	state.Server = nil
	pane := state.Pane
	state.Pane = nil
	s.reg.mu.Unlock()

	ctx := s.baseContext()
	log := logx.WithResource(logx.WithWindow(s.logger, state.ID), state.Resource)
	if b != nil {
		pid := b.proc.PID()
		if err := b.stop(); err != nil {
			log.Warn("server terminate failed", "pid", pid, "err", err)
		}
		log.Info("server stopped with window", "pid", pid)
		s.emit(schema.WindowEvent{Type: schema.ServerStopped, WindowID: state.ID, Resource: state.Resource, PID: pid})
	}
	if pane != nil && pane.surface != nil {
		if err := pane.surface.Destroy(ctx); err != nil {
			log.Debug("server pane destroy failed", "err", err)
		}
	}
	log.Info("window closed")
	s.emit(schema.WindowEvent{Type: schema.WindowClosed, WindowID: state.ID, Resource: state.Resource})
}

func (s *Shell) quit() {
	s.doneOnce.Do(func() {
		s.logger.Info("last window closed")
		close(s.done)
	})
}

func (s *Shell) emit(event schema.WindowEvent) {
	s.sink.OnWindowEvent(event)
}

func (s *Shell) baseContext() context.Context {
	return pslog.ContextWithLogger(context.Background(), s.logger)
}
