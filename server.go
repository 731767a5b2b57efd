package juno

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"pkt.systems/juno/core"
	"pkt.systems/juno/httpapi"
	"pkt.systems/juno/internal/chromeui"
	"pkt.systems/juno/internal/eventbus"
	"pkt.systems/juno/internal/jupyter"
	"pkt.systems/juno/internal/settings"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// App composes the front-end server, the browser display and the shell.
type App interface {
	Start(ctx context.Context) error
	// Open opens resource, or the connect dialog when it is empty.
	Open(ctx context.Context, resource string) error
	// Sources returns the recently opened resources.
	Sources() []string
	Wait() error
	Stop(ctx context.Context) error
}

// AppConfig configures the compositor.
type AppConfig struct {
	Shell    schema.ShellConfig
	StateDir string
	HTTP     httpapi.Config
	Browser  BrowserConfig
}

// BrowserConfig selects the browser used as display.
type BrowserConfig struct {
	ExecPath    string
	UserDataDir string
	Headless    bool
	Flags       map[string]any
}

// Display is a core.Display with a lifetime.
type Display interface {
	core.Display
	Close()
	// Done is closed when the display goes away.
	Done() <-chan struct{}
}

// DisplayParams carries the front-end collaborators a display needs.
type DisplayParams struct {
	BaseURL string
	Hub     *httpapi.Hub
	Dialogs *httpapi.DialogBroker
	Pages   httpapi.Pages
	Logger  pslog.Logger
}

// DisplayFactory starts a display once the front-end server listens.
type DisplayFactory func(ctx context.Context, params DisplayParams) (Display, error)

// AppDeps captures optional collaborators. Nil fields get the production
// implementation.
type AppDeps struct {
	NewDisplay DisplayFactory
	Launcher   core.ProcessLauncher
	Readiness  core.ReadinessDetector
	// EventSink receives window events next to the internal event bus.
	EventSink core.EventSink
	Logger    pslog.Logger
}

// ChromeDisplay returns a DisplayFactory backed by chromeui.
func ChromeDisplay(cfg BrowserConfig) DisplayFactory {
	return func(ctx context.Context, params DisplayParams) (Display, error) {
		display, err := chromeui.New(ctx, chromeui.Options{
			ExecPath:    cfg.ExecPath,
			UserDataDir: cfg.UserDataDir,
			Headless:    cfg.Headless,
			Flags:       cfg.Flags,
			AppBaseURL:  params.BaseURL,
			Hub:         params.Hub,
			Dialogs:     params.Dialogs,
			Pages:       params.Pages,
			Logger:      params.Logger,
		})
		if err != nil {
			return nil, err
		}
		return display, nil
	}
}

// New constructs the application. Nothing is started until Start.
func New(cfg AppConfig, deps AppDeps) (App, error) {
	normalized, err := schema.NormalizeShellConfig(cfg.Shell)
	if err != nil {
		return nil, err
	}
	cfg.Shell = normalized
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, errors.New("state directory is required")
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = httpapi.DefaultAddr
	}
	if deps.NewDisplay == nil {
		deps.NewDisplay = ChromeDisplay(cfg.Browser)
	}
	return &app{cfg: cfg, deps: deps}, nil
}

type app struct {
	cfg  AppConfig
	deps AppDeps

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	errCh    chan error
	started  bool
	logger   pslog.Logger
	store    *settings.Store
	display  Display
	shell    *core.Shell
	baseURL  string
	stopOnce sync.Once
	stopErr  error
}

func (a *app) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		pslog.Ctx(ctx).Warn("app start rejected", "reason", "already started")
		return errors.New("app already started")
	}
	logger := a.deps.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	runCtx, cancel := context.WithCancel(pslog.ContextWithLogger(ctx, logger))

	store, err := settings.Open(settings.Options{
		Dir:            a.cfg.StateDir,
		DefaultCommand: a.cfg.Shell.DefaultCommand,
		WindowWidth:    a.cfg.Shell.WindowWidth,
		WindowHeight:   a.cfg.Shell.WindowHeight,
		Logger:         logger,
	})
	if err != nil {
		cancel()
		return err
	}

	historySize := a.cfg.HTTP.HistorySize
	if historySize <= 0 {
		historySize = a.cfg.Shell.BufferMaxLines + 64
	}
	hub := httpapi.NewHub(historySize, logger)
	dialogs := httpapi.NewDialogBroker()
	bus := eventbus.New(logger)
	httpSrv := httpapi.NewServer(a.cfg.HTTP, nil, hub, dialogs, bus)
	httpSrv.SetBaseContext(runCtx)
	defaultCommand := a.cfg.Shell.DefaultCommand
	httpSrv.SetConda(func(ctx context.Context, env string) (string, error) {
		return jupyter.CondaCommand(ctx, env, defaultCommand)
	})

	ln, err := httpapi.Listen(a.cfg.HTTP.Addr)
	if err != nil {
		_ = store.Close()
		cancel()
		return err
	}
	baseURL := httpapi.BaseURL(ln)
	pages := httpapi.NewPages(baseURL)

	display, err := a.deps.NewDisplay(runCtx, DisplayParams{
		BaseURL: baseURL,
		Hub:     hub,
		Dialogs: dialogs,
		Pages:   pages,
		Logger:  logger,
	})
	if err != nil {
		cancel()
		_ = ln.Close()
		_ = store.Close()
		return err
	}

	launcher := a.deps.Launcher
	if launcher == nil {
		launcher = jupyter.NewLauncher(jupyter.Config{
			TerminateGrace: a.cfg.Shell.TerminateGrace,
			Logger:         logger,
		})
	}
	sinks := []core.EventSink{bus}
	if a.deps.EventSink != nil {
		sinks = append(sinks, a.deps.EventSink)
	}
	var sink core.EventSink = bus
	if len(sinks) > 1 {
		sink = eventFanout{sinks: sinks}
	}
	shell, err := core.NewShell(a.cfg.Shell, core.ShellDeps{
		Display:   display,
		Pages:     pages,
		Settings:  store,
		Launcher:  launcher,
		Readiness: a.deps.Readiness,
		EventSink: sink,
		Logger:    logger,
	})
	if err != nil {
		display.Close()
		_ = ln.Close()
		cancel()
		_ = store.Close()
		return err
	}
	httpSrv.SetShell(shell)
	errCh := make(chan error, 2)
	go a.serve(runCtx, ln, httpSrv, errCh, logger)

	a.ctx = runCtx
	a.cancel = cancel
	a.errCh = errCh
	a.started = true
	a.logger = logger
	a.store = store
	a.display = display
	a.shell = shell
	a.baseURL = baseURL
	logger.Info("app start", "base_url", baseURL, "state_dir", a.cfg.StateDir)
	return nil
}

func (a *app) serve(ctx context.Context, ln net.Listener, srv *httpapi.Server, errCh chan<- error, log pslog.Logger) {
	if err := httpapi.Serve(ctx, ln, srv.Handler()); err != nil {
		log.Error("http server failed", "err", err)
		errCh <- err
	}
}

func (a *app) Open(ctx context.Context, resource string) error {
	a.mu.Lock()
	shell := a.shell
	a.mu.Unlock()
	if shell == nil {
		return errors.New("app not started")
	}
	if strings.TrimSpace(resource) == "" {
		return shell.OpenConnectDialog(ctx)
	}
	return shell.OpenNotebook(ctx, resource)
}

func (a *app) Sources() []string {
	a.mu.Lock()
	store := a.store
	a.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Sources()
}

// Wait blocks until the last window closed, the display went away, the
// front-end server failed or the start context ended, then stops the app.
func (a *app) Wait() error {
	a.mu.Lock()
	ctx := a.ctx
	errCh := a.errCh
	started := a.started
	shell := a.shell
	display := a.display
	a.mu.Unlock()
	if !started {
		return errors.New("app not started")
	}

	var waitErr error
	select {
	case <-ctx.Done():
	case <-shell.Done():
	case <-display.Done():
		pslog.Ctx(ctx).Warn("display closed")
	case err := <-errCh:
		waitErr = err
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Shell.TerminateGrace+5*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil && waitErr == nil {
		waitErr = err
	}
	return waitErr
}

// Stop terminates every server, closes the display and flushes settings.
func (a *app) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.mu.Unlock()
	if !started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	a.stopOnce.Do(func() {
		log := a.logger
		log.Info("app stop requested")
		var errs []error
		if err := a.shell.Shutdown(ctx); err != nil {
			log.Warn("server shutdown failed", "err", err)
			errs = append(errs, err)
		}
		a.display.Close()
		if err := a.store.Close(); err != nil {
			log.Warn("settings close failed", "err", err)
			errs = append(errs, err)
		}
		a.cancel()
		a.stopErr = errors.Join(errs...)
		log.Info("app stopped")
	})
	return a.stopErr
}
