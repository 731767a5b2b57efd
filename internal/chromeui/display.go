// Package chromeui implements the shell's display on top of a Chrome or
// Chromium browser driven over the DevTools protocol. Every surface is a
// browser window of its own.
package chromeui

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"pkt.systems/juno/core"
	"pkt.systems/juno/httpapi"
	"pkt.systems/juno/internal/nativedialog"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

const (
	dialogWidth           = 480
	dialogHeight          = 240
	defaultBoundsInterval = time.Second
	pickerTitle           = "Open Notebook Directory"
)

// PickFunc shows a directory chooser.
type PickFunc func(ctx context.Context, title string) (string, bool, error)

// Options configure the browser and its collaborators.
type Options struct {
	// ExecPath is the browser binary. Empty lets chromedp search for one.
	ExecPath    string
	UserDataDir string
	Headless    bool
	// Flags are extra command line switches, name without leading dashes.
	Flags map[string]any

	// AppBaseURL is the front-end server URL. Pages under it report loaded
	// once their event stream connects.
	AppBaseURL string
	Hub        *httpapi.Hub
	Dialogs    *httpapi.DialogBroker
	Pages      httpapi.Pages

	Picker         PickFunc
	BoundsInterval time.Duration
	// RootCAs overrides the system roots used to probe https resources.
	RootCAs *x509.CertPool
	Logger  pslog.Logger
}

// Display is a core.Display backed by one browser process.
type Display struct {
	opts Options
	log  pslog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	surfaces map[schema.SurfaceID]*surface
	certs    core.CertificateHandler
	closed   bool
}

// New starts the browser.
func New(ctx context.Context, opts Options) (*Display, error) {
	if opts.Hub == nil || opts.Dialogs == nil {
		return nil, errors.New("chromeui: hub and dialog broker are required")
	}
	if opts.Picker == nil {
		opts.Picker = nativedialog.PickDirectory
	}
	if opts.BoundsInterval <= 0 {
		opts.BoundsInterval = defaultBoundsInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("hide-scrollbars", false),
		chromedp.Flag("mute-audio", false),
		chromedp.Flag("disable-features", "Translate"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	for name, value := range opts.Flags {
		allocOpts = append(allocOpts, chromedp.Flag(strings.TrimLeft(name, "-"), value))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Warn("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	d := &Display{
		opts:          opts,
		log:           logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		surfaces:      make(map[schema.SurfaceID]*surface),
	}
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	chromedp.ListenBrowser(browserCtx, d.onBrowserEvent)
	err := d.browserDo(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("discover targets: %w", err)
	}
	// The startup tab keeps the browser alive; it is never a surface.
	root := chromedp.FromContext(browserCtx).Target.TargetID
	if !opts.Headless {
		_ = d.setWindowState(root, browser.WindowStateMinimized)
	}
	opts.Hub.OnSubscribe(d.onSubscribe)
	logger.Info("browser started", "headless", opts.Headless)
	return d, nil
}

// Close shuts the browser down.
func (d *Display) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	_ = chromedp.Cancel(d.browserCtx)
	d.browserCancel()
	d.allocCancel()
	d.log.Info("browser stopped")
}

// Done is closed when the browser exits.
func (d *Display) Done() <-chan struct{} {
	return d.browserCtx.Done()
}

// HandleCertificateErrors installs the handler consulted before loading
// an https URL whose certificate fails verification.
func (d *Display) HandleCertificateErrors(handler core.CertificateHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.certs = handler
}

// CreateWindow opens a new browser window.
func (d *Display) CreateWindow(ctx context.Context, opts core.WindowOptions) (core.Surface, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, schema.ErrDisplayClosed
	}
	var id target.ID
	err := d.browserDo(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget("about:blank").WithNewWindow(true).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	s, err := d.attach(id, opts)
	if err != nil {
		return nil, err
	}
	bounds := opts.Bounds
	if opts.Parent != nil && bounds.X == nil {
		bounds = d.centerOn(opts.Parent, bounds)
	}
	state := browser.WindowStateNormal
	if opts.Hidden {
		state = browser.WindowStateMinimized
	}
	if err := d.setBounds(id, bounds, state); err != nil {
		s.logger().Debug("window bounds not applied", "err", err)
	}
	if opts.Title != "" {
		s.setTitle(opts.Title)
	}
	go s.pollBounds()
	s.logger().Debug("window created", "modal", opts.Modal, "hidden", opts.Hidden)
	return s, nil
}

// MessageBox shows a modal prompt in its own window and returns the index
// of the pressed button. Closing the prompt picks the cancel button.
func (d *Display) MessageBox(ctx context.Context, parent core.Surface, box schema.MessageBox) (int, error) {
	win, err := d.CreateWindow(ctx, core.WindowOptions{
		Title:  box.Title,
		Bounds: schema.Bounds{Width: dialogWidth, Height: dialogHeight},
		Parent: parent,
		Modal:  true,
	})
	if err != nil {
		return box.CancelID, err
	}
	s := win.(*surface)
	answers, cancel := d.opts.Dialogs.Register(s.ID())
	defer cancel()
	defer func() { _ = s.Destroy(context.Background()) }()

	s.Send(schema.Message{Type: schema.MessageDialog, Dialog: &box})
	if err := s.Load(ctx, d.opts.Pages.Dialog(s.ID())); err != nil {
		return box.CancelID, err
	}
	button, err := httpapi.AwaitAnswer(ctx, answers, s.closedCh)
	switch {
	case errors.Is(err, schema.ErrDialogClosed):
		return box.CancelID, nil
	case err != nil:
		return box.CancelID, err
	case button >= len(box.Buttons):
		return box.CancelID, nil
	}
	return button, nil
}

// PickDirectory shows the native directory chooser. The parent window is
// raised first so the chooser appears over it.
func (d *Display) PickDirectory(ctx context.Context, parent core.Surface) (string, bool, error) {
	if parent != nil {
		_ = parent.Show(ctx)
	}
	return d.opts.Picker(ctx, pickerTitle)
}

func (d *Display) attach(id target.ID, opts core.WindowOptions) (*surface, error) {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
	s := newSurface(tabCtx, cancel, d, id, opts)
	chromedp.ListenTarget(tabCtx, s.onTargetEvent)
	if err := chromedp.Run(tabCtx, enableDomains()); err != nil {
		cancel()
		return nil, fmt.Errorf("attach window: %w", err)
	}
	d.mu.Lock()
	d.surfaces[s.ID()] = s
	d.mu.Unlock()
	return s, nil
}

func (d *Display) lookup(id schema.SurfaceID) *surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaces[id]
}

func (d *Display) forget(s *surface) {
	d.mu.Lock()
	delete(d.surfaces, s.ID())
	d.mu.Unlock()
	d.opts.Hub.Drop(s.ID())
}

func (d *Display) certificateHandler() core.CertificateHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.certs
}

func (d *Display) isAppPage(url string) bool {
	return d.opts.AppBaseURL != "" && strings.HasPrefix(url, d.opts.AppBaseURL)
}

func (d *Display) onSubscribe(id schema.SurfaceID) {
	if s := d.lookup(id); s != nil {
		s.streamConnected()
	}
}

func (d *Display) onBrowserEvent(ev any) {
	var id target.ID
	switch e := ev.(type) {
	case *target.EventTargetDestroyed:
		id = e.TargetID
	case *target.EventTargetCrashed:
		id = e.TargetID
	default:
		return
	}
	if s := d.lookup(schema.SurfaceID(id)); s != nil {
		go s.markClosed("target gone")
	}
}

// browserDo runs fn against the browser rather than a page target.
func (d *Display) browserDo(fn func(ctx context.Context) error) error {
	return chromedp.Run(d.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		return fn(cdp.WithExecutor(ctx, c.Browser))
	}))
}

func (d *Display) windowBounds(id target.ID) (browser.WindowID, *browser.Bounds, error) {
	var windowID browser.WindowID
	var bounds *browser.Bounds
	err := d.browserDo(func(ctx context.Context) error {
		var err error
		windowID, bounds, err = browser.GetWindowForTarget().WithTargetID(id).Do(ctx)
		return err
	})
	return windowID, bounds, err
}

func (d *Display) setWindowState(id target.ID, state browser.WindowState) error {
	windowID, _, err := d.windowBounds(id)
	if err != nil {
		return err
	}
	return d.browserDo(func(ctx context.Context) error {
		return browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: state}).Do(ctx)
	})
}

func (d *Display) setBounds(id target.ID, b schema.Bounds, state browser.WindowState) error {
	windowID, _, err := d.windowBounds(id)
	if err != nil {
		return err
	}
	return d.browserDo(func(ctx context.Context) error {
		// A window's state and its geometry cannot change in one call.
		if err := browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: browser.WindowStateNormal}).Do(ctx); err != nil {
			return err
		}
		next := &browser.Bounds{Width: int64(b.Width), Height: int64(b.Height)}
		if b.X != nil && b.Y != nil {
			next.Left = int64(*b.X)
			next.Top = int64(*b.Y)
		}
		if err := browser.SetWindowBounds(windowID, next).Do(ctx); err != nil {
			return err
		}
		if state != browser.WindowStateNormal {
			return browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: state}).Do(ctx)
		}
		return nil
	})
}

func (d *Display) centerOn(parent core.Surface, b schema.Bounds) schema.Bounds {
	p, ok := parent.(*surface)
	if !ok {
		return b
	}
	_, pb, err := d.windowBounds(p.target)
	if err != nil || pb == nil {
		return b
	}
	x := int(pb.Left) + (int(pb.Width)-b.Width)/2
	y := int(pb.Top) + (int(pb.Height)-b.Height)/2
	b.X = &x
	b.Y = &y
	return b
}
