package chromeui

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"pkt.systems/juno/core"
	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// Registered only for windows with a close intercept; it makes the
// browser ask before unloading so the shell can confirm the close.
const beforeUnloadScript = `window.addEventListener("beforeunload", function (ev) {
  ev.preventDefault();
  ev.returnValue = "";
});`

type surface struct {
	d      *Display
	target target.ID
	ctx    context.Context
	cancel context.CancelFunc
	opts   core.WindowOptions
	queue  *eventQueue

	closedCh  chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	awaiting    bool
	awaitingApp bool
	navigating  int
	destroying  bool
	minimized   bool
}

func newSurface(ctx context.Context, cancel context.CancelFunc, d *Display, id target.ID, opts core.WindowOptions) *surface {
	s := &surface{
		d:         d,
		target:    id,
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
		closedCh:  make(chan struct{}),
		minimized: opts.Hidden,
	}
	s.queue = newEventQueue(opts.OnEvent)
	return s
}

func enableDomains() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return page.Enable().Do(ctx)
	})
}

func (s *surface) ID() schema.SurfaceID {
	return schema.SurfaceID(s.target)
}

func (s *surface) logger() pslog.Logger {
	return s.d.log.With("surface", s.ID())
}

// Load navigates the window. https URLs are probed first and go through
// the certificate handler when verification fails; a rejected certificate
// leaves the window to the handler and returns nil.
func (s *surface) Load(ctx context.Context, url string) error {
	if s.isClosed() {
		return schema.ErrDisplayClosed
	}
	app := s.d.isAppPage(url)
	if !app {
		ok, err := s.checkCertificate(ctx, url)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	if s.opts.OnCloseRequest != nil {
		err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(beforeUnloadScript).Do(ctx)
			return err
		}))
		if err != nil {
			s.logger().Debug("close intercept not installed", "err", err)
		}
	}

	s.mu.Lock()
	s.awaiting = true
	s.awaitingApp = app
	s.navigating++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.navigating--
		s.mu.Unlock()
	}()

	s.logger().Debug("window load", "url", url)
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		if s.isClosed() {
			return nil
		}
		return fmt.Errorf("load %s: %w", url, err)
	}
	if s.opts.Title != "" && !app {
		s.setTitle(s.opts.Title)
	}
	return nil
}

func (s *surface) checkCertificate(ctx context.Context, url string) (bool, error) {
	handler := s.d.certificateHandler()
	if handler == nil {
		return true, nil
	}
	certErr, err := probeCertificate(ctx, url, s.d.opts.RootCAs)
	if err != nil {
		s.logger().Debug("certificate probe failed", "url", url, "err", err)
		return true, nil
	}
	if certErr == nil {
		return true, nil
	}
	s.logger().Warn("certificate error", "url", url, "code", certErr.Code, "issuer", certErr.Issuer)
	if !handler.OnCertificateError(ctx, s, *certErr) {
		return false, nil
	}
	err = chromedp.Run(s.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return security.SetIgnoreCertificateErrors(true).Do(ctx)
	}))
	if err != nil {
		return false, fmt.Errorf("accept certificate: %w", err)
	}
	return true, nil
}

// Show restores and raises the window.
func (s *surface) Show(ctx context.Context) error {
	if s.isClosed() {
		return schema.ErrDisplayClosed
	}
	s.mu.Lock()
	restore := s.minimized
	s.minimized = false
	s.mu.Unlock()
	if restore {
		if err := s.d.setWindowState(s.target, browser.WindowStateNormal); err != nil {
			s.logger().Debug("window restore failed", "err", err)
		}
	}
	err := s.d.browserDo(func(ctx context.Context) error {
		return target.ActivateTarget(s.target).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("show window: %w", err)
	}
	return chromedp.Run(s.ctx, page.BringToFront())
}

// Close asks the close intercept first, then destroys the window.
func (s *surface) Close(ctx context.Context) error {
	if s.isClosed() {
		return nil
	}
	if s.opts.OnCloseRequest != nil && !s.opts.OnCloseRequest() {
		s.logger().Debug("window close cancelled")
		return nil
	}
	return s.Destroy(ctx)
}

// Destroy closes the window without asking.
func (s *surface) Destroy(ctx context.Context) error {
	if s.isClosed() {
		return nil
	}
	s.mu.Lock()
	s.destroying = true
	s.mu.Unlock()
	if err := chromedp.Run(s.ctx, page.Close()); err != nil {
		s.logger().Debug("page close failed", "err", err)
	}
	s.markClosed("destroyed")
	return nil
}

// Send publishes msg to the page's event stream. It never blocks.
func (s *surface) Send(msg schema.Message) {
	if s.isClosed() {
		return
	}
	s.d.opts.Hub.Publish(s.ID(), msg)
}

func (s *surface) isClosed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

func (s *surface) markClosed(reason string) {
	s.closeOnce.Do(func() {
		close(s.closedCh)
		s.d.forget(s)
		s.queue.push(core.SurfaceEvent{Type: core.SurfaceClosed})
		s.cancel()
		s.logger().Debug("window closed", "reason", reason)
	})
}

func (s *surface) onTargetEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventLoadEventFired:
		s.loaded(false)
	case *page.EventJavascriptDialogOpening:
		if e.Type == page.DialogTypeBeforeunload {
			go s.beforeUnload()
		}
	case *inspector.EventDetached:
		go s.markClosed(string(e.Reason))
	}
}

func (s *surface) streamConnected() {
	s.loaded(true)
}

// loaded fires SurfaceLoaded once per Load. App pages count as loaded when
// their event stream connects, other pages on the load event.
func (s *surface) loaded(fromStream bool) {
	s.mu.Lock()
	fire := s.awaiting && s.awaitingApp == fromStream
	if fire {
		s.awaiting = false
	}
	s.mu.Unlock()
	if fire {
		s.queue.push(core.SurfaceEvent{Type: core.SurfaceLoaded})
	}
}

func (s *surface) beforeUnload() {
	s.mu.Lock()
	allow := s.navigating > 0 || s.destroying
	s.mu.Unlock()
	if !allow {
		allow = s.opts.OnCloseRequest == nil || s.opts.OnCloseRequest()
	}
	if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(allow)); err != nil {
		s.logger().Debug("beforeunload not handled", "err", err)
	}
}

func (s *surface) setTitle(title string) {
	quoted, _ := json.Marshal(title)
	if err := chromedp.Run(s.ctx, chromedp.Evaluate("document.title = "+string(quoted), nil)); err != nil {
		s.logger().Debug("window title not set", "err", err)
	}
}

func (s *surface) pollBounds() {
	ticker := time.NewTicker(s.d.opts.BoundsInterval)
	defer ticker.Stop()
	var last *browser.Bounds
	for {
		select {
		case <-s.closedCh:
			return
		case <-ticker.C:
		}
		_, current, err := s.d.windowBounds(s.target)
		if err != nil || current == nil || current.WindowState != browser.WindowStateNormal {
			continue
		}
		if last != nil && sameBounds(last, current) {
			continue
		}
		first := last == nil
		last = current
		if first {
			continue
		}
		s.queue.push(core.SurfaceEvent{Type: core.SurfaceBounds, Bounds: toBounds(current)})
	}
}

func sameBounds(a, b *browser.Bounds) bool {
	return a.Left == b.Left && a.Top == b.Top && a.Width == b.Width && a.Height == b.Height
}

func toBounds(b *browser.Bounds) schema.Bounds {
	x := int(b.Left)
	y := int(b.Top)
	return schema.Bounds{X: &x, Y: &y, Width: int(b.Width), Height: int(b.Height)}
}
