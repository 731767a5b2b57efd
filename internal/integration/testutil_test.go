package integration_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/juno"
	"pkt.systems/juno/core"
	"pkt.systems/juno/httpapi"
	"pkt.systems/juno/schema"
)

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

// writeServerScript writes a fake notebook server and returns the launch
// command running it.
func writeServerScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-jupyter.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return "/bin/sh " + path
}

type testApp struct {
	app     juno.App
	display *recordingDisplay
	events  *eventRecorder
}

func newTestApp(t *testing.T, command string) *testApp {
	t.Helper()
	display := &recordingDisplay{done: make(chan struct{})}
	events := &eventRecorder{}
	app, err := juno.New(juno.AppConfig{
		Shell: schema.ShellConfig{
			DefaultCommand: command,
			TerminateGrace: time.Second,
		},
		StateDir: t.TempDir(),
		HTTP:     httpapi.Config{Addr: "127.0.0.1:0"},
	}, juno.AppDeps{
		NewDisplay: func(_ context.Context, params juno.DisplayParams) (juno.Display, error) {
			display.params = params
			return display, nil
		},
		EventSink: events,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("start app: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return &testApp{app: app, display: display, events: events}
}

func waitFor(t *testing.T, what string, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// readStream collects SSE messages from a surface stream until match
// returns true.
func readStream(t *testing.T, baseURL string, surface schema.SurfaceID, match func([]httpapi.StreamEvent) bool) []httpapi.StreamEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/surfaces/%s/stream", baseURL, surface), nil)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	var events []httpapi.StreamEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var event httpapi.StreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			t.Fatalf("decode stream event %q: %v", data, err)
		}
		events = append(events, event)
		if match(events) {
			return events
		}
	}
	t.Fatalf("stream ended before match: %v (%d events)", scanner.Err(), len(events))
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []schema.WindowEvent
}

func (r *eventRecorder) OnWindowEvent(event schema.WindowEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) find(eventType schema.WindowEventType) (schema.WindowEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.Type == eventType {
			return event, true
		}
	}
	return schema.WindowEvent{}, false
}

type recordingDisplay struct {
	params juno.DisplayParams

	mu       sync.Mutex
	surfaces []*recordingSurface
	done     chan struct{}
	once     sync.Once
}

func (d *recordingDisplay) CreateWindow(_ context.Context, opts core.WindowOptions) (core.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	surface := &recordingSurface{
		id:   schema.SurfaceID(fmt.Sprintf("surface-%d", len(d.surfaces)+1)),
		opts: opts,
		hub:  d.params.Hub,
	}
	d.surfaces = append(d.surfaces, surface)
	return surface, nil
}

func (d *recordingDisplay) MessageBox(_ context.Context, _ core.Surface, box schema.MessageBox) (int, error) {
	return box.DefaultID, nil
}

func (d *recordingDisplay) PickDirectory(context.Context, core.Surface) (string, bool, error) {
	return "", false, nil
}

func (d *recordingDisplay) HandleCertificateErrors(core.CertificateHandler) {}

func (d *recordingDisplay) Close() {
	d.once.Do(func() { close(d.done) })
}

func (d *recordingDisplay) Done() <-chan struct{} {
	return d.done
}

func (d *recordingDisplay) list() []*recordingSurface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*recordingSurface(nil), d.surfaces...)
}

func (d *recordingDisplay) modal() *recordingSurface {
	for _, surface := range d.list() {
		if surface.opts.Modal {
			return surface
		}
	}
	return nil
}

// recordingSurface publishes sent messages to the hub the way the browser
// display does.
type recordingSurface struct {
	id   schema.SurfaceID
	opts core.WindowOptions
	hub  *httpapi.Hub

	mu     sync.Mutex
	loads  []string
	closed bool
}

func (s *recordingSurface) ID() schema.SurfaceID { return s.id }

func (s *recordingSurface) Load(_ context.Context, url string) error {
	s.mu.Lock()
	s.loads = append(s.loads, url)
	s.mu.Unlock()
	s.fire(core.SurfaceEvent{Type: core.SurfaceLoaded})
	return nil
}

func (s *recordingSurface) Show(context.Context) error { return nil }

func (s *recordingSurface) Close(ctx context.Context) error {
	if s.opts.OnCloseRequest != nil && !s.opts.OnCloseRequest() {
		return nil
	}
	return s.Destroy(ctx)
}

func (s *recordingSurface) Destroy(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.fire(core.SurfaceEvent{Type: core.SurfaceClosed})
	return nil
}

func (s *recordingSurface) Send(msg schema.Message) {
	s.hub.Publish(s.id, msg)
}

func (s *recordingSurface) fire(event core.SurfaceEvent) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event)
	}
}

func (s *recordingSurface) loadList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}
