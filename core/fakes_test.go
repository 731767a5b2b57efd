package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pkt.systems/juno/schema"
)

type fakeDisplay struct {
	mu       sync.Mutex
	surfaces []*fakeSurface
	boxes    []schema.MessageBox
	answer   func(schema.MessageBox) int
	pickPath string
	pickOK   bool
	handler  CertificateHandler
	loadErr  error
}

func (d *fakeDisplay) CreateWindow(_ context.Context, opts WindowOptions) (Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	surface := &fakeSurface{
		id:      schema.SurfaceID(fmt.Sprintf("surface-%d", len(d.surfaces)+1)),
		opts:    opts,
		loadErr: d.loadErr,
	}
	d.surfaces = append(d.surfaces, surface)
	return surface, nil
}

func (d *fakeDisplay) MessageBox(_ context.Context, _ Surface, box schema.MessageBox) (int, error) {
	d.mu.Lock()
	d.boxes = append(d.boxes, box)
	answer := d.answer
	d.mu.Unlock()
	if answer == nil {
		return box.DefaultID, nil
	}
	return answer(box), nil
}

func (d *fakeDisplay) PickDirectory(context.Context, Surface) (string, bool, error) {
	return d.pickPath, d.pickOK, nil
}

func (d *fakeDisplay) HandleCertificateErrors(handler CertificateHandler) {
	d.handler = handler
}

func (d *fakeDisplay) surfaceList() []*fakeSurface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeSurface(nil), d.surfaces...)
}

func (d *fakeDisplay) boxList() []schema.MessageBox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]schema.MessageBox(nil), d.boxes...)
}

func (d *fakeDisplay) panes() []*fakeSurface {
	var out []*fakeSurface
	for _, surface := range d.surfaceList() {
		if surface.opts.Modal {
			out = append(out, surface)
		}
	}
	return out
}

type fakeSurface struct {
	id      schema.SurfaceID
	opts    WindowOptions
	loadErr error

	mu       sync.Mutex
	loads    []string
	messages []schema.Message
	shows    int
	closed   bool
}

func (s *fakeSurface) ID() schema.SurfaceID { return s.id }

func (s *fakeSurface) Load(_ context.Context, url string) error {
	s.mu.Lock()
	s.loads = append(s.loads, url)
	s.mu.Unlock()
	if s.loadErr != nil {
		return s.loadErr
	}
	s.fire(SurfaceEvent{Type: SurfaceLoaded})
	return nil
}

func (s *fakeSurface) Show(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shows++
	return nil
}

func (s *fakeSurface) Close(ctx context.Context) error {
	if s.opts.OnCloseRequest != nil && !s.opts.OnCloseRequest() {
		return nil
	}
	return s.Destroy(ctx)
}

func (s *fakeSurface) Destroy(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.fire(SurfaceEvent{Type: SurfaceClosed})
	return nil
}

func (s *fakeSurface) Send(msg schema.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *fakeSurface) fire(event SurfaceEvent) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(event)
	}
}

func (s *fakeSurface) loadList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

func (s *fakeSurface) messageList() []schema.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schema.Message(nil), s.messages...)
}

func (s *fakeSurface) showCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shows
}

func (s *fakeSurface) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakePages struct{}

func (fakePages) ConnectDialog(_ schema.WindowID, surface schema.SurfaceID) string {
	return "http://127.0.0.1:1/connect.html?surface=" + string(surface)
}

func (fakePages) ServerPane(window schema.WindowID, surface schema.SurfaceID) string {
	return "http://127.0.0.1:1/server.html?window=" + string(window) + "&surface=" + string(surface)
}

type fakeSettings struct {
	mu      sync.Mutex
	sources []string
	certs   map[string]string
	cmds    map[schema.Resource]string
	updates []schema.WindowSettingsUpdate
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{certs: map[string]string{}, cmds: map[schema.Resource]string{}}
}

func (s *fakeSettings) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sources...)
}

func (s *fakeSettings) UpdateSources(resource schema.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append([]string{string(resource)}, s.sources...)
}

func (s *fakeSettings) Certificate(host string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[host]
	return cert, ok
}

func (s *fakeSettings) UpdateCertificate(host, certificate string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certs[host] = certificate
}

func (s *fakeSettings) WindowSettings(resource schema.Resource) schema.WindowSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := s.cmds[resource]
	if cmd == "" {
		cmd = schema.DefaultLaunchCommand
	}
	return schema.WindowSettings{Bounds: schema.Bounds{Width: 800, Height: 600}, Cmd: cmd}
}

func (s *fakeSettings) UpdateWindowSettings(resource schema.Resource, update schema.WindowSettingsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	if update.Cmd != nil {
		s.cmds[resource] = *update.Cmd
	}
}

type fakeLauncher struct {
	mu       sync.Mutex
	requests []LaunchRequest
	procs    []*fakeProcess
	err      error
}

func (l *fakeLauncher) Start(_ context.Context, req LaunchRequest) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.err != nil {
		return nil, l.err
	}
	proc := newFakeProcess(1000 + len(l.procs))
	l.procs = append(l.procs, proc)
	return proc, nil
}

func (l *fakeLauncher) requestList() []LaunchRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LaunchRequest(nil), l.requests...)
}

func (l *fakeLauncher) proc(t *testing.T, idx int) *fakeProcess {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx >= len(l.procs) {
		t.Fatalf("expected process %d, have %d", idx, len(l.procs))
	}
	return l.procs[idx]
}

type fakeProcess struct {
	pid        int
	stdout     chan string
	stderr     chan string
	exit       chan ExitStatus
	once       sync.Once
	mu         sync.Mutex
	terminates int
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{
		pid:    pid,
		stdout: make(chan string, 16),
		stderr: make(chan string, 16),
		exit:   make(chan ExitStatus, 1),
	}
}

func (p *fakeProcess) PID() int { return p.pid }
func (p *fakeProcess) Stdout() <-chan string { return p.stdout }
func (p *fakeProcess) Stderr() <-chan string { return p.stderr }
func (p *fakeProcess) Wait() ExitStatus { return <-p.exit }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminates++
	p.mu.Unlock()
	p.finish(ExitStatus{Code: -1, Signal: "SIGTERM"})
	return nil
}

func (p *fakeProcess) finish(status ExitStatus) {
	p.once.Do(func() {
		close(p.stdout)
		close(p.stderr)
		p.exit <- status
	})
}

func (p *fakeProcess) terminateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminates
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.WindowEvent
}

func (s *recordingSink) OnWindowEvent(event schema.WindowEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) ofType(kind schema.WindowEventType) []schema.WindowEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.WindowEvent
	for _, event := range s.events {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}

type shellFixture struct {
	shell    *Shell
	display  *fakeDisplay
	settings *fakeSettings
	launcher *fakeLauncher
	sink     *recordingSink
}

func newShellFixture(t *testing.T) *shellFixture {
	t.Helper()
	f := &shellFixture{
		display:  &fakeDisplay{},
		settings: newFakeSettings(),
		launcher: &fakeLauncher{},
		sink:     &recordingSink{},
	}
	shell, err := NewShell(schema.ShellConfig{}, ShellDeps{
		Display:   f.display,
		Pages:     fakePages{},
		Settings:  f.settings,
		Launcher:  f.launcher,
		EventSink: f.sink,
	})
	if err != nil {
		t.Fatalf("new shell: %v", err)
	}
	f.shell = shell
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
