package core

import (
	"context"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// ShellDeps captures the collaborators of the shell. Display, Pages,
// Settings and Launcher are required.
type ShellDeps struct {
	Display   Display
	Pages     Pages
	Settings  SettingsStore
	Launcher  ProcessLauncher
	Readiness ReadinessDetector
	EventSink EventSink
	Logger    pslog.Logger
}

// Display creates on-screen surfaces and modal prompts.
type Display interface {
	CreateWindow(ctx context.Context, opts WindowOptions) (Surface, error)
	// MessageBox blocks until a button is chosen and returns its index.
	// Closing the box without an answer yields CancelID.
	MessageBox(ctx context.Context, parent Surface, box schema.MessageBox) (int, error)
	// PickDirectory returns the chosen directory, or ok=false on cancel.
	PickDirectory(ctx context.Context, parent Surface) (path string, ok bool, err error)
	HandleCertificateErrors(handler CertificateHandler)
}

// Surface is one display window.
type Surface interface {
	ID() schema.SurfaceID
	Load(ctx context.Context, url string) error
	// Show raises and focuses the surface.
	Show(ctx context.Context) error
	// Close requests a close, subject to WindowOptions.OnCloseRequest.
	Close(ctx context.Context) error
	// Destroy closes without asking.
	Destroy(ctx context.Context) error
	// Send queues a message for the page shown in the surface. It never blocks.
	Send(msg schema.Message)
}

// WindowOptions configures a new surface.
type WindowOptions struct {
	Title  string
	Bounds schema.Bounds
	// Parent scopes the surface lifetime to another surface.
	Parent Surface
	Modal  bool
	// Hidden keeps the surface hidden until Show is called.
	Hidden bool
	// OnEvent receives surface events in order, on a goroutine owned by the display.
	OnEvent func(SurfaceEvent)
	// OnCloseRequest returns false to veto a close. Nil allows every close.
	OnCloseRequest func() bool
}

// SurfaceEventType names surface lifecycle events.
type SurfaceEventType string

const (
	// SurfaceLoaded fires when the page finished its initial load.
	SurfaceLoaded SurfaceEventType = "loaded"
	// SurfaceBounds fires after a move or resize.
	SurfaceBounds SurfaceEventType = "bounds"
	// SurfaceClosed fires once, after the surface is gone.
	SurfaceClosed SurfaceEventType = "closed"
)

// SurfaceEvent is delivered to WindowOptions.OnEvent.
type SurfaceEvent struct {
	Type   SurfaceEventType
	Bounds schema.Bounds
}

// Pages resolves the URLs of the built-in front-end pages.
type Pages interface {
	ConnectDialog(window schema.WindowID, surface schema.SurfaceID) string
	ServerPane(window schema.WindowID, surface schema.SurfaceID) string
}

// SettingsStore persists sources, window settings, and trusted certificates.
// Mutations return immediately; persistence is best-effort.
type SettingsStore interface {
	Sources() []string
	UpdateSources(resource schema.Resource)
	Certificate(host string) (string, bool)
	UpdateCertificate(host, certificate string)
	WindowSettings(resource schema.Resource) schema.WindowSettings
	UpdateWindowSettings(resource schema.Resource, update schema.WindowSettingsUpdate)
}

// LaunchRequest describes a server process to start.
type LaunchRequest struct {
	Argv []string
	Dir  string
}

// ExitStatus reports how a process ended.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

// ProcessLauncher starts server processes.
type ProcessLauncher interface {
	// Start spawns the process. Spawn failures are returned as *schema.SpawnError.
	Start(ctx context.Context, req LaunchRequest) (Process, error)
}

// Process is a running server process. Stdout and Stderr deliver chunks in
// emission order and are closed at EOF.
type Process interface {
	PID() int
	Stdout() <-chan string
	Stderr() <-chan string
	Wait() ExitStatus
	Terminate() error
}

// CertificateError describes a TLS validation failure for a page load.
type CertificateError struct {
	URL string
	// Code is the browser error code, e.g. net::ERR_CERT_AUTHORITY_INVALID.
	Code        string
	Issuer      string
	Certificate string
}

// CertificateHandler decides whether to proceed past a certificate error.
// surface is the window that hit the error and is never nil; it is destroyed
// when the error is rejected.
type CertificateHandler interface {
	OnCertificateError(ctx context.Context, surface Surface, certErr CertificateError) bool
}
