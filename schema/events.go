package schema

// MessageType names the messages pushed to front-end pages.
type MessageType string

const (
	// MessageSetSources carries the recent resource list to the connect dialog.
	MessageSetSources MessageType = "set-sources"
	// MessageSetTitle sets the server pane title.
	MessageSetTitle MessageType = "set-title"
	// MessageOutputLine appends one output chunk to the server pane.
	MessageOutputLine MessageType = "output-line"
	// MessageDialog carries a message box description to a dialog page.
	MessageDialog MessageType = "dialog"
	// MessageWindow carries a window lifecycle event to the server pane.
	MessageWindow MessageType = "window"
)

// Message is pushed from the shell to a surface.
type Message struct {
	Type    MessageType  `json:"type"`
	Line    string       `json:"line,omitempty"`
	Title   string       `json:"title,omitempty"`
	Sources []string     `json:"sources,omitempty"`
	Dialog  *MessageBox  `json:"dialog,omitempty"`
	Window  *WindowEvent `json:"window,omitempty"`
}

// StreamKind identifies a server output stream.
type StreamKind string

const (
	// StreamStdout is the server's standard output.
	StreamStdout StreamKind = "stdout"
	// StreamStderr is the server's standard error.
	StreamStderr StreamKind = "stderr"
)

// WindowEventType describes window and server lifecycle changes.
type WindowEventType string

const (
	// WindowOpened indicates a window was created.
	WindowOpened WindowEventType = "opened"
	// WindowClosed indicates a window was removed from the registry.
	WindowClosed WindowEventType = "closed"
	// ServerStarted indicates a server process was bound to a window.
	ServerStarted WindowEventType = "server_started"
	// ServerReady indicates the server URL was detected and loaded.
	ServerReady WindowEventType = "server_ready"
	// ServerExited indicates the bound server process ended on its own.
	ServerExited WindowEventType = "server_exited"
	// ServerFailed indicates the server process could not be spawned.
	ServerFailed WindowEventType = "server_failed"
	// ServerStopped indicates the server was stopped intentionally.
	ServerStopped WindowEventType = "server_stopped"
)

// WindowEvent describes a lifecycle change of one window.
type WindowEvent struct {
	Type     WindowEventType `json:"type"`
	WindowID WindowID        `json:"window_id"`
	Resource Resource        `json:"resource"`
	PID      int             `json:"pid,omitempty"`
	ExitCode int             `json:"exit_code,omitempty"`
	Signal   string          `json:"signal,omitempty"`
	URL      string          `json:"url,omitempty"`
	Error    string          `json:"error,omitempty"`
}
