package schema

import "strings"

// WindowID identifies a live shell window.
type WindowID string

// SurfaceID identifies a display surface (notebook window, pane, or dialog).
type SurfaceID string

// Resource is a normalized resource identifier: an absolute directory path
// for local notebooks or a URL ending in "/" for remote ones.
type Resource string

// ConnectDialogResource is the pseudo-resource owned by the connect dialog.
const ConnectDialogResource Resource = "open-dialog"

// IsRemote reports whether the resource is a URL.
func (r Resource) IsRemote() bool {
	return IsRemoteResource(string(r))
}

// IsLocal reports whether the resource is a filesystem directory.
func (r Resource) IsLocal() bool {
	return r != "" && r != ConnectDialogResource && !r.IsRemote()
}

// String returns the normalized form.
func (r Resource) String() string {
	return string(r)
}

// IsRemoteResource reports whether a raw resource string carries a URL scheme.
func IsRemoteResource(raw string) bool {
	return strings.Contains(raw, "://")
}

// NormalizeRemoteResource appends the trailing slash remote resources are keyed by.
func NormalizeRemoteResource(raw string) Resource {
	if strings.HasSuffix(raw, "/") {
		return Resource(raw)
	}
	return Resource(raw + "/")
}

// Bounds describes window geometry. Nil X/Y lets the display centre the window.
type Bounds struct {
	X      *int
	Y      *int
	Width  int
	Height int
}

// MessageBoxType selects the icon and tone of a message box.
type MessageBoxType string

const (
	// MessageBoxQuestion asks the user to confirm an action.
	MessageBoxQuestion MessageBoxType = "question"
	// MessageBoxWarning warns about a risky action.
	MessageBoxWarning MessageBoxType = "warning"
)

// MessageBox describes a modal prompt. DefaultID and CancelID index Buttons.
type MessageBox struct {
	Type      MessageBoxType `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Detail    string         `json:"detail,omitempty"`
	Buttons   []string       `json:"buttons"`
	DefaultID int            `json:"default_id"`
	CancelID  int            `json:"cancel_id"`
}

// WindowInfo is a read-only view of a live window.
type WindowInfo struct {
	ID       WindowID `json:"id"`
	Resource Resource `json:"resource"`
	Local    bool     `json:"local"`
	Running  bool     `json:"running"`
	PID      int      `json:"pid,omitempty"`
	Command  string   `json:"command,omitempty"`
}
