package schema

// WindowRecord is the persisted settings row for one resource.
// Absent fields fall back to defaults when read.
type WindowRecord struct {
	X      *int   `json:"x,omitempty"`
	Y      *int   `json:"y,omitempty"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
	Cmd    string `json:"cmd,omitempty"`
}

// WindowSettings is the effective settings view for a resource.
type WindowSettings struct {
	Bounds Bounds
	// Cmd is the effective launch command (the default when no override exists).
	Cmd string
}

// WindowSettingsUpdate merges into a WindowRecord. Nil fields are left untouched.
type WindowSettingsUpdate struct {
	X      *int
	Y      *int
	Width  *int
	Height *int
	Cmd    *string
}

// GeometryUpdate builds an update touching only position and size.
func GeometryUpdate(b Bounds) WindowSettingsUpdate {
	width := b.Width
	height := b.Height
	return WindowSettingsUpdate{X: b.X, Y: b.Y, Width: &width, Height: &height}
}

// CommandUpdate builds an update touching only the launch command.
func CommandUpdate(cmd string) WindowSettingsUpdate {
	return WindowSettingsUpdate{Cmd: &cmd}
}
