package httpapi

// Config defines the front-end server settings.
type Config struct {
	// Addr is the listen address. An empty port picks a free one.
	Addr string
	// HistorySize caps the replayable messages kept per surface.
	HistorySize int
}

// DefaultAddr binds the loopback interface on a random port.
const DefaultAddr = "127.0.0.1:0"
