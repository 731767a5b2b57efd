package core

import (
	"regexp"
	"sync"

	"pkt.systems/juno/schema"
)

// ReadinessDetector creates a probe per server process.
type ReadinessDetector interface {
	NewProbe() ReadinessProbe
}

// ReadinessProbe inspects output chunks and reports the server URL once.
type ReadinessProbe interface {
	Observe(stream schema.StreamKind, chunk string) (url string, ok bool)
}

// DefaultURLPattern matches the loopback URL Jupyter prints on startup.
var DefaultURLPattern = regexp.MustCompile(`https?://localhost:[0-9]*/\S*`)

// URLScraper detects readiness by matching a URL pattern on one stream.
type URLScraper struct {
	Pattern *regexp.Regexp
	Stream  schema.StreamKind
}

// NewURLScraper returns the stderr scraper used by Jupyter servers.
func NewURLScraper() URLScraper {
	return URLScraper{Pattern: DefaultURLPattern, Stream: schema.StreamStderr}
}

// NewProbe implements ReadinessDetector.
func (s URLScraper) NewProbe() ReadinessProbe {
	pattern := s.Pattern
	if pattern == nil {
		pattern = DefaultURLPattern
	}
	stream := s.Stream
	if stream == "" {
		stream = schema.StreamStderr
	}
	return &urlProbe{pattern: pattern, stream: stream}
}

type urlProbe struct {
	pattern *regexp.Regexp
	stream  schema.StreamKind
	mu      sync.Mutex
	found   bool
}

func (p *urlProbe) Observe(stream schema.StreamKind, chunk string) (string, bool) {
	if stream != p.stream {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.found {
		return "", false
	}
	url := p.pattern.FindString(chunk)
	if url == "" {
		return "", false
	}
	p.found = true
	return url, true
}
