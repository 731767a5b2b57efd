package eventbus

import (
	"context"
	"sync"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// AllWindows subscribes to the events of every window.
const AllWindows schema.WindowID = ""

// Bus fans window lifecycle events out to per-window subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WindowID]map[chan schema.WindowEvent]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[chan schema.WindowEvent]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for one window, or for all windows
// with AllWindows, and returns a channel + cancel.
func (b *Bus) Subscribe(windowID schema.WindowID) (<-chan schema.WindowEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.WindowEvent, b.depth)
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	if windowSubs == nil {
		windowSubs = make(map[chan schema.WindowEvent]struct{})
		b.subs[windowID] = windowSubs
	}
	windowSubs[ch] = struct{}{}
	count := len(windowSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("window", windowID).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[windowID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, windowID)
				}
			}
			b.mu.Unlock()
			close(ch)
			if b.log != nil {
				b.log.With("window", windowID).Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnWindowEvent publishes a window event.
func (b *Bus) OnWindowEvent(event schema.WindowEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan schema.WindowEvent, 0, len(b.subs[event.WindowID])+len(b.subs[AllWindows]))
	for sub := range b.subs[event.WindowID] {
		subs = append(subs, sub)
	}
	if event.WindowID != AllWindows {
		for sub := range b.subs[AllWindows] {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("window", event.WindowID).Trace("eventbus dropped", "count", dropped)
	}
}
