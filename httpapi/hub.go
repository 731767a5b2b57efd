package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq uint64 `json:"seq,omitempty"`
	schema.Message
	Timestamp time.Time `json:"timestamp"`
}

// Hub keeps an ordered message stream per surface. Messages published
// before a page subscribes are kept and replayed on subscribe.
type Hub struct {
	mu          sync.Mutex
	surfaces    map[schema.SurfaceID]*surfaceHub
	historySize int
	onSubscribe func(schema.SurfaceID)
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size per surface.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = schema.DefaultBufferMaxLines + 64
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{
		surfaces:    make(map[schema.SurfaceID]*surfaceHub),
		historySize: historySize,
		log:         logger,
	}
}

// OnSubscribe installs a hook run after each new stream subscription.
func (h *Hub) OnSubscribe(fn func(schema.SurfaceID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSubscribe = fn
}

// Publish appends msg to the surface stream. It never blocks.
func (h *Hub) Publish(surface schema.SurfaceID, msg schema.Message) {
	event := StreamEvent{Message: msg, Timestamp: time.Now()}
	h.mu.Lock()
	sh := h.getOrCreateLocked(surface)
	sh.seq++
	event.Seq = sh.seq
	sh.history = append(sh.history, event)
	if len(sh.history) > h.historySize {
		sh.history = sh.history[len(sh.history)-h.historySize:]
	}
	dropped := 0
	for sub := range sh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()
	if dropped > 0 {
		h.log.Warn("hub event dropped", "surface", surface, "type", msg.Type, "dropped", dropped)
	}
}

// Subscribe registers a subscriber for a surface and returns the events
// after the given sequence number that are still in history.
func (h *Hub) Subscribe(surface schema.SurfaceID, after uint64) (<-chan StreamEvent, func(), []StreamEvent) {
	h.mu.Lock()
	sh := h.getOrCreateLocked(surface)
	ch := make(chan StreamEvent, 256)
	sh.subs[ch] = struct{}{}
	replay := make([]StreamEvent, 0, len(sh.history))
	for _, event := range sh.history {
		if event.Seq > after {
			replay = append(replay, event)
		}
	}
	count := len(sh.subs)
	hook := h.onSubscribe
	h.mu.Unlock()

	h.log.Debug("hub subscribe", "surface", surface, "subs", count, "replay", len(replay))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := sh.subs[ch]; ok {
				delete(sh.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
			h.log.Debug("hub unsubscribe", "surface", surface)
		})
	}
	if hook != nil {
		hook(surface)
	}
	return ch, unsub, replay
}

// Drop forgets a surface and ends its streams.
func (h *Hub) Drop(surface schema.SurfaceID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.surfaces[surface]
	if sh == nil {
		return
	}
	for sub := range sh.subs {
		close(sub)
	}
	delete(h.surfaces, surface)
}

// History returns the stored events of a surface.
func (h *Hub) History(surface schema.SurfaceID) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.surfaces[surface]
	if sh == nil {
		return nil
	}
	return append([]StreamEvent(nil), sh.history...)
}

func (h *Hub) getOrCreateLocked(surface schema.SurfaceID) *surfaceHub {
	sh := h.surfaces[surface]
	if sh == nil {
		sh = &surfaceHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.surfaces[surface] = sh
	}
	return sh
}

type surfaceHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
