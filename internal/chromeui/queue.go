package chromeui

import (
	"sync"

	"pkt.systems/juno/core"
)

// eventQueue delivers surface events to one handler in order, off the
// DevTools event loop. It stops after delivering SurfaceClosed.
type eventQueue struct {
	mu      sync.Mutex
	items   []core.SurfaceEvent
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	handler func(core.SurfaceEvent)
}

func newEventQueue(handler func(core.SurfaceEvent)) *eventQueue {
	q := &eventQueue{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
	}
	go q.run()
	return q
}

func (q *eventQueue) push(event core.SurfaceEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if event.Type == core.SurfaceClosed {
		q.closed = true
	}
	q.items = append(q.items, event)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.done)
	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				break
			}
			event := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			if q.handler != nil {
				q.handler(event)
			}
			if event.Type == core.SurfaceClosed {
				return
			}
		}
	}
}
