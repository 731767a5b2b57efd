package httpapi

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/juno/schema"
)

// ErrDialogNotFound reports an answer for a dialog nobody waits on.
var ErrDialogNotFound = errors.New("dialog not found")

// DialogBroker hands message box answers from dialog pages to waiters.
type DialogBroker struct {
	mu      sync.Mutex
	pending map[schema.SurfaceID]chan int
}

// NewDialogBroker constructs an empty broker.
func NewDialogBroker() *DialogBroker {
	return &DialogBroker{pending: make(map[schema.SurfaceID]chan int)}
}

// Register starts waiting for an answer from the dialog on surface.
// The returned cancel must be called once the wait is over.
func (b *DialogBroker) Register(surface schema.SurfaceID) (<-chan int, func()) {
	ch := make(chan int, 1)
	b.mu.Lock()
	b.pending[surface] = ch
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		if b.pending[surface] == ch {
			delete(b.pending, surface)
		}
		b.mu.Unlock()
	}
}

// Answer delivers the pressed button index. Only the first answer counts.
func (b *DialogBroker) Answer(surface schema.SurfaceID, button int) error {
	b.mu.Lock()
	ch, ok := b.pending[surface]
	if ok {
		delete(b.pending, surface)
	}
	b.mu.Unlock()
	if !ok {
		return ErrDialogNotFound
	}
	ch <- button
	return nil
}

// AwaitAnswer blocks until an answer arrives, closed fires, or ctx ends.
func AwaitAnswer(ctx context.Context, answers <-chan int, closed <-chan struct{}) (int, error) {
	select {
	case button := <-answers:
		return button, nil
	case <-closed:
		select {
		case button := <-answers:
			return button, nil
		default:
		}
		return 0, schema.ErrDialogClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
