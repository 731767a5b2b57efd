package core

import (
	"context"
	"sync"

	"pkt.systems/juno/schema"
	"pkt.systems/pslog"
)

// WindowState is the registry record for one live window. Fields other
// than ID, Resource and Local are guarded by the registry lock.
type WindowState struct {
	ID       schema.WindowID
	Resource schema.Resource
	// Local is set for windows backed by a supervised server process.
	Local   bool
	Surface Surface
	Server  *binding
	Buffer  *outputBuffer
	Pane    *paneState

	starting bool
	closed   bool
}

type paneState struct {
	surface Surface
	ready   bool
	title   string
}

// Registry tracks live windows, at most one per resource.
type Registry struct {
	display  Display
	maxLines int
	logger   pslog.Logger

	mu         sync.Mutex
	windows    map[schema.WindowID]*WindowState
	byResource map[schema.Resource]*WindowState

	onRemove func(*WindowState)
	onEmpty  func()
}

// NewRegistry constructs an empty registry creating surfaces on display.
func NewRegistry(display Display, maxLines int, logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		display:    display,
		maxLines:   maxLines,
		logger:     logger,
		windows:    make(map[schema.WindowID]*WindowState),
		byResource: make(map[schema.Resource]*WindowState),
	}
}

// Find returns the window showing resource, or nil.
func (r *Registry) Find(resource schema.Resource) *WindowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byResource[resource]
}

// Get returns the window with the given id, or nil.
func (r *Registry) Get(id schema.WindowID) *WindowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.windows[id]
}

// Len reports the number of live windows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Focus raises the window showing resource and reports whether one exists.
func (r *Registry) Focus(ctx context.Context, resource schema.Resource) bool {
	r.mu.Lock()
	state := r.byResource[resource]
	var surface Surface
	if state != nil {
		surface = state.Surface
	}
	r.mu.Unlock()
	if state == nil {
		return false
	}
	if surface != nil {
		if err := surface.Show(ctx); err != nil {
			r.logger.Warn("window focus failed", "window", state.ID, "resource", resource, "err", err)
		}
	}
	return true
}

// Close requests a close of the window showing resource and reports whether
// one exists. The surface's close intercept may still veto it.
func (r *Registry) Close(ctx context.Context, resource schema.Resource) bool {
	r.mu.Lock()
	state := r.byResource[resource]
	var surface Surface
	if state != nil {
		surface = state.Surface
	}
	r.mu.Unlock()
	if state == nil {
		return false
	}
	if surface != nil {
		if err := surface.Close(ctx); err != nil {
			r.logger.Warn("window close failed", "window", state.ID, "resource", resource, "err", err)
		}
	}
	return true
}

// Create registers a window for resource and creates its surface with the
// options returned by build. When a window already exists for resource it
// is returned with created=false. The entry is removed exactly once, when
// the surface reports SurfaceClosed.
func (r *Registry) Create(ctx context.Context, resource schema.Resource, local bool, build func(*WindowState) WindowOptions) (*WindowState, bool, error) {
	r.mu.Lock()
	if existing := r.byResource[resource]; existing != nil {
		r.mu.Unlock()
		return existing, false, nil
	}
	state := &WindowState{
		ID:       newWindowID(),
		Resource: resource,
		Local:    local,
		Buffer:   newOutputBuffer(r.maxLines),
	}
	r.windows[state.ID] = state
	r.byResource[resource] = state
	r.mu.Unlock()

	var opts WindowOptions
	if build != nil {
		opts = build(state)
	}
	next := opts.OnEvent
	opts.OnEvent = func(event SurfaceEvent) {
		if event.Type == SurfaceClosed {
			r.remove(state)
		}
		if next != nil {
			next(event)
		}
	}
	surface, err := r.display.CreateWindow(ctx, opts)
	if err != nil {
		r.remove(state)
		return nil, false, err
	}
	r.mu.Lock()
	state.Surface = surface
	r.mu.Unlock()
	r.logger.Debug("window created", "window", state.ID, "resource", resource, "surface", surface.ID())
	return state, true, nil
}

func (r *Registry) remove(state *WindowState) {
	r.mu.Lock()
	current, ok := r.windows[state.ID]
	if !ok || current != state {
		r.mu.Unlock()
		r.logger.Warn("window registry remove for unknown window", "window", state.ID, "resource", state.Resource)
		return
	}
	delete(r.windows, state.ID)
	if r.byResource[state.Resource] == state {
		delete(r.byResource, state.Resource)
	}
	state.closed = true
	empty := len(r.windows) == 0
	onRemove := r.onRemove
	onEmpty := r.onEmpty
	r.mu.Unlock()

	r.logger.Debug("window removed", "window", state.ID, "resource", state.Resource)
	if onRemove != nil {
		onRemove(state)
	}
	if empty && onEmpty != nil {
		onEmpty()
	}
}

func (r *Registry) snapshot() []*WindowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*WindowState, 0, len(r.windows))
	for _, state := range r.windows {
		out = append(out, state)
	}
	return out
}

func (r *Registry) surfaceOf(state *WindowState) Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.Surface
}
