// ABOUTME: Lazily-initialized runtime handle passed into the Gateway at construction
// ABOUTME: Idempotent one-time initialization guarded by a mutex, no package globals

package runtime

import "sync"

// Handle defers runtime construction until first use. Initialization runs at
// most once; a failed init is retried on the next call rather than cached
// forever, so a runtime that was unreachable at startup can come up later.
type Handle struct {
	mu   sync.Mutex
	init func() (Runtime, error)
	rt   Runtime
}

// NewHandle wraps an initializer. init is invoked lazily on first Get.
func NewHandle(init func() (Runtime, error)) *Handle {
	return &Handle{init: init}
}

// NewStaticHandle wraps an already-constructed runtime, used in tests.
func NewStaticHandle(rt Runtime) *Handle {
	return &Handle{rt: rt}
}

// Get returns the runtime, initializing it on first call.
func (h *Handle) Get() (Runtime, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rt != nil {
		return h.rt, nil
	}
	rt, err := h.init()
	if err != nil {
		return nil, err
	}
	h.rt = rt
	return rt, nil
}

// Initialized reports whether the runtime has been constructed, for health checks.
func (h *Handle) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rt != nil
}
