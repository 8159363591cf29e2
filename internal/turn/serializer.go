// ABOUTME: Per-session turn serialization via leases, at most one in-flight turn per session
// ABOUTME: Cooperative waiting with context cancellation; cross-session turns run fully in parallel

package turn

import (
	"context"
	"sync"
)

// slot is the per-session semaphore. refs counts holders plus waiters so the
// map entry can be dropped when the last interested party leaves.
type slot struct {
	sem  chan struct{}
	refs int
}

// Serializer guarantees at most one active turn per session id at any
// instant. A second Acquire for the same session suspends the caller until
// the first lease is released or the caller's context is canceled. Sessions
// do not contend with each other; there is no global lock beyond the brief
// map access.
type Serializer struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewSerializer creates an empty serializer.
func NewSerializer() *Serializer {
	return &Serializer{slots: make(map[string]*slot)}
}

// Acquire obtains the exclusive right to process the next turn for the given
// session. It blocks cooperatively until the lease is free or ctx is done.
// The returned lease must be released on every exit path of turn processing.
func (s *Serializer) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	s.mu.Lock()
	sl, ok := s.slots[sessionID]
	if !ok {
		sl = &slot{sem: make(chan struct{}, 1)}
		s.slots[sessionID] = sl
	}
	sl.refs++
	s.mu.Unlock()

	select {
	case sl.sem <- struct{}{}:
		return &Lease{serializer: s, sessionID: sessionID, slot: sl}, nil
	case <-ctx.Done():
		s.drop(sessionID, sl)
		return nil, ctx.Err()
	}
}

// drop decrements a slot's refcount and removes the map entry when unused.
func (s *Serializer) drop(sessionID string, sl *slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(s.slots, sessionID)
	}
}

// active returns the number of tracked sessions, for tests.
func (s *Serializer) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Lease is the exclusive right to process one turn for a session.
type Lease struct {
	serializer *Serializer
	sessionID  string
	slot       *slot
	once       sync.Once
}

// SessionID returns the session this lease serializes.
func (l *Lease) SessionID() string {
	return l.sessionID
}

// Release frees the lease so the next waiting turn may proceed. It is safe to
// call more than once, which lets callers defer it while also releasing early
// on specific exit paths.
func (l *Lease) Release() {
	l.once.Do(func() {
		<-l.slot.sem
		l.serializer.drop(l.sessionID, l.slot)
	})
}
