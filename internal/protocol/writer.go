// ABOUTME: Per-turn frame writer enforcing the start/chunk/end state machine
// ABOUTME: Guarantees one start, non-empty ordered chunks, and a deterministic end on all paths

package protocol

// FrameWriter delivers encoded frames to one client over some transport.
// Implementations are provided by the gateway (WebSocket, SSE, aggregation).
type FrameWriter interface {
	WriteFrame(frame Frame) error
}

// TurnWriter transmits exactly one turn. It is driven by the single goroutine
// pumping the turn, so it needs no locking. After End the writer is spent.
type TurnWriter struct {
	w       FrameWriter
	started bool
	ended   bool
}

// NewTurnWriter wraps a FrameWriter for one turn.
func NewTurnWriter(w FrameWriter) *TurnWriter {
	return &TurnWriter{w: w}
}

// Start emits the start frame. Repeated calls are no-ops so every code path
// can ensure the turn is open before writing.
func (t *TurnWriter) Start() error {
	if t.started || t.ended {
		return nil
	}
	t.started = true
	return t.w.WriteFrame(StartFrame())
}

// Chunk emits one delta. Empty text is suppressed. The turn is opened first
// if it was not already.
func (t *TurnWriter) Chunk(text string) error {
	if t.ended || text == "" {
		return nil
	}
	if err := t.Start(); err != nil {
		return err
	}
	return t.w.WriteFrame(ChunkFrame(text))
}

// End closes the turn. It is idempotent and emits start first if nothing was
// sent yet, so a turn that produced no text still yields start then end and a
// failed turn is always closed deterministically.
func (t *TurnWriter) End() error {
	if t.ended {
		return nil
	}
	if err := t.Start(); err != nil {
		return err
	}
	t.ended = true
	return t.w.WriteFrame(EndFrame())
}

// Ended reports whether the turn has been closed.
func (t *TurnWriter) Ended() bool {
	return t.ended
}
