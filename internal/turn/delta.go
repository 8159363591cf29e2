// ABOUTME: DeltaAssembler converts cumulative text snapshots into non-overlapping deltas
// ABOUTME: The single place where snapshot diffing happens, so it cannot regress per transport

package turn

import (
	"log/slog"
	"strings"
)

// Delta is the strict suffix of a snapshot not yet emitted. The concatenation
// of all deltas for a turn, in sequence order, equals the final snapshot
// exactly: no gaps, no duplication, no reordering.
type Delta struct {
	Text       string
	Seq        uint64
	Corrective bool
}

// Assembler converts the sequence of cumulative text snapshots emitted by the
// agent runtime into a sequence of incremental deltas. One assembler serves
// exactly one turn and starts with empty prior state. It is driven by the
// single goroutine holding the turn lease, so it needs no internal locking,
// and must never be shared across turns or sessions.
type Assembler struct {
	prev   string
	seq    uint64
	logger *slog.Logger
}

// NewAssembler creates an assembler for a single turn.
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Consume accepts the next cumulative snapshot and returns the delta to emit.
// ok is false when the delta is empty and nothing should be sent downstream.
//
// When the snapshot extends the previous one, the delta is the new suffix.
// When it does not (the upstream runtime emitted a non-monotonic or replaced
// snapshot), the new snapshot is treated as authoritative and emitted whole
// as a single corrective delta; no character-level diffing against stale
// state is attempted. The anomaly is logged, not surfaced to the user.
func (a *Assembler) Consume(snapshot string) (Delta, bool) {
	if strings.HasPrefix(snapshot, a.prev) {
		text := snapshot[len(a.prev):]
		a.prev = snapshot
		if text == "" {
			return Delta{}, false
		}
		a.seq++
		return Delta{Text: text, Seq: a.seq}, true
	}

	a.logger.Warn("non-monotonic snapshot from runtime, emitting corrective delta",
		"prev_len", len(a.prev),
		"snapshot_len", len(snapshot),
	)
	a.prev = snapshot
	if snapshot == "" {
		return Delta{}, false
	}
	a.seq++
	return Delta{Text: snapshot, Seq: a.seq, Corrective: true}, true
}

// Emitted returns the total text emitted so far, which by the assembler's
// invariant equals the last snapshot consumed.
func (a *Assembler) Emitted() string {
	return a.prev
}
