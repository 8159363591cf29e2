// ABOUTME: Tests for the snapshot-to-delta assembler
// ABOUTME: Covers suffix emission, duplicate suppression, and corrective deltas

package turn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsume_SuffixDeltas(t *testing.T) {
	a := NewAssembler(nil)

	d, ok := a.Consume("Hello")
	require.True(t, ok)
	assert.Equal(t, "Hello", d.Text)
	assert.False(t, d.Corrective)

	d, ok = a.Consume("Hello, world")
	require.True(t, ok)
	assert.Equal(t, ", world", d.Text)

	d, ok = a.Consume("Hello, world!")
	require.True(t, ok)
	assert.Equal(t, "!", d.Text)
}

func TestConsume_DuplicateSnapshotSuppressed(t *testing.T) {
	a := NewAssembler(nil)

	_, ok := a.Consume("partial answer")
	require.True(t, ok)

	d, ok := a.Consume("partial answer")
	assert.False(t, ok)
	assert.Empty(t, d.Text)
}

func TestConsume_EmptyFirstSnapshotSuppressed(t *testing.T) {
	a := NewAssembler(nil)

	_, ok := a.Consume("")
	assert.False(t, ok)
}

func TestConsume_NonMonotonicSnapshotIsCorrective(t *testing.T) {
	a := NewAssembler(nil)

	_, ok := a.Consume("The answer is A")
	require.True(t, ok)

	// Runtime replaced its snapshot instead of extending it.
	d, ok := a.Consume("Actually, B")
	require.True(t, ok)
	assert.True(t, d.Corrective)
	assert.Equal(t, "Actually, B", d.Text)

	// Subsequent extending snapshots resume normal suffix deltas.
	d, ok = a.Consume("Actually, B is right")
	require.True(t, ok)
	assert.False(t, d.Corrective)
	assert.Equal(t, " is right", d.Text)
}

func TestConsume_SequenceNumbersIncrease(t *testing.T) {
	a := NewAssembler(nil)

	d1, _ := a.Consume("a")
	d2, _ := a.Consume("ab")
	_, ok := a.Consume("ab") // suppressed, no seq consumed
	require.False(t, ok)
	d3, _ := a.Consume("abc")

	assert.Equal(t, uint64(1), d1.Seq)
	assert.Equal(t, uint64(2), d2.Seq)
	assert.Equal(t, uint64(3), d3.Seq)
}

func TestConsume_ConcatenationEqualsFinalSnapshot(t *testing.T) {
	snapshots := []string{
		"W",
		"We measure",
		"We measure cycle",
		"We measure cycle time from",
		"We measure cycle time from first commit.",
	}

	a := NewAssembler(nil)
	var rebuilt strings.Builder
	for _, snap := range snapshots {
		if d, ok := a.Consume(snap); ok {
			rebuilt.WriteString(d.Text)
		}
	}

	assert.Equal(t, snapshots[len(snapshots)-1], rebuilt.String())
	assert.Equal(t, snapshots[len(snapshots)-1], a.Emitted())
}

func TestConsume_RebuildSurvivesCorrection(t *testing.T) {
	snapshots := []string{"draft one", "rewritten", "rewritten fully"}

	a := NewAssembler(nil)
	var display string
	for _, snap := range snapshots {
		d, ok := a.Consume(snap)
		if !ok {
			continue
		}
		if d.Corrective {
			display = d.Text
		} else {
			display += d.Text
		}
	}

	assert.Equal(t, "rewritten fully", display)
}
