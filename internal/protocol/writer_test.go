// ABOUTME: Tests for the per-turn frame writer state machine
// ABOUTME: Covers start idempotency, empty chunk suppression, and deterministic end

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWriter captures frames in order.
type recordingWriter struct {
	frames []Frame
	err    error
}

func (r *recordingWriter) WriteFrame(frame Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	return nil
}

func frameTypes(frames []Frame) []string {
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	return types
}

func TestTurnWriter_NormalSequence(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.Start())
	require.NoError(t, tw.Chunk("Hello"))
	require.NoError(t, tw.Chunk(" world"))
	require.NoError(t, tw.End())

	assert.Equal(t, []string{TypeStart, TypeChunk, TypeChunk, TypeEnd}, frameTypes(rec.frames))
	assert.Equal(t, "Hello", rec.frames[1].Text)
	assert.Equal(t, " world", rec.frames[2].Text)
}

func TestTurnWriter_StartIdempotent(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.Start())
	require.NoError(t, tw.Start())
	require.NoError(t, tw.End())

	assert.Equal(t, []string{TypeStart, TypeEnd}, frameTypes(rec.frames))
}

func TestTurnWriter_ChunkAutoStarts(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.Chunk("text"))

	assert.Equal(t, []string{TypeStart, TypeChunk}, frameTypes(rec.frames))
}

func TestTurnWriter_EmptyChunkSuppressed(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.Chunk(""))
	assert.Empty(t, rec.frames)
}

func TestTurnWriter_EmptyTurnStillFramed(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.End())

	assert.Equal(t, []string{TypeStart, TypeEnd}, frameTypes(rec.frames))
	assert.True(t, tw.Ended())
}

func TestTurnWriter_EndIdempotent(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.End())
	require.NoError(t, tw.End())

	assert.Equal(t, []string{TypeStart, TypeEnd}, frameTypes(rec.frames))
}

func TestTurnWriter_NoWritesAfterEnd(t *testing.T) {
	rec := &recordingWriter{}
	tw := NewTurnWriter(rec)

	require.NoError(t, tw.End())
	require.NoError(t, tw.Chunk("late"))
	require.NoError(t, tw.Start())

	assert.Equal(t, []string{TypeStart, TypeEnd}, frameTypes(rec.frames))
}

func TestTurnWriter_PropagatesWriteError(t *testing.T) {
	sentinel := errors.New("connection gone")
	rec := &recordingWriter{err: sentinel}
	tw := NewTurnWriter(rec)

	assert.ErrorIs(t, tw.Start(), sentinel)
}
