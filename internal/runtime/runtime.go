// ABOUTME: Agent runtime collaborator interface and the tagged event variant it emits
// ABOUTME: Snapshots are cumulative text-so-far; their monotonicity is never trusted

package runtime

import "context"

// EventType discriminates the variants a runtime stream can carry.
type EventType string

const (
	// EventSnapshot carries the cumulative text generated so far in the turn.
	EventSnapshot EventType = "snapshot"
	// EventToolCall reports a tool invocation made by the agent.
	EventToolCall EventType = "tool_call"
	// EventToolResult reports the outcome of a tool invocation.
	EventToolResult EventType = "tool_result"
	// EventDone terminates the stream, signaling turn completion.
	EventDone EventType = "done"
	// EventError reports an unrecoverable runtime failure; the stream ends after it.
	EventError EventType = "error"
)

// ToolCall describes a tool invocation surfaced by the runtime.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// ToolResult describes the result of a tool invocation.
type ToolResult struct {
	ID      string
	Output  string
	IsError bool
}

// Event is one element of the runtime's asynchronous answer stream.
// Exactly one payload field is meaningful for a given Type.
type Event struct {
	Type     EventType
	Snapshot string
	Tool     *ToolCall
	Result   *ToolResult
	Err      string
}

// RunRequest identifies the turn to execute on the runtime.
type RunRequest struct {
	SessionID string
	UserID    string
	Content   string
}

// Runtime is the external conversational-agent collaborator. Run starts a
// turn and returns a channel of events that is closed when the turn ends.
// Implementations must respect ctx cancellation and must not be assumed to
// emit monotonic snapshots.
type Runtime interface {
	Run(ctx context.Context, req *RunRequest) (<-chan Event, error)
}
