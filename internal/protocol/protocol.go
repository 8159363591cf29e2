// ABOUTME: Wire protocol for the chat stream: start/chunk/end frames and inbound turn requests
// ABOUTME: Transport-agnostic; WebSocket and SSE transports both frame through this package

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SenderBot identifies gateway-originated frames on the wire.
const SenderBot = "bot"

// Outbound frame types. A turn is transmitted as START, zero or more CHUNKs
// in strict sequence order, then exactly one END. The client contract for
// chunks is "append, never replace". ERROR is only used for pre-turn
// rejections on connection-oriented transports; mid-turn failures surface as
// an apology chunk followed by end.
const (
	TypeStart = "start"
	TypeChunk = "chunk"
	TypeEnd   = "end"
	TypeError = "error"
)

// ErrEmptyQuery rejects an inbound message whose query is empty after trimming.
var ErrEmptyQuery = errors.New("query must not be empty")

// Frame is one outbound wire message, encoded as a single JSON object per
// WebSocket text message or SSE data line.
type Frame struct {
	Sender string `json:"sender"`
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
}

// StartFrame signals the client to open a fresh incoming message bubble.
func StartFrame() Frame {
	return Frame{Sender: SenderBot, Type: TypeStart}
}

// ChunkFrame carries one non-empty delta for append-only rendering.
func ChunkFrame(text string) Frame {
	return Frame{Sender: SenderBot, Type: TypeChunk, Text: text}
}

// EndFrame signals that no further chunk for this turn will arrive.
func EndFrame() Frame {
	return Frame{Sender: SenderBot, Type: TypeEnd}
}

// ErrorFrame carries a structured pre-turn rejection.
func ErrorFrame(text string) Frame {
	return Frame{Sender: SenderBot, Type: TypeError, Text: text}
}

// TurnRequest is a decoded, validated inbound client message.
type TurnRequest struct {
	Query string `json:"query"`
	OrgID string `json:"org_id,omitempty"`
}

// OrgChecker reports whether an org identifier resolves in the directory.
// Satisfied by *orgs.Directory.
type OrgChecker interface {
	Known(orgID string) bool
}

// DecodeTurnRequest parses and validates an inbound client message. The query
// must be non-empty after trimming; a present-but-unknown org identifier is a
// caller error; an absent org identifier means "no organization selected".
// Validation failures are rejected here, before any turn or lease exists.
func DecodeTurnRequest(data []byte, checker OrgChecker) (*TurnRequest, error) {
	var req TurnRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	if req.OrgID != "" && !checker.Known(req.OrgID) {
		return nil, fmt.Errorf("unknown org_id: %q", req.OrgID)
	}

	return &req, nil
}
