// ABOUTME: HTTP client for the remote agent runtime, consuming its SSE turn stream
// ABOUTME: Parses event/data frames into the tagged Event variant the gateway consumes

package runtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the remote agent runtime over HTTP. A turn is started with
// a POST and the answer arrives as a Server-Sent-Events stream whose data
// frames carry cumulative text snapshots.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig configures a runtime client.
type ClientConfig struct {
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// NewClient creates a runtime client. RequestTimeout bounds the initial
// connection and headers, not the stream itself; streaming lifetime is
// governed by the caller's context.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	transport := &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: cfg.RequestTimeout,
		},
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: transport,
		logger:     logger.With("component", "runtime-client"),
	}
}

// runPayload is the JSON body of a turn request.
type runPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	Stream    bool   `json:"stream"`
}

// wireEvent is the JSON shape of one SSE data frame from the runtime.
type wireEvent struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	ToolID     string `json:"tool_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Run starts a turn on the runtime and returns its event stream. The channel
// is closed when the runtime signals end-of-turn, fails, or ctx is canceled.
// A transport failure mid-stream surfaces as an EventError before close.
func (c *Client) Run(ctx context.Context, req *RunRequest) (<-chan Event, error) {
	payload, err := json.Marshal(runPayload{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Content:   req.Content,
		Model:     c.model,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("contacting runtime: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("runtime returned status %d", resp.StatusCode)
	}

	out := make(chan Event, 4)
	go c.readStream(ctx, resp, out)
	return out, nil
}

// readStream parses the SSE body line by line and forwards decoded events.
func (c *Client) readStream(ctx context.Context, resp *http.Response, out chan<- Event) {
	defer close(out)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			c.emit(ctx, out, Event{Type: EventDone})
			return
		}

		var wire wireEvent
		if err := json.Unmarshal([]byte(data), &wire); err != nil {
			c.logger.Warn("skipping malformed runtime event", "error", err)
			continue
		}

		event, ok := decodeWireEvent(wire)
		if !ok {
			c.logger.Warn("skipping runtime event of unknown type", "type", wire.Type)
			continue
		}
		if !c.emit(ctx, out, event) {
			return
		}
		if event.Type == EventDone || event.Type == EventError {
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.emit(ctx, out, Event{Type: EventError, Err: err.Error()})
		return
	}
	// Stream ended cleanly without an explicit done marker.
	c.emit(ctx, out, Event{Type: EventDone})
}

// emit sends an event unless ctx is done. Returns false when the consumer is gone.
func (c *Client) emit(ctx context.Context, out chan<- Event, event Event) bool {
	select {
	case out <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeWireEvent maps a wire frame onto the tagged Event variant.
func decodeWireEvent(wire wireEvent) (Event, bool) {
	switch wire.Type {
	case "snapshot", "text":
		return Event{Type: EventSnapshot, Snapshot: wire.Text}, true
	case "tool_call":
		return Event{Type: EventToolCall, Tool: &ToolCall{
			ID:   wire.ToolID,
			Name: wire.ToolName,
			Args: wire.ToolArgs,
		}}, true
	case "tool_result":
		return Event{Type: EventToolResult, Result: &ToolResult{
			ID:      wire.ToolID,
			Output:  wire.ToolOutput,
			IsError: wire.IsError,
		}}, true
	case "done":
		return Event{Type: EventDone}, true
	case "error":
		return Event{Type: EventError, Err: wire.Error}, true
	default:
		return Event{}, false
	}
}
