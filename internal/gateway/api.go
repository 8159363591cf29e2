// ABOUTME: HTTP API handlers: aggregate /query, SSE /query/stream, health and root
// ABOUTME: Caller errors are rejected with JSON before any stream or lease exists

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/typo-labs/typo-gateway/internal/protocol"
	"github.com/typo-labs/typo-gateway/internal/session"
)

// QueryResponse is the JSON response for POST /query.
type QueryResponse struct {
	Answer  string `json:"answer"`
	Status  string `json:"status"`
	OrgInfo string `json:"org_info,omitempty"`
}

// handleRoot returns a liveness banner.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "typo-gateway running."})
}

// handleHealthz reports process health and whether the runtime handle has
// been initialized.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "healthy",
		"initialized": g.runtime.Initialized(),
	})
}

// decodeHTTPTurnRequest reads and validates a turn request from an HTTP body.
func (g *Gateway) decodeHTTPTurnRequest(w http.ResponseWriter, r *http.Request) *protocol.TurnRequest {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "reading request body failed")
		return nil
	}

	req, err := protocol.DecodeTurnRequest(body, g.orgs)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, rejectionText(err))
		return nil
	}
	return req
}

// resolveAPISession returns the durable session for an HTTP caller identity,
// reusing the most recent session for the identity so multi-turn memory
// survives across requests.
func (g *Gateway) resolveAPISession(r *http.Request, req *protocol.TurnRequest) (*session.Session, error) {
	identity := "api_user_global"
	if req.OrgID != "" {
		identity = "api_user_" + req.OrgID
	}

	existing, err := g.store.ListSessions(r.Context(), g.config.Application, identity)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[len(existing)-1], nil
	}
	return g.store.ResolveOrCreate(r.Context(), g.config.Application, identity, "")
}

// aggregateWriter collects chunk frames into a full answer for the
// non-streaming /query path.
type aggregateWriter struct {
	answer []byte
}

func (a *aggregateWriter) WriteFrame(frame protocol.Frame) error {
	if frame.Type == protocol.TypeChunk {
		a.answer = append(a.answer, frame.Text...)
	}
	return nil
}

// handleQuery handles POST /query: one full answer per request.
func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	req := g.decodeHTTPTurnRequest(w, r)
	if req == nil {
		return
	}

	sess, err := g.resolveAPISession(r, req)
	if err != nil {
		g.logger.Error("session resolution failed", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	agg := &aggregateWriter{}
	result, err := g.runTurn(r.Context(), sess, req, agg)
	if err != nil {
		g.logger.Error("query failed", "session_id", sess.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "query processing failed")
		return
	}
	if result.Failed {
		g.sendJSONError(w, http.StatusInternalServerError, "query processing failed")
		return
	}

	answer := string(agg.answer)
	if answer == "" {
		answer = clarificationText
	}

	orgInfo := "Searched in: Global FAQ Database"
	if req.OrgID != "" {
		if org, lookupErr := g.orgs.Lookup(req.OrgID); lookupErr == nil {
			orgInfo = fmt.Sprintf("Searched in: %s", org.Name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(QueryResponse{
		Answer:  answer,
		Status:  "success",
		OrgInfo: orgInfo,
	})
}

// sseFrameWriter writes protocol frames as Server-Sent Events, one frame per
// event, flushing after each so chunks reach the client immediately.
type sseFrameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseFrameWriter) WriteFrame(frame protocol.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", frame.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleQueryStream handles POST /query/stream: the answer streams back as
// SSE with the same start/chunk/end framing the WebSocket transport uses.
func (g *Gateway) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req := g.decodeHTTPTurnRequest(w, r)
	if req == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sess, err := g.resolveAPISession(r, req)
	if err != nil {
		g.logger.Error("session resolution failed", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fw := &sseFrameWriter{w: w, flusher: flusher}
	if _, err := g.runTurn(r.Context(), sess, req, fw); err != nil {
		// Headers are already sent; nothing more can be delivered.
		g.logger.Error("stream turn failed", "session_id", sess.ID, "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
