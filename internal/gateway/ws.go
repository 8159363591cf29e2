// ABOUTME: WebSocket chat transport: one goroutine per connection, turns processed in order
// ABOUTME: Session resolved at connect and reused for the connection's lifetime

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/typo-labs/typo-gateway/internal/protocol"
)

// wsWriteTimeout bounds each frame write so a stalled client cannot wedge the
// connection goroutine.
const wsWriteTimeout = 10 * time.Second

// wsFrameWriter adapts a websocket connection to protocol.FrameWriter.
// Only the connection's single turn-processing goroutine writes to it.
type wsFrameWriter struct {
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteFrame(frame protocol.Frame) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteJSON(frame)
}

// handleWSChat upgrades the connection and serves chat turns until the client
// disconnects. Inbound messages are decoded and validated before any lease is
// taken; validation failures are answered with a structured error frame and
// the connection stays open.
func (g *Gateway) handleWSChat(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Durable identity when the client supplies one, else one session per
	// connection derived from the remote address.
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "ws_client_" + r.RemoteAddr
	}
	requestedSession := r.URL.Query().Get("session_id")

	// The request context is unreliable after the hijack; the connection
	// goroutine owns its own lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := g.store.ResolveOrCreate(ctx, g.config.Application, userID, requestedSession)
	if err != nil {
		g.logger.Error("session resolution failed", "user_id", userID, "error", err)
		fw := &wsFrameWriter{conn: conn}
		_ = fw.WriteFrame(protocol.ErrorFrame("service temporarily unavailable"))
		return
	}

	g.logger.Info("websocket connected", "session_id", sess.ID, "user_id", userID)
	defer g.logger.Info("websocket disconnected", "session_id", sess.ID)

	fw := &wsFrameWriter{conn: conn}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Error("websocket read error", "session_id", sess.ID, "error", err)
			}
			return
		}

		req, err := protocol.DecodeTurnRequest(data, g.orgs)
		if err != nil {
			if writeErr := fw.WriteFrame(protocol.ErrorFrame(rejectionText(err))); writeErr != nil {
				return
			}
			continue
		}

		if _, err := g.runTurn(ctx, sess, req, fw); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Request-level failure before the stream opened; the session
			// and connection remain usable.
			g.logger.Error("turn failed", "session_id", sess.ID, "error", err)
			if writeErr := fw.WriteFrame(protocol.ErrorFrame("service temporarily unavailable")); writeErr != nil {
				return
			}
		}
	}
}

// rejectionText maps a validation error to the client-facing rejection message.
func rejectionText(err error) string {
	if errors.Is(err, protocol.ErrEmptyQuery) {
		return "query must not be empty"
	}
	return fmt.Sprintf("request rejected: %v", err)
}
