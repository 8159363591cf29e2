// ABOUTME: Core turn pump: lease, context build, runtime stream, delta assembly, framing
// ABOUTME: All failures are contained here so a bad turn never corrupts the session or connection

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/typo-labs/typo-gateway/internal/protocol"
	"github.com/typo-labs/typo-gateway/internal/runtime"
	"github.com/typo-labs/typo-gateway/internal/session"
	"github.com/typo-labs/typo-gateway/internal/turn"
)

// apologyText is the one user-visible failure message. It is delivered as a
// regular chunk so the client renders it like any answer text.
const apologyText = "Sorry, an error occurred while generating a response."

// clarificationText is the fallback answer when the runtime completed a turn
// without producing any text.
const clarificationText = "Would you like to clarify your question? I can help with engineering management, delivery, or team effectiveness."

// turnResult reports how a turn ended.
type turnResult struct {
	// Answer is the concatenation of all deltas emitted for the turn.
	Answer string
	// Failed is true when the runtime failed mid-turn; the apology text was
	// already delivered as a chunk and the turn was closed with end.
	Failed bool
}

// runTurn processes one turn end to end: acquire the session lease, record
// the turn, build the prompt context, stream the runtime's snapshots through
// a fresh delta assembler, and frame the result. The lease is released on
// every exit path. Caller-error validation has already happened in decode;
// errors returned here are request-level failures that occur before the
// start frame is emitted (store/runtime unavailable, canceled context).
func (g *Gateway) runTurn(ctx context.Context, sess *session.Session, req *protocol.TurnRequest, fw protocol.FrameWriter) (*turnResult, error) {
	lease, err := g.serializer.Acquire(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("acquiring turn lease: %w", err)
	}
	defer lease.Release()

	contextString, err := g.orgs.BuildQueryContext(req.Query, req.OrgID)
	if err != nil {
		return nil, err
	}

	turnRec := &session.Turn{
		SessionID: sess.ID,
		Query:     req.Query,
		OrgID:     req.OrgID,
	}
	if err := g.store.CreateTurn(ctx, turnRec); err != nil {
		return nil, err
	}

	rt, err := g.runtime.Get()
	if err != nil {
		g.failTurn(turnRec.ID)
		return nil, fmt.Errorf("runtime unavailable: %w", err)
	}

	events, err := rt.Run(ctx, &runtime.RunRequest{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Content:   contextString,
	})
	if err != nil {
		g.failTurn(turnRec.ID)
		return nil, fmt.Errorf("starting runtime turn: %w", err)
	}

	tw := protocol.NewTurnWriter(fw)
	if err := tw.Start(); err != nil {
		g.failTurn(turnRec.ID)
		return nil, fmt.Errorf("writing start frame: %w", err)
	}

	return g.pumpTurn(ctx, turnRec.ID, events, tw)
}

// pumpTurn drives one turn's event stream into the frame writer. A single
// goroutine both consumes runtime events and transmits frames, so deltas
// reach the transport in exactly the order the assembler produced them.
func (g *Gateway) pumpTurn(ctx context.Context, turnID string, events <-chan runtime.Event, tw *protocol.TurnWriter) (*turnResult, error) {
	assembler := turn.NewAssembler(g.logger)
	streaming := false

	progress := time.NewTimer(g.config.Runtime.TurnTimeout)
	defer progress.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client is gone: no further writes, but the turn record and
			// lease are still cleaned up.
			g.failTurn(turnID)
			return nil, ctx.Err()

		case <-progress.C:
			g.logger.Warn("turn timed out without forward progress", "turn_id", turnID)
			g.failTurn(turnID)
			if err := g.closeWithApology(tw); err != nil {
				return nil, err
			}
			return &turnResult{Answer: assembler.Emitted(), Failed: true}, nil

		case event, ok := <-events:
			if !ok {
				// Runtime closed the stream without a terminal event.
				g.finishTurn(turnID, session.TurnCompleted)
				if err := tw.End(); err != nil {
					return nil, err
				}
				return &turnResult{Answer: assembler.Emitted()}, nil
			}

			resetTimer(progress, g.config.Runtime.TurnTimeout)

			switch event.Type {
			case runtime.EventSnapshot:
				if !streaming {
					streaming = true
					g.markStreaming(turnID)
				}
				if delta, ok := assembler.Consume(event.Snapshot); ok {
					if err := tw.Chunk(delta.Text); err != nil {
						g.failTurn(turnID)
						return nil, fmt.Errorf("writing chunk: %w", err)
					}
				}

			case runtime.EventToolCall:
				if event.Tool != nil {
					g.logger.Debug("runtime tool invocation", "turn_id", turnID, "tool", event.Tool.Name)
				}

			case runtime.EventToolResult:
				if event.Result != nil {
					g.logger.Debug("runtime tool result", "turn_id", turnID, "tool_id", event.Result.ID, "is_error", event.Result.IsError)
				}

			case runtime.EventDone:
				g.finishTurn(turnID, session.TurnCompleted)
				if err := tw.End(); err != nil {
					return nil, err
				}
				return &turnResult{Answer: assembler.Emitted()}, nil

			case runtime.EventError:
				g.logger.Error("runtime failed mid-turn", "turn_id", turnID, "error", event.Err)
				g.failTurn(turnID)
				if err := g.closeWithApology(tw); err != nil {
					return nil, err
				}
				return &turnResult{Answer: assembler.Emitted(), Failed: true}, nil
			}
		}
	}
}

// closeWithApology delivers the apology chunk and closes the turn. The
// session stays usable for the next turn.
func (g *Gateway) closeWithApology(tw *protocol.TurnWriter) error {
	if err := tw.Chunk(apologyText); err != nil {
		return fmt.Errorf("writing apology: %w", err)
	}
	if err := tw.End(); err != nil {
		return fmt.Errorf("writing end frame: %w", err)
	}
	return nil
}

// resetTimer safely rearms a timer that may have fired.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Turn-state bookkeeping failures must never break an in-flight stream, so
// they are logged and swallowed here.

func (g *Gateway) markStreaming(turnID string) {
	if err := g.store.UpdateTurnState(context.Background(), turnID, session.TurnStreaming); err != nil {
		g.logger.Warn("failed to mark turn streaming", "turn_id", turnID, "error", err)
	}
}

func (g *Gateway) finishTurn(turnID, state string) {
	if err := g.store.UpdateTurnState(context.Background(), turnID, state); err != nil {
		g.logger.Warn("failed to finish turn", "turn_id", turnID, "state", state, "error", err)
	}
}

func (g *Gateway) failTurn(turnID string) {
	g.finishTurn(turnID, session.TurnFailed)
}
