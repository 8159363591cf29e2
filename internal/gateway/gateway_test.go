// ABOUTME: End-to-end gateway tests over real HTTP and WebSocket transports
// ABOUTME: Covers streaming turns, caller-error rejection, and mid-turn runtime failure

package gateway

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/typo-labs/typo-gateway/internal/config"
	"github.com/typo-labs/typo-gateway/internal/protocol"
	"github.com/typo-labs/typo-gateway/internal/runtime"
	"github.com/typo-labs/typo-gateway/internal/session"
)

// scriptedRuntime replays a fixed sequence of events per turn. Each call to
// Run consumes the next script.
type scriptedRuntime struct {
	mu      sync.Mutex
	scripts [][]runtime.Event
	calls   int
	lastReq *runtime.RunRequest
}

func (s *scriptedRuntime) Run(ctx context.Context, req *runtime.RunRequest) (<-chan runtime.Event, error) {
	s.mu.Lock()
	s.lastReq = req
	script := s.scripts[s.calls%len(s.scripts)]
	s.calls++
	s.mu.Unlock()

	out := make(chan runtime.Event, len(script))
	go func() {
		defer close(out)
		for _, ev := range script {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *scriptedRuntime) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedRuntime) last() *runtime.RunRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func snapshots(texts ...string) []runtime.Event {
	var evs []runtime.Event
	for _, t := range texts {
		evs = append(evs, runtime.Event{Type: runtime.EventSnapshot, Snapshot: t})
	}
	return append(evs, runtime.Event{Type: runtime.EventDone})
}

func newTestGateway(t *testing.T, rt runtime.Runtime) *Gateway {
	return newTestGatewayTimeout(t, rt, 5*time.Second)
}

func newTestGatewayTimeout(t *testing.T, rt runtime.Runtime, turnTimeout time.Duration) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Application: "parent_app",
		Server:      config.ServerConfig{HTTPAddr: ":0"},
		Database:    config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gw.db")},
		Runtime: config.RuntimeConfig{
			BaseURL:     "http://unused.invalid",
			TurnTimeout: turnTimeout,
		},
	}

	g, err := New(cfg, runtime.NewStaticHandle(rt), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = g.store.Close()
	})
	return g
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame protocol.Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readTurn collects frames until the end frame, returning types and the
// concatenated chunk text.
func readTurn(t *testing.T, conn *websocket.Conn) ([]string, string) {
	t.Helper()
	var types []string
	var text strings.Builder
	for {
		frame := readFrame(t, conn)
		require.Equal(t, protocol.SenderBot, frame.Sender)
		types = append(types, frame.Type)
		if frame.Type == protocol.TypeChunk {
			require.NotEmpty(t, frame.Text)
			text.WriteString(frame.Text)
		}
		if frame.Type == protocol.TypeEnd {
			return types, text.String()
		}
	}
}

func TestWSChat_StreamsAnswer(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		snapshots("Cycle", "Cycle time", "Cycle time is measured from first commit."),
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "How is cycle time measured?", "org_id": "5"}))

	types, text := readTurn(t, conn)

	assert.Equal(t, protocol.TypeStart, types[0])
	assert.Equal(t, protocol.TypeEnd, types[len(types)-1])
	assert.Equal(t, "Cycle time is measured from first commit.", text)

	require.NotNil(t, rt.last())
	assert.Equal(t, "Organization ID: 5 (Typo)\nUser Query: How is cycle time measured?", rt.last().Content)
}

func TestWSChat_UnknownOrgRejectedBeforeStart(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{snapshots("never used")}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "hello", "org_id": "999"}))

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Contains(t, frame.Text, "999")
	assert.Equal(t, 0, rt.callCount(), "no turn may start for a rejected request")

	// The connection stays open and serves the next, valid request.
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "hello again"}))
	types, _ := readTurn(t, conn)
	assert.Equal(t, protocol.TypeStart, types[0])
}

func TestWSChat_EmptyQueryRejected(t *testing.T) {
	g := newTestGateway(t, &scriptedRuntime{scripts: [][]runtime.Event{snapshots("x")}})
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "   "}))

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Contains(t, frame.Text, "empty")
}

func TestWSChat_RuntimeFailureMidStream(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		{
			{Type: runtime.EventSnapshot, Snapshot: "Sure, here"},
			{Type: runtime.EventError, Err: "model exploded"},
		},
		snapshots("Recovered answer."),
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "first"}))

	types, text := readTurn(t, conn)
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeChunk, protocol.TypeChunk, protocol.TypeEnd}, types)
	assert.Equal(t, "Sure, here"+apologyText, text)

	// The session survives the failed turn.
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "second"}))
	_, text = readTurn(t, conn)
	assert.Equal(t, "Recovered answer.", text)
}

func TestWSChat_EmptyTurnStillFramed(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		{{Type: runtime.EventDone}},
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "anything there?"}))

	types, text := readTurn(t, conn)
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeEnd}, types)
	assert.Empty(t, text)
}

func TestWSChat_ToolEventsNotForwarded(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		{
			{Type: runtime.EventToolCall, Tool: &runtime.ToolCall{ID: "t1", Name: "faq_search"}},
			{Type: runtime.EventToolResult, Result: &runtime.ToolResult{ID: "t1", Output: "hit"}},
			{Type: runtime.EventSnapshot, Snapshot: "Answer."},
			{Type: runtime.EventDone},
		},
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "q"}))

	types, text := readTurn(t, conn)
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeChunk, protocol.TypeEnd}, types)
	assert.Equal(t, "Answer.", text)
}

func TestWSChat_NonMonotonicSnapshots(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		snapshots("draft one", "rewritten answer"),
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "q"}))

	types, _ := readTurn(t, conn)
	// Two chunks (original plus corrective), framed normally.
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeChunk, protocol.TypeChunk, protocol.TypeEnd}, types)
}

// stallOnceRuntime emits nothing on its first turn; the event channel closes
// only when the turn's context ends. Later turns stream normally.
type stallOnceRuntime struct {
	mu    sync.Mutex
	calls int
}

func (s *stallOnceRuntime) Run(ctx context.Context, req *runtime.RunRequest) (<-chan runtime.Event, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()

	out := make(chan runtime.Event, 2)
	if first {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out, nil
	}

	out <- runtime.Event{Type: runtime.EventSnapshot, Snapshot: "Back to normal."}
	out <- runtime.Event{Type: runtime.EventDone}
	close(out)
	return out, nil
}

func TestWSChat_StalledRuntimeTimesOut(t *testing.T) {
	rt := &stallOnceRuntime{}
	g := newTestGatewayTimeout(t, rt, 200*time.Millisecond)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "user_id=casey")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "are you there?"}))

	// The wedged turn is forcibly failed and closed with the apology path.
	types, text := readTurn(t, conn)
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeChunk, protocol.TypeEnd}, types)
	assert.Equal(t, apologyText, text)

	// The lease was released, so the next turn on the same session proceeds.
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "and now?"}))
	types, text = readTurn(t, conn)
	assert.Equal(t, protocol.TypeEnd, types[len(types)-1])
	assert.Equal(t, "Back to normal.", text)

	sessions, err := g.store.ListSessions(context.Background(), "parent_app", "casey")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	turns, err := g.store.ListTurns(context.Background(), sessions[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, session.TurnCompleted, turns[0].State)
	assert.Equal(t, session.TurnFailed, turns[1].State)
}

func TestWSChat_NilToolPayloadsIgnored(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{
		{
			{Type: runtime.EventToolCall},
			{Type: runtime.EventToolResult},
			{Type: runtime.EventSnapshot, Snapshot: "Still fine."},
			{Type: runtime.EventDone},
		},
	}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn := dialWS(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]string{"query": "q"}))

	types, text := readTurn(t, conn)
	assert.Equal(t, []string{protocol.TypeStart, protocol.TypeChunk, protocol.TypeEnd}, types)
	assert.Equal(t, "Still fine.", text)
}

func TestNew_OrgDirectoryLoadFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gw.db")
	cfg := &config.Config{
		Application: "parent_app",
		Server:      config.ServerConfig{HTTPAddr: ":0"},
		Database:    config.DatabaseConfig{Path: dbPath},
		Runtime:     config.RuntimeConfig{BaseURL: "http://unused.invalid", TurnTimeout: time.Second},
		Orgs:        config.OrgsConfig{Path: filepath.Join(t.TempDir(), "missing.toml")},
	}

	_, err := New(cfg, runtime.NewStaticHandle(&scriptedRuntime{scripts: [][]runtime.Event{snapshots("x")}}), slog.Default())
	require.Error(t, err)

	// The store opened during the failed construction was closed; the same
	// database opens cleanly for a second attempt.
	good := *cfg
	good.Orgs.Path = ""
	g, err := New(&good, runtime.NewStaticHandle(&scriptedRuntime{scripts: [][]runtime.Event{snapshots("x")}}), slog.Default())
	require.NoError(t, err)
	require.NoError(t, g.store.Close())
}

func TestWSChat_SessionPinnedByUserID(t *testing.T) {
	rt := &scriptedRuntime{scripts: [][]runtime.Event{snapshots("hi")}}
	g := newTestGateway(t, rt)
	srv := httptest.NewServer(g.Handler())
	defer srv.Close()

	conn1 := dialWS(t, srv, "user_id=marta")
	require.NoError(t, conn1.WriteJSON(map[string]string{"query": "first"}))
	readTurn(t, conn1)
	first := rt.last().SessionID
	conn1.Close()

	sessions, err := g.store.ListSessions(context.Background(), "parent_app", "marta")
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	conn2 := dialWS(t, srv, "user_id=marta&session_id="+first)
	require.NoError(t, conn2.WriteJSON(map[string]string{"query": "second"}))
	readTurn(t, conn2)

	assert.Equal(t, first, rt.last().SessionID, "requested session id is honored for the same user")
}
