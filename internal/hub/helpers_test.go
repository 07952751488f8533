package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/contrib/websocket"
	"github.com/stretchr/testify/require"

	"board-realtime/internal/database"
	"board-realtime/internal/identity"
	"board-realtime/internal/model"
	"board-realtime/internal/presence"
	"board-realtime/internal/protocol"
	"board-realtime/internal/session"
	"board-realtime/internal/store"
)

type fakeConn struct {
	in      chan []byte
	closeCh chan struct{}

	mu         sync.Mutex
	out        [][]byte
	closed     bool
	failWrites bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 64), closeCh: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.in:
		return websocket.TextMessage, m, nil
	case <-f.closeCh:
		return 0, nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("use of closed connection")
	}
	if f.failWrites {
		return errors.New("broken pipe")
	}
	f.out = append(f.out, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeConn) breakWrites() {
	f.mu.Lock()
	f.failWrites = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) sendRaw(s string) {
	f.in <- []byte(s)
}

type frame struct {
	EventType string          `json:"eventType"`
	Type      string          `json:"type"`
	BoardID   string          `json:"boardId"`
	UserID    string          `json:"userId"`
	Payload   json.RawMessage `json:"payload"`
	Data      json.RawMessage `json:"data"`
}

func (fr frame) presence(t *testing.T) protocol.PresencePayload {
	t.Helper()
	var p protocol.PresencePayload
	require.NoError(t, json.Unmarshal(fr.Payload, &p))
	return p
}

func (fr frame) stroke(t *testing.T) protocol.Stroke {
	t.Helper()
	var p protocol.DrawPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &p))
	return p.Stroke
}

func (f *fakeConn) frames() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]frame, 0, len(f.out))
	for _, raw := range f.out {
		var fr frame
		if err := json.Unmarshal(raw, &fr); err == nil {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeConn) framesOf(eventType string) []frame {
	var out []frame
	for _, fr := range f.frames() {
		if fr.EventType == eventType {
			out = append(out, fr)
		}
	}
	return out
}

// presenceOf PRESENCE frames with the given action about userID
func (f *fakeConn) presenceOf(t *testing.T, action protocol.PresenceAction, userID string) []frame {
	var out []frame
	for _, fr := range f.framesOf(protocol.EventPresence) {
		if fr.UserID == userID && fr.presence(t).Action == action {
			out = append(out, fr)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	hub      *Hub
	clock    *clock.Mock
	strokes  *store.StrokeStore
	presence *store.PresenceStore
	boards   *store.BoardStore
}

func newHarness(t *testing.T, tune ...func(h *harness, s *Stores, o *Options)) *harness {
	t.Helper()

	db := database.OpenTest(t)
	require.NoError(t, db.Create(&model.Board{ID: "b1", Title: "Board"}).Error)

	mock := clock.NewMock()
	mock.Set(time.Unix(1_700_000_000, 0).UTC())

	h := &harness{
		t:        t,
		clock:    mock,
		strokes:  store.NewStrokeStore(db),
		presence: store.NewPresenceStore(db),
		boards:   store.NewBoardStore(db),
	}
	stores := Stores{Strokes: h.strokes, Presence: h.presence, Boards: h.boards}
	opts := Options{
		StaleAfter:       30 * time.Second,
		WriteTimeout:     time.Second,
		MaxPending:       256,
		PersistQueueSize: 256,
		PersistTimeout:   5 * time.Second,
		Clock:            mock,
	}
	for _, fn := range tune {
		fn(h, &stores, &opts)
	}
	h.hub = New(stores, opts)
	t.Cleanup(h.hub.Close)
	return h
}

func member(userID string, role model.Role) identity.Identity {
	return identity.Identity{
		Principal:   identity.Authenticated(identity.UserID(userID)),
		DisplayName: userID,
		Role:        role,
	}
}

func guest(role model.Role) identity.Identity {
	return identity.Identity{Principal: identity.Anonymous(), DisplayName: "Guest", Role: role}
}

// connect serves a fake connection and waits until it is live.
func (h *harness) connect(boardID string, id identity.Identity) (*fakeConn, *Client) {
	h.t.Helper()

	conn := newFakeConn()
	go h.hub.Serve(conn, boardID, id)

	var client *Client
	require.Eventually(h.t, func() bool {
		for _, c := range h.hub.registry.Peers(boardID, nil) {
			if c.conn == conn && c.session.GetState() == session.StateActive {
				client = c
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
	return conn, client
}

// sync round-trips a PING so every frame sent before it has been handled.
func (h *harness) sync(conn *fakeConn) {
	h.t.Helper()

	before := len(conn.framesOf(protocol.EventPong))
	conn.sendRaw(`{"eventType":"PING"}`)
	require.Eventually(h.t, func() bool {
		return len(conn.framesOf(protocol.EventPong)) > before
	}, 2*time.Second, time.Millisecond)
}

func (h *harness) waitFrames(conn *fakeConn, eventType string, n int) []frame {
	h.t.Helper()

	require.Eventually(h.t, func() bool {
		return len(conn.framesOf(eventType)) >= n
	}, 2*time.Second, time.Millisecond)
	return conn.framesOf(eventType)
}

func (h *harness) strokeCount(boardID string) int64 {
	h.t.Helper()
	h.hub.Flush()
	n, err := h.strokes.Count(context.Background(), boardID)
	require.NoError(h.t, err)
	return n
}

// gatedStrokes holds every insert until the gate is closed.
type gatedStrokes struct {
	StrokeStore
	gate chan struct{}
}

func (g *gatedStrokes) Insert(ctx context.Context, stroke *model.Stroke) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.StrokeStore.Insert(ctx, stroke)
}

// hungMirror never answers until the job deadline.
type hungMirror struct{}

func (hungMirror) Join(ctx context.Context, _ string, _ presence.Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hungMirror) Touch(ctx context.Context, _, _ string, _ time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hungMirror) Leave(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingMirror remembers which users were mirrored.
type recordingMirror struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
	touch  []string
}

func (m *recordingMirror) Join(_ context.Context, _ string, e presence.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, e.UserID)
	return nil
}

func (m *recordingMirror) Touch(_ context.Context, _, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touch = append(m.touch, userID)
	return nil
}

func (m *recordingMirror) Leave(_ context.Context, _, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, userID)
	return nil
}

func (m *recordingMirror) seen() (joins, touches, leaves []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joins...), append([]string(nil), m.touch...), append([]string(nil), m.leaves...)
}
