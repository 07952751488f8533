// Package hub runs live board sessions: the connection registry, presence
// roster, event routing, broadcast fan-out and background persistence.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"board-realtime/internal/config"
	"board-realtime/internal/identity"
	"board-realtime/internal/model"
	"board-realtime/internal/presence"
	"board-realtime/internal/session"
)

// StrokeStore append-only stroke persistence
type StrokeStore interface {
	Insert(ctx context.Context, stroke *model.Stroke) error
	ListByBoard(ctx context.Context, boardID string) ([]model.Stroke, error)
}

// PresenceStore durable presence rows; authenticated users only
type PresenceStore interface {
	Upsert(ctx context.Context, boardID string, userID identity.UserID, at time.Time) error
	Touch(ctx context.Context, boardID string, userID identity.UserID, at time.Time) error
	Delete(ctx context.Context, boardID string, userID identity.UserID) error
}

// BoardStore legacy full-board blob
type BoardStore interface {
	UpdateData(ctx context.Context, boardID string, blob json.RawMessage) error
}

// PresenceMirror optional external copy of the roster
type PresenceMirror interface {
	Join(ctx context.Context, boardID string, e presence.Entry) error
	Touch(ctx context.Context, boardID, userID string, at time.Time) error
	Leave(ctx context.Context, boardID, userID string) error
}

// Stores hub collaborators. Mirror may be nil.
type Stores struct {
	Strokes  StrokeStore
	Presence PresenceStore
	Boards   BoardStore
	Mirror   PresenceMirror
}

// Options hub tuning
type Options struct {
	HeartbeatInterval time.Duration // <= 0 disables per-connection tickers
	StaleAfter        time.Duration
	WriteTimeout      time.Duration
	MaxPending        int
	PersistQueueSize  int
	PersistTimeout    time.Duration
	MirrorTimeout     time.Duration // Redis 미러 job 별 timeout
	Clock             clock.Clock
}

// OptionsFromConfig 설정에서 Options 구성
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HeartbeatInterval: cfg.Board.HeartbeatInterval,
		StaleAfter:        cfg.Board.StaleAfter,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		MaxPending:        cfg.WebSocket.MaxPending,
		PersistQueueSize:  cfg.Board.PersistQueueSize,
		PersistTimeout:    cfg.Board.PersistTimeout,
		MirrorTimeout:     cfg.Board.MirrorTimeout,
	}
}

// Hub all live board sessions of this process
type Hub struct {
	opts     Options
	clock    clock.Clock
	registry *Registry
	writer   *Writer
	mirrorW  *Writer
	inflight *inflight

	strokes  StrokeStore
	presence PresenceStore
	boards   BoardStore
	mirror   PresenceMirror

	mu      sync.Mutex
	closing bool
}

// New Hub 생성
func New(stores Stores, opts Options) *Hub {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Second
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = time.Second
	}

	var mirrorW *Writer
	if stores.Mirror != nil {
		mirrorW = NewWriter(opts.PersistQueueSize, opts.MirrorTimeout)
	}

	return &Hub{
		opts:     opts,
		clock:    opts.Clock,
		registry: NewRegistry(),
		writer:   NewWriter(opts.PersistQueueSize, opts.PersistTimeout),
		mirrorW:  mirrorW,
		inflight: newInflight(),
		strokes:  stores.Strokes,
		presence: stores.Presence,
		boards:   stores.Boards,
		mirror:   stores.Mirror,
	}
}

// Serve runs one connection until the transport ends or the peer leaves:
// register, announce, replay history, then route inbound events. Cleanup runs
// exactly once on the way out.
func (h *Hub) Serve(conn Conn, boardID string, id identity.Identity) {
	sess := session.New(boardID, id, h.clock.Now())
	c := newClient(conn, sess, h.opts.WriteTimeout, h.opts.MaxPending)

	if !h.join(c) {
		_ = conn.Close()
		return
	}
	defer h.disconnect(c, "connection closed")

	stop := h.startHeartbeat(c)
	defer stop()

	if err := h.replay(c); err != nil {
		log.Printf("[Board %s] Replay to %s aborted: %v", boardID, sess.UserID(), err)
		return
	}
	if err := c.goLive(); err != nil {
		return
	}
	if !sess.Activate() {
		return
	}

	h.readLoop(c)
}

func (h *Hub) readLoop(c *Client) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !h.handle(c, raw) {
			return
		}
	}
}

// Roster live roster of a board
func (h *Hub) Roster(boardID string) []RosterEntry {
	return h.registry.Roster(boardID)
}

// Stats 보드 수 / 연결 수
func (h *Hub) Stats() (boards, connections int) {
	return h.registry.Stats()
}

// Flush waits for queued persistence and mirror jobs.
func (h *Hub) Flush() {
	h.writer.Wait()
	if h.mirrorW != nil {
		h.mirrorW.Wait()
	}
}

// PersistStats dropped / failed background writes (DB and mirror)
func (h *Hub) PersistStats() (dropped, failed int64) {
	dropped, failed = h.writer.Stats()
	if h.mirrorW != nil {
		d, f := h.mirrorW.Stats()
		dropped += d
		failed += f
	}
	return dropped, failed
}

// Close disconnects every session and drains background writes. Serve calls
// that arrive afterwards are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return
	}
	h.closing = true
	h.mu.Unlock()

	clients := h.registry.All()
	for _, c := range clients {
		h.disconnect(c, "server shutdown")
	}
	h.writer.Close()
	if h.mirrorW != nil {
		h.mirrorW.Close()
	}
	log.Printf("[Hub] Closed %d connections", len(clients))
}

func (h *Hub) now() time.Time {
	return h.clock.Now()
}

func (h *Hub) timestamp() int64 {
	return h.clock.Now().UnixMilli()
}
