package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"board-realtime/internal/session"
)

var (
	ErrClientClosed    = errors.New("client closed")
	ErrBacklogOverflow = errors.New("too many frames pending during backlog replay")
)

// Conn 보드 연결 전송 계층. *websocket.Conn이 이를 만족한다
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Client one board connection. Writes are serialized. Until goLive, frames
// from other connections are held so backlog replay reaches the peer first.
type Client struct {
	conn         Conn
	session      *session.BoardSession
	writeTimeout time.Duration
	maxPending   int

	writeMu sync.Mutex

	mu       sync.Mutex
	live     bool
	closed   bool
	pending  []pendingFrame
	replayed map[string]struct{}
}

type pendingFrame struct {
	data     []byte
	strokeID string
}

func newClient(conn Conn, sess *session.BoardSession, writeTimeout time.Duration, maxPending int) *Client {
	if maxPending <= 0 {
		maxPending = 512
	}
	return &Client{
		conn:         conn,
		session:      sess,
		writeTimeout: writeTimeout,
		maxPending:   maxPending,
		replayed:     make(map[string]struct{}),
	}
}

// Session 연결의 세션
func (c *Client) Session() *session.BoardSession {
	return c.session
}

// Send delivers a live frame. strokeID marks DRAW frames so a stroke already
// sent by replay is not delivered twice.
func (c *Client) Send(data []byte, strokeID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if !c.live {
		if len(c.pending) >= c.maxPending {
			c.mu.Unlock()
			return ErrBacklogOverflow
		}
		c.pending = append(c.pending, pendingFrame{data: data, strokeID: strokeID})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.write(data)
}

// sendDirect bypasses the live gate; used for replay and the joiner's own frames.
func (c *Client) sendDirect(data []byte, strokeID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if strokeID != "" {
		c.replayed[strokeID] = struct{}{}
	}
	c.mu.Unlock()

	return c.write(data)
}

// goLive flushes held frames in arrival order, then switches to direct writes.
func (c *Client) goLive() error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ErrClientClosed
		}
		if len(c.pending) == 0 {
			c.live = true
			c.replayed = nil
			c.mu.Unlock()
			return nil
		}
		batch := c.pending
		c.pending = nil
		replayed := c.replayed
		c.mu.Unlock()

		for _, f := range batch {
			if f.strokeID != "" {
				if _, dup := replayed[f.strokeID]; dup {
					continue
				}
			}
			if err := c.write(f.data); err != nil {
				return err
			}
		}
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := c.conn.(writeDeadliner); ok && c.writeTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	_ = c.conn.Close()
}
