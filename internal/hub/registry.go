package hub

import (
	"sort"
	"sync"
	"time"

	"board-realtime/internal/identity"
	"board-realtime/internal/session"
)

// RosterEntry one present user on a board
type RosterEntry struct {
	Principal   identity.Principal
	DisplayName string
	AvatarURL   string
	JoinedAt    time.Time
	LastPing    time.Time
}

// UserID 로스터 키
func (e RosterEntry) UserID() string {
	return e.Principal.ID()
}

// Registry board-partitioned connection/session/roster state. Each board has
// its own lock; boards never block each other.
type Registry struct {
	mu     sync.Mutex
	boards map[string]*partition
}

type partition struct {
	mu        sync.Mutex
	dead      bool
	clients   map[*Client]*session.BoardSession
	userConns map[string]int
	roster    map[string]*RosterEntry
}

// Removal result of Unregister
type Removal struct {
	Session    *session.BoardSession
	LeftRoster bool // the user's roster entry went with this connection
	Roster     []RosterEntry
}

// NewRegistry 빈 레지스트리 생성
func NewRegistry() *Registry {
	return &Registry{boards: make(map[string]*partition)}
}

// lock returns the locked live partition for boardID, creating it if asked.
// The registry lock is never held while waiting on a partition.
func (r *Registry) lock(boardID string, create bool) *partition {
	for {
		r.mu.Lock()
		p, ok := r.boards[boardID]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			p = &partition{
				clients:   make(map[*Client]*session.BoardSession),
				userConns: make(map[string]int),
				roster:    make(map[string]*RosterEntry),
			}
			r.boards[boardID] = p
		}
		r.mu.Unlock()

		p.mu.Lock()
		if !p.dead {
			return p
		}
		p.mu.Unlock()
	}
}

// Register adds c and its session. newUser is true when the user was not on
// the roster before, i.e. a join should be announced.
func (r *Registry) Register(c *Client, now time.Time) (newUser bool, roster []RosterEntry) {
	sess := c.session
	p := r.lock(sess.BoardID, true)
	defer p.mu.Unlock()

	p.clients[c] = sess
	userID := sess.UserID()
	p.userConns[userID]++

	if e, ok := p.roster[userID]; ok {
		e.LastPing = now
	} else {
		p.roster[userID] = &RosterEntry{
			Principal:   sess.Principal,
			DisplayName: sess.DisplayName,
			AvatarURL:   sess.AvatarURL,
			JoinedAt:    now,
			LastPing:    now,
		}
		newUser = true
	}
	return newUser, p.snapshot()
}

// Unregister removes c from connections, sessions and (if it was the user's
// last connection) the roster in one step. ok is false when c was not
// registered, so a second call is a no-op.
func (r *Registry) Unregister(c *Client) (Removal, bool) {
	boardID := c.session.BoardID
	p := r.lock(boardID, false)
	if p == nil {
		return Removal{}, false
	}

	sess, ok := p.clients[c]
	if !ok {
		p.mu.Unlock()
		return Removal{}, false
	}
	delete(p.clients, c)

	rm := Removal{Session: sess}
	userID := sess.UserID()
	p.userConns[userID]--
	if p.userConns[userID] <= 0 {
		delete(p.userConns, userID)
		if _, present := p.roster[userID]; present {
			delete(p.roster, userID)
			rm.LeftRoster = true
		}
	}
	rm.Roster = p.snapshot()

	empty := len(p.clients) == 0
	if empty {
		p.dead = true
	}
	p.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.boards[boardID] == p {
			delete(r.boards, boardID)
		}
		r.mu.Unlock()
	}
	return rm, true
}

// SessionOf 연결의 세션 조회
func (r *Registry) SessionOf(c *Client) (*session.BoardSession, bool) {
	p := r.lock(c.session.BoardID, false)
	if p == nil {
		return nil, false
	}
	defer p.mu.Unlock()

	sess, ok := p.clients[c]
	return sess, ok
}

// Touch refreshes the connection's activity. rejoined is true when the user
// had been evicted as stale and is back on the roster.
func (r *Registry) Touch(c *Client, now time.Time) (rejoined bool, entry RosterEntry, roster []RosterEntry) {
	p := r.lock(c.session.BoardID, false)
	if p == nil {
		return false, RosterEntry{}, nil
	}
	defer p.mu.Unlock()

	sess, ok := p.clients[c]
	if !ok {
		return false, RosterEntry{}, nil
	}
	sess.Touch(now)

	userID := sess.UserID()
	e, present := p.roster[userID]
	if present {
		e.LastPing = now
		return false, *e, nil
	}

	e = &RosterEntry{
		Principal:   sess.Principal,
		DisplayName: sess.DisplayName,
		AvatarURL:   sess.AvatarURL,
		JoinedAt:    now,
		LastPing:    now,
	}
	p.roster[userID] = e
	return true, *e, p.snapshot()
}

// Sweep evicts roster entries idle for longer than staleAfter. Connections
// stay registered.
func (r *Registry) Sweep(boardID string, now time.Time, staleAfter time.Duration) (evicted, roster []RosterEntry) {
	p := r.lock(boardID, false)
	if p == nil {
		return nil, nil
	}
	defer p.mu.Unlock()

	for userID, e := range p.roster {
		if now.Sub(e.LastPing) > staleAfter {
			evicted = append(evicted, *e)
			delete(p.roster, userID)
		}
	}
	if len(evicted) == 0 {
		return nil, nil
	}
	sortEntries(evicted)
	return evicted, p.snapshot()
}

// Peers snapshot of the board's connections except exclude
func (r *Registry) Peers(boardID string, exclude *Client) []*Client {
	p := r.lock(boardID, false)
	if p == nil {
		return nil
	}
	defer p.mu.Unlock()

	peers := make([]*Client, 0, len(p.clients))
	for c := range p.clients {
		if c != exclude {
			peers = append(peers, c)
		}
	}
	return peers
}

// Roster snapshot ordered by join time
func (r *Registry) Roster(boardID string) []RosterEntry {
	p := r.lock(boardID, false)
	if p == nil {
		return nil
	}
	defer p.mu.Unlock()

	return p.snapshot()
}

// All every registered connection on every board
func (r *Registry) All() []*Client {
	r.mu.Lock()
	ids := make([]string, 0, len(r.boards))
	for id := range r.boards {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var all []*Client
	for _, id := range ids {
		all = append(all, r.Peers(id, nil)...)
	}
	return all
}

// Stats 보드 수 / 연결 수
func (r *Registry) Stats() (boards, connections int) {
	r.mu.Lock()
	parts := make([]*partition, 0, len(r.boards))
	for _, p := range r.boards {
		parts = append(parts, p)
	}
	r.mu.Unlock()

	for _, p := range parts {
		p.mu.Lock()
		if !p.dead {
			boards++
			connections += len(p.clients)
		}
		p.mu.Unlock()
	}
	return boards, connections
}

func (p *partition) snapshot() []RosterEntry {
	out := make([]RosterEntry, 0, len(p.roster))
	for _, e := range p.roster {
		out = append(out, *e)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []RosterEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].UserID() < entries[j].UserID()
	})
}
