package hub

import (
	"context"
	"log"
	"time"

	"board-realtime/internal/identity"
	"board-realtime/internal/presence"
	"board-realtime/internal/protocol"
)

// join registers c and announces the user if they were not present yet.
func (h *Hub) join(c *Client) bool {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return false
	}
	now := h.now()
	newUser, roster := h.registry.Register(c, now)
	h.mu.Unlock()

	sess := c.session
	log.Printf("[Board %s] %s joined (role=%s, anonymous=%v)", sess.BoardID, sess.UserID(), sess.Role, sess.Anonymous())

	if newUser {
		entry := RosterEntry{
			Principal:   sess.Principal,
			DisplayName: sess.DisplayName,
			AvatarURL:   sess.AvatarURL,
			JoinedAt:    now,
			LastPing:    now,
		}
		h.persistJoin(sess.BoardID, entry)
		h.announce(sess.BoardID, entry, protocol.ActionJoin, roster, c)
	}
	return true
}

// disconnect is the single cleanup path for a connection. Only the first
// call for a given connection does anything.
func (h *Hub) disconnect(c *Client, reason string) {
	sess := c.session
	if !sess.Close() {
		return
	}

	rm, ok := h.registry.Unregister(c)
	c.close()
	if !ok {
		return
	}

	log.Printf("[Board %s] %s disconnected: %s (connected %s)",
		sess.BoardID, sess.UserID(), reason, sess.Duration(h.now()).Round(time.Second))

	if rm.LeftRoster {
		h.persistLeave(sess.BoardID, sess.Principal)
		entry := RosterEntry{Principal: sess.Principal, DisplayName: sess.DisplayName, AvatarURL: sess.AvatarURL}
		h.announce(sess.BoardID, entry, protocol.ActionLeave, rm.Roster, nil)
	}
}

// touch records inbound activity; a user evicted as stale is put back on the
// roster and announced again.
func (h *Hub) touch(c *Client) {
	rejoined, entry, roster := h.registry.Touch(c, h.now())
	if !rejoined {
		return
	}

	boardID := c.session.BoardID
	log.Printf("[Board %s] %s is back after going stale", boardID, entry.UserID())
	h.persistJoin(boardID, entry)
	h.announce(boardID, entry, protocol.ActionJoin, roster, c)
}

func (h *Hub) startHeartbeat(c *Client) (stop func()) {
	if h.opts.HeartbeatInterval <= 0 {
		return func() {}
	}

	ticker := h.clock.Ticker(h.opts.HeartbeatInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				h.tick(c)
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

// tick one heartbeat for c: keep-alive to the peer, durable last_seen from
// the session's last activity, then the board's staleness sweep.
func (h *Hub) tick(c *Client) {
	sess := c.session
	if sess.IsClosed() {
		return
	}

	if err := h.sendTo(c, protocol.PongMessage(sess.BoardID, h.timestamp())); err != nil {
		h.disconnect(c, "keep-alive failed")
		return
	}

	boardID := sess.BoardID
	lastSeen := sess.LastSeen()
	if uid, ok := sess.Principal.UserID(); ok && h.presence != nil {
		h.writer.Submit("presence touch "+boardID+"/"+uid.String(), func(ctx context.Context) error {
			return h.presence.Touch(ctx, boardID, uid, lastSeen)
		})
	}
	if h.mirror != nil && !sess.Anonymous() {
		userID := sess.UserID()
		h.mirrorW.Submit("mirror touch "+boardID+"/"+userID, func(ctx context.Context) error {
			return h.mirror.Touch(ctx, boardID, userID, lastSeen)
		})
	}

	h.sweep(boardID)
}

// sweep evicts stale roster entries of a board, one leave per evicted user.
// Their connections stay open.
func (h *Hub) sweep(boardID string) {
	evicted, roster := h.registry.Sweep(boardID, h.now(), h.opts.StaleAfter)
	for _, e := range evicted {
		log.Printf("[Board %s] %s went stale (last ping %s)", boardID, e.UserID(), e.LastPing.Format(time.RFC3339))
		h.persistLeave(boardID, e.Principal)
		h.announce(boardID, e, protocol.ActionLeave, roster, nil)
	}
}

func (h *Hub) announce(boardID string, e RosterEntry, action protocol.PresenceAction, roster []RosterEntry, exclude *Client) {
	msg := protocol.PresenceMessage(boardID, e.UserID(), action, e.DisplayName, e.AvatarURL, rosterUsers(roster), h.timestamp())
	h.broadcast(boardID, msg, exclude, "")
}

func (h *Hub) persistJoin(boardID string, e RosterEntry) {
	at := e.LastPing
	if uid, ok := e.Principal.UserID(); ok && h.presence != nil {
		h.writer.Submit("presence upsert "+boardID+"/"+uid.String(), func(ctx context.Context) error {
			return h.presence.Upsert(ctx, boardID, uid, at)
		})
	}
	if h.mirror != nil && !e.Principal.IsAnonymous() {
		entry := presence.Entry{
			UserID:        e.UserID(),
			DisplayName:   e.DisplayName,
			AvatarURL:     e.AvatarURL,
			LastHeartbeat: at.Unix(),
		}
		h.mirrorW.Submit("mirror join "+boardID+"/"+entry.UserID, func(ctx context.Context) error {
			return h.mirror.Join(ctx, boardID, entry)
		})
	}
}

func (h *Hub) persistLeave(boardID string, p identity.Principal) {
	if uid, ok := p.UserID(); ok && h.presence != nil {
		h.writer.Submit("presence delete "+boardID+"/"+uid.String(), func(ctx context.Context) error {
			return h.presence.Delete(ctx, boardID, uid)
		})
	}
	if h.mirror != nil && !p.IsAnonymous() {
		userID := p.ID()
		h.mirrorW.Submit("mirror leave "+boardID+"/"+userID, func(ctx context.Context) error {
			return h.mirror.Leave(ctx, boardID, userID)
		})
	}
}

func rosterUsers(entries []RosterEntry) []protocol.RosterUser {
	users := make([]protocol.RosterUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, protocol.RosterUser{
			UserID:      e.UserID(),
			DisplayName: e.DisplayName,
			AvatarURL:   e.AvatarURL,
		})
	}
	return users
}
