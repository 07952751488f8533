package hub

import (
	"context"
	"log"
	"time"

	"board-realtime/internal/model"
	"board-realtime/internal/protocol"
)

// handle routes one inbound frame. It returns false when the connection
// should end (the peer announced it is leaving).
func (h *Hub) handle(c *Client, raw []byte) bool {
	sess := c.session
	boardID := sess.BoardID

	ev, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("[Board %s] Ignoring frame from %s: %v", boardID, sess.UserID(), err)
		return true
	}
	if ev.BoardID != "" && ev.BoardID != boardID {
		log.Printf("[Board %s] Ignoring %s from %s addressed to board %s", boardID, ev.Kind, sess.UserID(), ev.BoardID)
		return true
	}

	if ev.Kind == protocol.KindPresence && ev.Action == protocol.ActionLeave {
		h.disconnect(c, "left")
		return false
	}

	h.touch(c)

	switch ev.Kind {
	case protocol.KindPing:
		if err := h.sendTo(c, protocol.PongMessage(boardID, h.timestamp())); err != nil {
			h.disconnect(c, "pong failed")
			return false
		}

	case protocol.KindCursor:
		cur, err := protocol.ParseCursor(ev.Body)
		if err != nil {
			log.Printf("[Board %s] Bad cursor from %s: %v", boardID, sess.UserID(), err)
			return true
		}
		h.broadcast(boardID, protocol.CursorMessage(boardID, sess.UserID(), cur, sess.DisplayName, sess.AvatarURL, h.timestamp()), c, "")

	case protocol.KindDraw:
		if !sess.Can(model.RoleEditor) {
			return true
		}
		stroke, err := protocol.ParseStroke(ev.Body, sess.UserID(), h.now())
		if err != nil {
			log.Printf("[Board %s] Bad stroke from %s: %v", boardID, sess.UserID(), err)
			return true
		}
		if !sess.Anonymous() && h.strokes != nil {
			row := stroke.Model(boardID)
			strokeID := stroke.ID
			h.inflight.add(boardID, stroke)
			submitted := h.writer.Submit("stroke insert "+strokeID, func(ctx context.Context) error {
				defer h.inflight.done(boardID, strokeID)
				return h.strokes.Insert(ctx, row)
			})
			if !submitted {
				h.inflight.done(boardID, strokeID)
			}
		}
		h.broadcast(boardID, protocol.DrawMessage(boardID, stroke, h.timestamp()), c, stroke.ID)

	case protocol.KindClear:
		if !sess.Can(model.RoleEditor) {
			return true
		}
		// History is kept; late joiners still replay strokes drawn before a clear.
		h.broadcast(boardID, protocol.ClearMessage(boardID, sess.UserID(), h.timestamp()), c, "")

	case protocol.KindBoardUpdate:
		if !sess.Can(model.RoleEditor) {
			return true
		}
		if len(ev.Body) == 0 {
			log.Printf("[Board %s] Empty board update from %s", boardID, sess.UserID())
			return true
		}
		blob := ev.Body
		if !sess.Anonymous() && h.boards != nil {
			h.writer.Submit("board data "+boardID, func(ctx context.Context) error {
				return h.boards.UpdateData(ctx, boardID, blob)
			})
		}
		h.broadcast(boardID, protocol.BoardDataMessage(boardID, sess.UserID(), blob, h.timestamp()), c, "")
	}
	return true
}

// replay sends the joiner the current roster and then every persisted
// stroke, oldest first, followed by strokes still waiting to be stored.
// A send failure aborts replay.
func (h *Hub) replay(c *Client) error {
	sess := c.session
	boardID := sess.BoardID

	welcome := protocol.PresenceMessage(boardID, sess.UserID(), protocol.ActionJoin, sess.DisplayName, sess.AvatarURL,
		rosterUsers(h.registry.Roster(boardID)), h.timestamp())
	if err := h.sendDirect(c, welcome, ""); err != nil {
		return err
	}

	if h.strokes == nil {
		return nil
	}

	// inflight is read first: a stroke whose insert lands after this point is
	// still in the snapshot, one that landed before is in ListByBoard.
	unsaved := h.inflight.snapshot(boardID)

	ctx, cancel := context.WithTimeout(context.Background(), h.writerTimeout())
	rows, err := h.strokes.ListByBoard(ctx, boardID)
	cancel()
	if err != nil {
		// Live collaboration still works without history.
		log.Printf("[Board %s] Failed to load history: %v", boardID, err)
		rows = nil
	}

	sent := make(map[string]struct{}, len(rows)+len(unsaved))
	strokes := make([]protocol.Stroke, 0, len(rows)+len(unsaved))
	for i := range rows {
		s := protocol.StrokeFromModel(&rows[i])
		sent[s.ID] = struct{}{}
		strokes = append(strokes, s)
	}
	for _, s := range unsaved {
		if _, dup := sent[s.ID]; dup {
			continue
		}
		strokes = append(strokes, s)
	}

	for _, s := range strokes {
		if err := h.sendDirect(c, protocol.DrawMessage(boardID, s, h.timestamp()), s.ID); err != nil {
			return err
		}
	}
	if len(strokes) > 0 {
		log.Printf("[Board %s] Replayed %d strokes to %s (%d not yet stored)", boardID, len(strokes), sess.UserID(), len(strokes)-len(rows))
	}
	return nil
}

func (h *Hub) sendDirect(c *Client, msg protocol.Message, strokeID string) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.sendDirect(data, strokeID)
}

func (h *Hub) writerTimeout() time.Duration {
	return h.writer.timeout
}
