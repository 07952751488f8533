package protocol

import (
	"encoding/json"
)

// Outbound discriminants. Frames that both client generations consume carry
// an enhanced eventType and a legacy type.
const (
	EventDraw     = "DRAW"
	EventCursor   = "CURSOR"
	EventClear    = "CLEAR"
	EventPresence = "PRESENCE"
	EventPong     = "PONG"

	TypeBoardUpdate  = "BOARD_UPDATE"
	TypeCursorUpdate = "CURSOR_UPDATE"
	TypeUserJoined   = "USER_JOINED"
	TypeUserLeft     = "USER_LEFT"
	TypePong         = "PONG"
)

// Message outbound union of both shapes
type Message struct {
	EventType string `json:"eventType,omitempty"`
	Type      string `json:"type,omitempty"`
	BoardID   string `json:"boardId"`
	UserID    string `json:"userId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RosterUser connectedUsers entry
type RosterUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

// DrawPayload payload of a stroke DRAW
type DrawPayload struct {
	Stroke Stroke `json:"stroke"`
}

// BoardDataPayload payload of a full-board DRAW
type BoardDataPayload struct {
	BoardData json.RawMessage `json:"boardData"`
}

// CursorPayload payload of CURSOR
type CursorPayload struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DisplayName string  `json:"displayName"`
	AvatarURL   string  `json:"avatarUrl"`
}

// PresencePayload payload of PRESENCE
type PresencePayload struct {
	Action         PresenceAction `json:"action"`
	DisplayName    string         `json:"displayName"`
	AvatarURL      string         `json:"avatarUrl"`
	ConnectedUsers []RosterUser   `json:"connectedUsers"`
}

// LegacyPresenceData data of USER_JOINED / USER_LEFT
type LegacyPresenceData struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// PongPayload payload of PONG
type PongPayload struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// Encode marshals an outbound frame.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DrawMessage echoes a committed stroke.
func DrawMessage(boardID string, s Stroke, ts int64) Message {
	return Message{
		EventType: EventDraw,
		BoardID:   boardID,
		UserID:    s.UserID,
		Payload:   DrawPayload{Stroke: s},
		Timestamp: ts,
	}
}

// BoardDataMessage echoes a full-board update to both client generations.
func BoardDataMessage(boardID, userID string, blob json.RawMessage, ts int64) Message {
	return Message{
		EventType: EventDraw,
		Type:      TypeBoardUpdate,
		BoardID:   boardID,
		UserID:    userID,
		Payload:   BoardDataPayload{BoardData: blob},
		Data:      blob,
		Timestamp: ts,
	}
}

// CursorMessage relays a pointer position with the sender's profile.
func CursorMessage(boardID, userID string, c Cursor, displayName, avatarURL string, ts int64) Message {
	p := CursorPayload{X: c.X, Y: c.Y, DisplayName: displayName, AvatarURL: avatarURL}
	return Message{
		EventType: EventCursor,
		Type:      TypeCursorUpdate,
		BoardID:   boardID,
		UserID:    userID,
		Payload:   p,
		Data:      p,
		Timestamp: ts,
	}
}

// ClearMessage signals a board clear.
func ClearMessage(boardID, userID string, ts int64) Message {
	return Message{
		EventType: EventClear,
		BoardID:   boardID,
		UserID:    userID,
		Timestamp: ts,
	}
}

// PresenceMessage announces a join or leave with the roster after the change.
func PresenceMessage(boardID, userID string, action PresenceAction, displayName, avatarURL string, roster []RosterUser, ts int64) Message {
	if roster == nil {
		roster = []RosterUser{}
	}
	legacy := TypeUserJoined
	if action == ActionLeave {
		legacy = TypeUserLeft
	}
	return Message{
		EventType: EventPresence,
		Type:      legacy,
		BoardID:   boardID,
		UserID:    userID,
		Payload: PresencePayload{
			Action:         action,
			DisplayName:    displayName,
			AvatarURL:      avatarURL,
			ConnectedUsers: roster,
		},
		Data:      LegacyPresenceData{DisplayName: displayName, AvatarURL: avatarURL},
		Timestamp: ts,
	}
}

// PongMessage keep-alive reply, sent to one connection only.
func PongMessage(boardID string, ts int64) Message {
	return Message{
		EventType: EventPong,
		Type:      TypePong,
		BoardID:   boardID,
		Payload:   PongPayload{Action: "pong", Timestamp: ts},
		Timestamp: ts,
	}
}
