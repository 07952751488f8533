// Package protocol normalizes the two inbound message shapes spoken by board
// clients into one Event, and builds the outbound frames both client
// generations understand.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownEvent = errors.New("unknown event")
)

// Kind canonical inbound event
type Kind int

const (
	KindUnknown Kind = iota
	KindDraw
	KindCursor
	KindClear
	KindPresence
	KindPing
	KindBoardUpdate
)

func (k Kind) String() string {
	switch k {
	case KindDraw:
		return "DRAW"
	case KindCursor:
		return "CURSOR"
	case KindClear:
		return "CLEAR"
	case KindPresence:
		return "PRESENCE"
	case KindPing:
		return "PING"
	case KindBoardUpdate:
		return "BOARD_UPDATE"
	default:
		return "UNKNOWN"
	}
}

// PresenceAction join | leave
type PresenceAction string

const (
	ActionJoin  PresenceAction = "join"
	ActionLeave PresenceAction = "leave"
)

// Envelope raw wire shape. Enhanced clients fill eventType/payload, legacy
// clients fill type/data.
type Envelope struct {
	EventType string          `json:"eventType,omitempty"`
	Type      string          `json:"type,omitempty"`
	BoardID   string          `json:"boardId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
}

// Event normalized inbound event
type Event struct {
	Kind      Kind
	BoardID   string          // board named by the sender, may be empty
	Body      json.RawMessage // payload or data, whichever the shape uses
	Action    PresenceAction  // KindPresence only
	Timestamp int64
}

type kindEntry struct {
	kind   Kind
	action PresenceAction
}

// names are matched after lower-casing, so DRAW, draw and Draw are the same.
var names = map[string]kindEntry{
	"draw":          {kind: KindDraw},
	"cursor":        {kind: KindCursor},
	"cursor_update": {kind: KindCursor},
	"cursor_move":   {kind: KindCursor},
	"clear":         {kind: KindClear},
	"presence":      {kind: KindPresence},
	"user_join":     {kind: KindPresence, action: ActionJoin},
	"user_leave":    {kind: KindPresence, action: ActionLeave},
	"ping":          {kind: KindPing},
	"board_update":  {kind: KindBoardUpdate},
}

// Decode parses a raw frame. eventType wins when both discriminants are set.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Normalize(env)
}

// Normalize maps either envelope shape onto an Event.
func Normalize(env Envelope) (Event, error) {
	name, body := env.EventType, env.Payload
	if name == "" {
		name, body = env.Type, env.Data
	}
	if name == "" {
		return Event{}, fmt.Errorf("%w: no discriminant", ErrMalformed)
	}

	entry, ok := names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	ev := Event{
		Kind:      entry.kind,
		BoardID:   env.BoardID,
		Body:      body,
		Action:    entry.action,
		Timestamp: int64(env.Timestamp),
	}

	switch ev.Kind {
	case KindPresence:
		if ev.Action == "" {
			action, err := presenceAction(body)
			if err != nil {
				return Event{}, err
			}
			ev.Action = action
		}
	case KindDraw:
		// DRAW carrying a whole board is the enhanced spelling of BOARD_UPDATE.
		if blob, ok := boardData(body); ok {
			ev.Kind = KindBoardUpdate
			ev.Body = blob
		}
	}
	return ev, nil
}

func presenceAction(body json.RawMessage) (PresenceAction, error) {
	var p struct {
		Action string `json:"action"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			return "", fmt.Errorf("%w: presence payload: %v", ErrMalformed, err)
		}
	}
	switch PresenceAction(strings.ToLower(p.Action)) {
	case ActionJoin:
		return ActionJoin, nil
	case ActionLeave:
		return ActionLeave, nil
	default:
		return "", fmt.Errorf("%w: presence action %q", ErrMalformed, p.Action)
	}
}

func boardData(body json.RawMessage) (json.RawMessage, bool) {
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var p struct {
		BoardData json.RawMessage `json:"boardData"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, false
	}
	if len(p.BoardData) == 0 || bytes.Equal(p.BoardData, []byte("null")) {
		return nil, false
	}
	return p.BoardData, true
}
