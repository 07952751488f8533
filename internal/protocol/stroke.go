package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"board-realtime/internal/model"
)

const (
	MinThickness     = 1
	MaxThickness     = 64
	DefaultThickness = 2
	DefaultColor     = "#000000"
)

// Stroke committed stroke as it travels on the wire
type Stroke struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Color     string           `json:"color"`
	Width     int              `json:"width"`
	Mode      model.StrokeMode `json:"mode"`
	Points    []model.Point    `json:"points"`
	CreatedAt int64            `json:"createdAt"`
}

type strokeInput struct {
	ID        string       `json:"id"`
	Points    []pointInput `json:"points"`
	Color     string       `json:"color"`
	Width     *float64     `json:"width"`
	Thickness *float64     `json:"thickness"`
	Mode      string       `json:"mode"`
}

type pointInput struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// ParseStroke validates a DRAW body, either {stroke:{...}} or the stroke
// itself. The author is always userID, whatever the client claims.
func ParseStroke(body json.RawMessage, userID string, now time.Time) (Stroke, error) {
	if len(body) == 0 {
		return Stroke{}, fmt.Errorf("%w: empty stroke", ErrMalformed)
	}

	var wrapped struct {
		Stroke json.RawMessage `json:"stroke"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return Stroke{}, fmt.Errorf("%w: stroke: %v", ErrMalformed, err)
	}
	if len(wrapped.Stroke) > 0 && !bytes.Equal(wrapped.Stroke, []byte("null")) {
		body = wrapped.Stroke
	}

	var in strokeInput
	if err := json.Unmarshal(body, &in); err != nil {
		return Stroke{}, fmt.Errorf("%w: stroke: %v", ErrMalformed, err)
	}

	if len(in.Points) < 2 {
		return Stroke{}, fmt.Errorf("%w: stroke needs at least 2 points, got %d", ErrMalformed, len(in.Points))
	}
	points := make([]model.Point, 0, len(in.Points))
	for i, p := range in.Points {
		if p.X == nil || p.Y == nil || !finite(*p.X) || !finite(*p.Y) {
			return Stroke{}, fmt.Errorf("%w: point %d is not finite", ErrMalformed, i)
		}
		points = append(points, model.Point{X: *p.X, Y: *p.Y})
	}

	width := in.Width
	if width == nil {
		width = in.Thickness
	}
	thickness := DefaultThickness
	if width != nil {
		thickness = ClampThickness(*width)
	}

	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = DefaultColor
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	return Stroke{
		ID:        id,
		UserID:    userID,
		Color:     color,
		Width:     thickness,
		Mode:      ParseMode(in.Mode),
		Points:    points,
		CreatedAt: now.UnixMilli(),
	}, nil
}

// ClampThickness floors v into [MinThickness, MaxThickness]; non-finite
// widths fall back to DefaultThickness.
func ClampThickness(v float64) int {
	if !finite(v) {
		return DefaultThickness
	}
	v = math.Floor(v)
	if v < MinThickness {
		return MinThickness
	}
	if v > MaxThickness {
		return MaxThickness
	}
	return int(v)
}

// ParseMode anything but erase draws.
func ParseMode(s string) model.StrokeMode {
	if strings.EqualFold(strings.TrimSpace(s), string(model.StrokeModeErase)) {
		return model.StrokeModeErase
	}
	return model.StrokeModeDraw
}

// Model converts to the persisted row.
func (s Stroke) Model(boardID string) *model.Stroke {
	return &model.Stroke{
		StrokeID:  s.ID,
		BoardID:   boardID,
		UserID:    s.UserID,
		PathData:  model.PathData{Points: s.Points, Mode: s.Mode},
		Color:     s.Color,
		Thickness: s.Width,
		CreatedAt: time.UnixMilli(s.CreatedAt),
	}
}

// StrokeFromModel converts a persisted row for replay.
func StrokeFromModel(m *model.Stroke) Stroke {
	mode := m.PathData.Mode
	if mode == "" {
		mode = model.StrokeModeDraw
	}
	return Stroke{
		ID:        m.StrokeID,
		UserID:    m.UserID,
		Color:     m.Color,
		Width:     m.Thickness,
		Mode:      mode,
		Points:    m.PathData.Points,
		CreatedAt: m.CreatedAt.UnixMilli(),
	}
}

// Cursor pointer position
type Cursor struct {
	X float64
	Y float64
}

// ParseCursor requires finite x and y.
func ParseCursor(body json.RawMessage) (Cursor, error) {
	var in pointInput
	if len(body) == 0 {
		return Cursor{}, fmt.Errorf("%w: empty cursor", ErrMalformed)
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return Cursor{}, fmt.Errorf("%w: cursor: %v", ErrMalformed, err)
	}
	if in.X == nil || in.Y == nil || !finite(*in.X) || !finite(*in.Y) {
		return Cursor{}, fmt.Errorf("%w: cursor position", ErrMalformed)
	}
	return Cursor{X: *in.X, Y: *in.Y}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
