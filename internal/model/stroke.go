package model

import (
	"time"
)

// Point 좌표
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PathData 획 경로 (jsonb)
type PathData struct {
	Points []Point    `json:"points"`
	Mode   StrokeMode `json:"mode,omitempty"`
}

// Stroke 화이트보드 획 데이터 (append-only, 생성 순서가 replay 순서)
type Stroke struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	StrokeID  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	BoardID   string    `gorm:"type:varchar(64);not null;index:idx_strokes_board_created" json:"board_id"`
	UserID    string    `gorm:"type:varchar(64);not null" json:"user_id"`
	PathData  PathData  `gorm:"type:jsonb;serializer:json;not null" json:"path_data"`
	Color     string    `gorm:"type:varchar(32);not null" json:"color"`
	Thickness int       `gorm:"not null" json:"thickness"`
	CreatedAt time.Time `gorm:"index:idx_strokes_board_created" json:"created_at"`
}

func (Stroke) TableName() string {
	return "strokes"
}
