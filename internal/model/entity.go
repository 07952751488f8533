package model

import (
	"time"
)

// User 인증된 사용자 (자격 증명 발급은 외부 서비스 담당)
type User struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	DisplayName string    `gorm:"type:varchar(100)" json:"display_name"`
	AvatarURL   string    `gorm:"type:text" json:"avatar_url"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "auth_users"
}

// Board 화이트보드
type Board struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title     string    `gorm:"type:varchar(200)" json:"title"`
	OwnerID   *string   `gorm:"type:varchar(64);index" json:"owner_id,omitempty"`
	Data      *string   `gorm:"type:jsonb" json:"data,omitempty"` // 레거시 전체 상태 blob
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Board) TableName() string {
	return "boards"
}

// BoardPermission 보드 협업자 권한
type BoardPermission struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_board_permissions_board_user" json:"board_id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_board_permissions_board_user" json:"user_id"`
	Role      Role      `gorm:"type:varchar(20);not null" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BoardPermission) TableName() string {
	return "board_permissions"
}

// ShareToken 공유 링크 토큰 (viewer | editor 만 허용)
type ShareToken struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BoardID    string     `gorm:"type:varchar(64);not null;index" json:"board_id"`
	Token      string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"token"`
	Role       Role       `gorm:"type:varchar(20);not null" json:"role"`
	Enabled    bool       `gorm:"not null;default:true" json:"enabled"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (ShareToken) TableName() string {
	return "board_share_tokens"
}

// Presence 보드 접속 상태 (인증 사용자만 기록)
type Presence struct {
	BoardID     string    `gorm:"primaryKey;type:varchar(64)" json:"board_id"`
	UserID      string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	ConnectedAt time.Time `gorm:"not null" json:"connected_at"`
	LastSeen    time.Time `gorm:"not null;index" json:"last_seen"`
}

func (Presence) TableName() string {
	return "presence"
}
