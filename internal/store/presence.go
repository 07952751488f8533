package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"board-realtime/internal/identity"
	"board-realtime/internal/model"
)

// PresenceStore durable presence rows, one per (board, user). Only
// authenticated users have rows, which the identity.UserID parameter enforces.
type PresenceStore struct {
	db *gorm.DB
}

// NewPresenceStore PresenceStore 생성
func NewPresenceStore(db *gorm.DB) *PresenceStore {
	return &PresenceStore{db: db}
}

// Upsert 접속 기록 (이미 있으면 last_seen만 갱신)
func (s *PresenceStore) Upsert(ctx context.Context, boardID string, userID identity.UserID, at time.Time) error {
	row := model.Presence{
		BoardID:     boardID,
		UserID:      userID.String(),
		ConnectedAt: at,
		LastSeen:    at,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "board_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert presence %s/%s: %w", boardID, userID, err)
	}
	return nil
}

// Touch last_seen 갱신
func (s *PresenceStore) Touch(ctx context.Context, boardID string, userID identity.UserID, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.Presence{}).
		Where("board_id = ? AND user_id = ?", boardID, userID.String()).
		Update("last_seen", at).Error
	if err != nil {
		return fmt.Errorf("touch presence %s/%s: %w", boardID, userID, err)
	}
	return nil
}

// Delete 접속 기록 삭제
func (s *PresenceStore) Delete(ctx context.Context, boardID string, userID identity.UserID) error {
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID.String()).
		Delete(&model.Presence{}).Error
	if err != nil {
		return fmt.Errorf("delete presence %s/%s: %w", boardID, userID, err)
	}
	return nil
}

// ListActive since 이후 활동한 접속 기록
func (s *PresenceStore) ListActive(ctx context.Context, boardID string, since time.Time) ([]model.Presence, error) {
	var rows []model.Presence
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND last_seen >= ?", boardID, since).
		Order("connected_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list presence for %s: %w", boardID, err)
	}
	return rows, nil
}
