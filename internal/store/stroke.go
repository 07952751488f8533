package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"board-realtime/internal/model"
)

// StrokeStore append-only stroke history
type StrokeStore struct {
	db *gorm.DB
}

// NewStrokeStore StrokeStore 생성
func NewStrokeStore(db *gorm.DB) *StrokeStore {
	return &StrokeStore{db: db}
}

// Insert 획 저장
func (s *StrokeStore) Insert(ctx context.Context, stroke *model.Stroke) error {
	if err := s.db.WithContext(ctx).Create(stroke).Error; err != nil {
		return fmt.Errorf("insert stroke %s: %w", stroke.StrokeID, err)
	}
	return nil
}

// ListByBoard 보드의 모든 획을 생성 순서대로 조회 (backlog replay 순서)
func (s *StrokeStore) ListByBoard(ctx context.Context, boardID string) ([]model.Stroke, error) {
	var strokes []model.Stroke
	err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("created_at ASC, id ASC").
		Find(&strokes).Error
	if err != nil {
		return nil, fmt.Errorf("list strokes for %s: %w", boardID, err)
	}
	return strokes, nil
}

// Count 보드의 획 수
func (s *StrokeStore) Count(ctx context.Context, boardID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Stroke{}).Where("board_id = ?", boardID).Count(&n).Error
	return n, err
}
