package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"board-realtime/internal/model"
)

// BoardStore legacy full-board data blob
type BoardStore struct {
	db *gorm.DB
}

// NewBoardStore BoardStore 생성
func NewBoardStore(db *gorm.DB) *BoardStore {
	return &BoardStore{db: db}
}

// UpdateData boards.data 덮어쓰기 (last write wins)
func (s *BoardStore) UpdateData(ctx context.Context, boardID string, blob json.RawMessage) error {
	res := s.db.WithContext(ctx).Model(&model.Board{}).
		Where("id = ?", boardID).
		Update("data", string(blob))
	if res.Error != nil {
		return fmt.Errorf("update board %s data: %w", boardID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrBoardNotFound
	}
	return nil
}

// Get 보드 조회
func (s *BoardStore) Get(ctx context.Context, boardID string) (*model.Board, error) {
	var board model.Board
	err := s.db.WithContext(ctx).Where("id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board %s: %w", boardID, err)
	}
	return &board, nil
}
