package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"board-realtime/internal/model"
)

var (
	ErrBoardNotFound      = errors.New("board not found")
	ErrNoRole             = errors.New("no role on board")
	ErrShareTokenNotFound = errors.New("share token not found")
	ErrInvalidShareRole   = errors.New("share role must be viewer or editor")
)

// PermissionService 보드 권한/공유 토큰 조회
type PermissionService struct {
	db *gorm.DB
}

// NewPermissionService PermissionService 생성
func NewPermissionService(db *gorm.DB) *PermissionService {
	return &PermissionService{db: db}
}

// GetUserRole 보드에 대한 사용자 권한 조회 (소유자 → board_permissions 순서)
func (s *PermissionService) GetUserRole(ctx context.Context, boardID, userID string) (model.Role, error) {
	var board model.Board
	err := s.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", boardID).First(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrBoardNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup board %s: %w", boardID, err)
	}
	if board.OwnerID != nil && *board.OwnerID == userID {
		return model.RoleOwner, nil
	}

	var perm model.BoardPermission
	err = s.db.WithContext(ctx).Where("board_id = ? AND user_id = ?", boardID, userID).First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoRole
	}
	if err != nil {
		return "", fmt.Errorf("lookup permission %s/%s: %w", boardID, userID, err)
	}
	if !perm.Role.Valid() {
		return "", ErrNoRole
	}
	return perm.Role, nil
}

// ResolveShareToken 공유 토큰 조회
func (s *PermissionService) ResolveShareToken(ctx context.Context, token string) (*model.ShareToken, error) {
	var rec model.ShareToken
	err := s.db.WithContext(ctx).Where("token = ?", token).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrShareTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve share token: %w", err)
	}
	return &rec, nil
}

// TouchShareToken 마지막 사용 시각 갱신
func (s *PermissionService) TouchShareToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.ShareToken{}).
		Where("id = ?", id).
		Update("last_used_at", time.Now()).Error
}

// EnabledShare 현재 활성화된 공유 토큰 (없으면 nil)
func (s *PermissionService) EnabledShare(ctx context.Context, boardID string) (*model.ShareToken, error) {
	var rec model.ShareToken
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND enabled = ?", boardID, true).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnableShare 공유 링크 활성화 (이미 있으면 권한만 갱신)
func (s *PermissionService) EnableShare(ctx context.Context, boardID string, role model.Role) (*model.ShareToken, error) {
	if role != model.RoleViewer && role != model.RoleEditor {
		return nil, ErrInvalidShareRole
	}

	existing, err := s.EnabledShare(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Role != role {
			if err := s.db.WithContext(ctx).Model(existing).Update("role", role).Error; err != nil {
				return nil, err
			}
			existing.Role = role
		}
		return existing, nil
	}

	rec := &model.ShareToken{
		ID:      uuid.NewString(),
		BoardID: boardID,
		Token:   uuid.NewString(),
		Role:    role,
		Enabled: true,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("create share token: %w", err)
	}
	return rec, nil
}

// DisableShare 활성화된 공유 링크 비활성화
func (s *PermissionService) DisableShare(ctx context.Context, boardID string) error {
	return s.db.WithContext(ctx).Model(&model.ShareToken{}).
		Where("board_id = ? AND enabled = ?", boardID, true).
		Update("enabled", false).Error
}

// RotateShare 기존 토큰 비활성화 후 새 토큰 발급
func (s *PermissionService) RotateShare(ctx context.Context, boardID string, role model.Role) (*model.ShareToken, error) {
	if err := s.DisableShare(ctx, boardID); err != nil {
		return nil, err
	}
	return s.EnableShare(ctx, boardID, role)
}
