package handler

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"board-realtime/internal/hub"
	"board-realtime/internal/middleware"
	"board-realtime/internal/model"
	"board-realtime/internal/protocol"
)

// StrokeHistory 보드 스트로크 조회
type StrokeHistory interface {
	ListByBoard(ctx context.Context, boardID string) ([]model.Stroke, error)
}

// RosterSource 보드 실시간 접속자 조회
type RosterSource interface {
	Roster(boardID string) []hub.RosterEntry
}

// BoardHandler 보드 REST 조회 핸들러
type BoardHandler struct {
	strokes StrokeHistory
	roster  RosterSource
}

// NewBoardHandler BoardHandler 생성
func NewBoardHandler(strokes StrokeHistory, roster RosterSource) *BoardHandler {
	return &BoardHandler{strokes: strokes, roster: roster}
}

// ActiveUser 접속자 응답
type ActiveUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Anonymous   bool   `json:"anonymous"`
	JoinedAt    string `json:"joinedAt"`
	LastSeen    string `json:"lastSeen"`
}

// GetStrokes 보드의 저장된 스트로크 (재생 순서와 동일)
func (h *BoardHandler) GetStrokes(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	rows, err := h.strokes.ListByBoard(c.UserContext(), boardID)
	if err != nil {
		log.Printf("[Board %s] Failed to fetch strokes: %v", boardID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch strokes"})
	}

	strokes := make([]protocol.Stroke, 0, len(rows))
	for i := range rows {
		strokes = append(strokes, protocol.StrokeFromModel(&rows[i]))
	}

	return c.JSON(fiber.Map{
		"boardId": boardID,
		"role":    callerRole(c),
		"strokes": strokes,
	})
}

// GetActiveUsers 보드에 현재 접속 중인 사용자
func (h *BoardHandler) GetActiveUsers(c *fiber.Ctx) error {
	boardID := c.Params("boardId")

	entries := h.roster.Roster(boardID)
	users := make([]ActiveUser, 0, len(entries))
	for _, e := range entries {
		users = append(users, ActiveUser{
			UserID:      e.UserID(),
			DisplayName: e.DisplayName,
			AvatarURL:   e.AvatarURL,
			Anonymous:   e.Principal.IsAnonymous(),
			JoinedAt:    e.JoinedAt.Format(time.RFC3339),
			LastSeen:    e.LastPing.Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"boardId": boardID,
		"role":    callerRole(c),
		"users":   users,
	})
}

// callerRole 요청자의 보드 권한 (클라이언트가 편집 UI 노출 여부 결정)
func callerRole(c *fiber.Ctx) model.Role {
	id, ok := middleware.IdentityFromContext(c)
	if !ok {
		return ""
	}
	return id.Role
}
