package middleware

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"board-realtime/internal/auth"
	"board-realtime/internal/identity"
	"board-realtime/internal/model"
)

// IdentityLocalKey 보드 접속자 fiber Locals 키
const IdentityLocalKey = "identity"

// IdentityResolver 보드 접속자 식별
type IdentityResolver interface {
	Resolve(ctx context.Context, hs identity.Handshake) (identity.Identity, error)
}

// BoardMiddleware 보드 권한 미들웨어
type BoardMiddleware struct {
	resolver IdentityResolver
}

// NewBoardMiddleware BoardMiddleware 생성
func NewBoardMiddleware(resolver IdentityResolver) *BoardMiddleware {
	return &BoardMiddleware{resolver: resolver}
}

// Authorize resolves the caller of a board route. It returns the HTTP status
// to refuse with when the caller cannot open the board.
func (m *BoardMiddleware) Authorize(c *fiber.Ctx) (identity.Identity, int) {
	boardID := c.Params("boardId")
	if boardID == "" {
		return identity.Identity{}, fiber.StatusBadRequest
	}

	claims, _ := auth.GetClaimsFromContext(c)
	shareToken := c.Query("shareToken")
	if claims == nil && shareToken == "" {
		return identity.Identity{}, fiber.StatusUnauthorized
	}

	id, err := m.resolver.Resolve(c.UserContext(), identity.Handshake{
		BoardID:    boardID,
		Claims:     claims,
		ShareToken: shareToken,
	})
	if err != nil {
		if !errors.Is(err, identity.ErrRejected) {
			log.Printf("[Board %s] identity resolution failed: %v", boardID, err)
		}
		return identity.Identity{}, fiber.StatusForbidden
	}
	return id, fiber.StatusOK
}

// RequireRole 보드에 min 이상의 권한 필수
func (m *BoardMiddleware) RequireRole(min model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, status := m.Authorize(c)
		switch status {
		case fiber.StatusOK:
		case fiber.StatusUnauthorized:
			return c.Status(status).JSON(fiber.Map{
				"error": "unauthorized",
			})
		case fiber.StatusBadRequest:
			return c.Status(status).JSON(fiber.Map{
				"error": "board ID is required",
			})
		default:
			return c.Status(status).JSON(fiber.Map{
				"error": "no access to this board",
			})
		}

		if !id.Role.AtLeast(min) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "permission denied: " + min.String(),
			})
		}

		c.Locals(IdentityLocalKey, id)
		return c.Next()
	}
}

// IdentityFromContext 컨텍스트에서 보드 접속자 조회
func IdentityFromContext(c *fiber.Ctx) (identity.Identity, bool) {
	id, ok := c.Locals(IdentityLocalKey).(identity.Identity)
	return id, ok
}

// SetIdentity 보드 접속자를 컨텍스트에 저장
func SetIdentity(c *fiber.Ctx, id identity.Identity) {
	c.Locals(IdentityLocalKey, id)
}
