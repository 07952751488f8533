package handler

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"board-realtime/internal/config"
	"board-realtime/internal/hub"
	"board-realtime/internal/identity"
	"board-realtime/internal/middleware"
)

// BoardWSHandler 보드 실시간 스트림 핸들러
type BoardWSHandler struct {
	hub    *hub.Hub
	boards *middleware.BoardMiddleware
	cfg    config.WebSocketConfig
}

// NewBoardWSHandler BoardWSHandler 생성
func NewBoardWSHandler(h *hub.Hub, boards *middleware.BoardMiddleware, cfg config.WebSocketConfig) *BoardWSHandler {
	return &BoardWSHandler{hub: h, boards: boards, cfg: cfg}
}

// Authorize identity is resolved before the upgrade; refused peers get a bare
// status and never reach the hub.
func (h *BoardWSHandler) Authorize(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	id, status := h.boards.Authorize(c)
	if status != fiber.StatusOK {
		log.Printf("[Board %s] WebSocket refused (%d) from %s", c.Params("boardId"), status, c.IP())
		return c.SendStatus(status)
	}

	middleware.SetIdentity(c, id)
	return c.Next()
}

// Stream 업그레이드된 연결을 허브에 넘긴다
func (h *BoardWSHandler) Stream() fiber.Handler {
	return websocket.New(h.serve, websocket.Config{
		ReadBufferSize:  h.cfg.ReadBufferSize,
		WriteBufferSize: h.cfg.WriteBufferSize,
	})
}

func (h *BoardWSHandler) serve(c *websocket.Conn) {
	boardID := c.Params("boardId")
	id, ok := c.Locals(middleware.IdentityLocalKey).(identity.Identity)
	if !ok {
		log.Printf("[Board %s] WebSocket without resolved identity", boardID)
		_ = c.Close()
		return
	}
	h.hub.Serve(c, boardID, id)
}
