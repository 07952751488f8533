package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"board-realtime/internal/auth"
	"board-realtime/internal/config"
	"board-realtime/internal/handler"
	"board-realtime/internal/hub"
	"board-realtime/internal/identity"
	"board-realtime/internal/middleware"
	"board-realtime/internal/model"
	"board-realtime/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app             *fiber.App
	cfg             *config.Config
	hub             *hub.Hub
	healthHandler   *handler.HealthHandler
	boardHandler    *handler.BoardHandler
	boardWSHandler  *handler.BoardWSHandler
	boardMiddleware *middleware.BoardMiddleware
	jwtManager      *auth.JWTManager
}

// New 새 서버 인스턴스 생성. redis는 프레즌스 미러가 없으면 nil
func New(cfg *config.Config, db *gorm.DB, boardHub *hub.Hub, redis handler.Pinger) *Server {
	app := fiber.New(fiber.Config{
		AppName:         "Board Realtime",
		ServerHeader:    "Fiber",
		StrictRouting:   true,
		CaseSensitive:   true,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		Prefork:         false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	perms := auth.NewPermissionService(db)
	boardMiddleware := middleware.NewBoardMiddleware(identity.NewResolver(perms, perms))

	return &Server{
		app:             app,
		cfg:             cfg,
		hub:             boardHub,
		healthHandler:   handler.NewHealthHandler(db, redis, boardHub),
		boardHandler:    handler.NewBoardHandler(store.NewStrokeStore(db), boardHub),
		boardWSHandler:  handler.NewBoardWSHandler(boardHub, boardMiddleware, cfg.WebSocket),
		boardMiddleware: boardMiddleware,
		jwtManager:      jwtManager,
	}
}

// App fiber 앱 (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	optionalAuth := auth.OptionalAuthMiddleware(s.jwtManager)

	// Rate Limiter 설정 (히스토리 조회는 무거우므로 IP 기준 제한)
	readLimiter := limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Board REST 라우트 (viewer 이상, 공유 토큰 허용)
	boardGroup := s.app.Group("/api/boards/:boardId", readLimiter, optionalAuth, s.boardMiddleware.RequireRole(model.RoleViewer))
	boardGroup.Get("/strokes", s.boardHandler.GetStrokes)
	boardGroup.Get("/users", s.boardHandler.GetActiveUsers)

	// WebSocket 보드 스트림 (업그레이드 전에 신원 확인)
	s.app.Get("/ws/:boardId", optionalAuth, s.boardWSHandler.Authorize, s.boardWSHandler.Stream())
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Board Realtime starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/:boardId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 모든 보드 세션 정리 후 서버 종료
func (s *Server) Shutdown() error {
	s.hub.Close()
	return s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
}
