package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Pinger 외부 의존성 상태 확인
type Pinger interface {
	Health(ctx context.Context) error
}

// PersistStats 백그라운드 저장 누적 통계
type PersistStats interface {
	PersistStats() (dropped, failed int64)
}

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	db      *gorm.DB
	redis   Pinger
	persist PersistStats
}

// NewHealthHandler HealthHandler 생성 (redis, persist는 nil 가능)
func NewHealthHandler(db *gorm.DB, redis Pinger, persist PersistStats) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, persist: persist}
}

// ComponentCheck 컴포넌트 상태
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
	Dropped int64  `json:"dropped,omitempty"`
	Failed  int64  `json:"failed,omitempty"`
}

// HealthResponse 헬스체크 응답
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check 전체 상태 확인 (DB + Redis)
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	// 1. Database 체크
	dbStart := time.Now()
	if err := h.pingDB(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  err.Error(),
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	// 2. Redis 체크 (프레즌스 미러, 없어도 서비스는 동작)
	if h.redis != nil {
		redisStart := time.Now()
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		err := h.redis.Health(ctx)
		cancel()
		if err != nil {
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = ComponentCheck{
				Status: "degraded",
				Error:  "redis unreachable",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	} else {
		response.Checks["redis"] = ComponentCheck{
			Status: "not_configured",
		}
	}

	// 3. 백그라운드 저장 (버려진 job이 있으면 데이터 유실)
	if h.persist != nil {
		dropped, failed := h.persist.PersistStats()
		check := ComponentCheck{Status: "healthy", Dropped: dropped, Failed: failed}
		if dropped > 0 {
			check.Status = "degraded"
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		}
		response.Checks["persistence"] = check
	}

	statusCode := fiber.StatusOK
	if response.Status == "unhealthy" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(response)
}

// Liveness K8s liveness probe용 (단순 체크)
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.SendString("OK")
}

// Readiness K8s readiness probe용 (DB 연결 체크)
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if err := h.pingDB(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}
	return c.SendString("READY")
}

func (h *HealthHandler) pingDB() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "failed to get database connection")
	}
	if err := sqlDB.Ping(); err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "database ping failed")
	}
	return nil
}
