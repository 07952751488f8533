package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// claimsLocalKey fiber Locals 키
const claimsLocalKey = "claims"

var ErrNoClaims = errors.New("no authenticated claims in context")

// extractToken Authorization 헤더 → 쿠키 → token 쿼리 순서로 토큰 추출
// (브라우저 WebSocket은 헤더를 보낼 수 없어 쿼리를 허용)
func extractToken(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return "", ErrInvalidToken
		}
		return parts[1], nil
	}
	if token := c.Cookies("session"); token != "" {
		return token, nil
	}
	if token := c.Cookies("access_token"); token != "" {
		return token, nil
	}
	return c.Query("token"), nil
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization header format",
			})
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization token",
			})
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals(claimsLocalKey, claims)
		return c.Next()
	}
}

// OptionalAuthMiddleware 선택적 인증 미들웨어 (인증 실패해도 계속 진행)
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err == nil && token != "" {
			if claims, err := jwtManager.ValidateAccessToken(token); err == nil {
				c.Locals(claimsLocalKey, claims)
			}
		}
		return c.Next()
	}
}

// GetClaimsFromContext 컨텍스트에서 인증 클레임 조회
func GetClaimsFromContext(c *fiber.Ctx) (*Claims, error) {
	claims, ok := c.Locals(claimsLocalKey).(*Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}
