package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 애플리케이션 전체 설정
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Board     BoardConfig
	Database  DatabaseConfig
}

// RedisConfig Redis 설정 (URL이 비어 있으면 presence 미러 비활성화)
type RedisConfig struct {
	URL string
}

// AuthConfig 인증 설정
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
	SecureCookie      bool
}

// ServerConfig HTTP 서버 설정
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// WebSocketConfig WebSocket 관련 설정
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	WriteTimeout    time.Duration
	MaxPending      int // backlog replay 중 대기시킬 수 있는 live 프레임 수
}

// BoardConfig 보드 세션/프레즌스 설정
type BoardConfig struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
	PersistQueueSize  int
	PersistTimeout    time.Duration
	MirrorTimeout     time.Duration
}

// DatabaseConfig 데이터베이스 설정
type DatabaseConfig struct {
	Driver     string // postgres | sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	TimeZone   string
	SQLitePath string
}

// CORSConfig CORS 설정
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// Load 환경 변수에서 설정 로드
func Load() *Config {
	// .env 파일 로드 (없어도 에러 무시)
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		log.Fatal("🚨 CRITICAL: JWT_SECRET must be changed from default value in production!")
	}

	cfg := FromEnv()
	cfg.Auth.JWTSecret = jwtSecret
	return cfg
}

// FromEnv .env 로드/필수값 검증 없이 현재 환경 변수로 설정 구성
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			ReadTimeout:     getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:     getDuration("IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			WriteTimeout:    getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
			MaxPending:      getInt("WS_MAX_PENDING", 512),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("JWT_SECRET"),
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 7*24*time.Hour),
			SecureCookie:      getBool("SECURE_COOKIE", false),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Board: BoardConfig{
			HeartbeatInterval: getDuration("BOARD_HEARTBEAT_INTERVAL", 10*time.Second),
			StaleAfter:        getDuration("BOARD_STALE_AFTER", 30*time.Second),
			PersistQueueSize:  getInt("BOARD_PERSIST_QUEUE_SIZE", 1024),
			PersistTimeout:    getDuration("BOARD_PERSIST_TIMEOUT", 5*time.Second),
			MirrorTimeout:     getDuration("BOARD_MIRROR_TIMEOUT", time.Second),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "postgres"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			TimeZone:   getEnv("DB_TIMEZONE", "UTC"),
			SQLitePath: getEnv("SQLITE_PATH", "board.db"),
		},
	}
}

// getRequiredEnv 필수 환경 변수 조회 (없으면 Fatal)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("🚨 CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv 환경 변수 조회 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 정수형 환경 변수 조회
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBool 불리언 환경 변수 조회
func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getDuration 시간 환경 변수 조회
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// 숫자만 있으면 초로 간주
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
