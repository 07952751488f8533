package main

import (
	"log"
	"os"

	"board-realtime/internal/config"
	"board-realtime/internal/database"
	"board-realtime/internal/handler"
	"board-realtime/internal/hub"
	"board-realtime/internal/presence"
	"board-realtime/internal/server"
	"board-realtime/internal/store"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully (%s)", cfg.Database.Driver)

	stores := hub.Stores{
		Strokes:  store.NewStrokeStore(db),
		Presence: store.NewPresenceStore(db),
		Boards:   store.NewBoardStore(db),
	}

	// Redis 프레즌스 미러 (선택적)
	var redis handler.Pinger
	if cfg.Redis.URL != "" {
		serverID, _ := os.Hostname()
		mirror, err := presence.NewMirror(cfg.Redis.URL, 2*cfg.Board.StaleAfter, serverID)
		if err != nil {
			log.Printf("⚠️ Redis presence mirror disabled: %v", err)
		} else {
			defer mirror.Close()
			stores.Mirror = mirror
			redis = mirror
			log.Println("✅ Redis presence mirror enabled")
		}
	} else {
		log.Println("ℹ️ Redis not configured (presence mirror disabled)")
	}

	boardHub := hub.New(stores, hub.OptionsFromConfig(cfg))

	// 서버 생성 및 설정
	srv := server.New(cfg, db, boardHub, redis)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
