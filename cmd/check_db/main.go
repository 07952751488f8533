package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"board-realtime/internal/config"
	"board-realtime/internal/database"
	"board-realtime/internal/model"
	"board-realtime/internal/presence"
	"board-realtime/internal/store"
)

func main() {
	boardID := flag.String("board", "", "board id to inspect (optional)")
	window := flag.Duration("active", 5*time.Minute, "presence rows seen within this window count as active")
	watch := flag.Bool("watch", false, "follow Redis presence events until interrupted")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := config.FromEnv()
	db, err := database.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	tables := []struct {
		name  string
		model any
	}{
		{"boards", &model.Board{}},
		{"board_permissions", &model.BoardPermission{}},
		{"board_share_tokens", &model.ShareToken{}},
		{"presence", &model.Presence{}},
		{"strokes", &model.Stroke{}},
	}

	fmt.Println("📊 Tables:")
	for _, tbl := range tables {
		if !db.Migrator().HasTable(tbl.model) {
			fmt.Printf("  - %s: ❌ missing\n", tbl.name)
			continue
		}
		var count int64
		if err := db.Model(tbl.model).Count(&count).Error; err != nil {
			log.Fatalf("Failed to count %s: %v", tbl.name, err)
		}
		fmt.Printf("  - %s: %d rows\n", tbl.name, count)
	}
	fmt.Println()

	var mirror *presence.Mirror
	if cfg.Redis.URL != "" {
		mirror, err = presence.NewMirror(cfg.Redis.URL, 0, "check_db")
		if err != nil {
			log.Printf("⚠️ Redis unreachable: %v", err)
		} else {
			defer mirror.Close()
		}
	}

	ctx := context.Background()
	if *boardID != "" {
		printBoard(ctx, db, mirror, *boardID, *window)
	}

	if *watch {
		if mirror == nil {
			log.Fatal("-watch needs REDIS_URL")
		}
		watchPresence(mirror)
	}
}

func printBoard(ctx context.Context, db *gorm.DB, mirror *presence.Mirror, boardID string, window time.Duration) {
	board, err := store.NewBoardStore(db).Get(ctx, boardID)
	if err != nil {
		log.Fatalf("Failed to load board %s: %v", boardID, err)
	}
	owner := "none"
	if board.OwnerID != nil {
		owner = *board.OwnerID
	}
	fmt.Printf("📋 Board %s (%s), owner: %s\n", board.ID, board.Title, owner)

	strokes, err := store.NewStrokeStore(db).Count(ctx, boardID)
	if err != nil {
		log.Fatal("Failed to count strokes:", err)
	}
	fmt.Printf("  - Strokes: %d\n", strokes)

	active, err := store.NewPresenceStore(db).ListActive(ctx, boardID, time.Now().Add(-window))
	if err != nil {
		log.Fatal("Failed to list presence:", err)
	}
	fmt.Printf("👥 Active users (last %s): %d\n", window, len(active))
	for _, p := range active {
		fmt.Printf("  - %s, connected %s, last seen %s\n",
			p.UserID, p.ConnectedAt.Format(time.RFC3339), p.LastSeen.Format(time.RFC3339))
	}

	if mirror == nil {
		return
	}
	entries, err := mirror.Roster(ctx, boardID)
	if err != nil {
		log.Printf("⚠️ Failed to read Redis roster: %v", err)
		return
	}
	fmt.Printf("📡 Redis roster: %d\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  - %s (%s) on %s, heartbeat %s\n",
			e.UserID, e.DisplayName, e.ServerID, time.Unix(e.LastHeartbeat, 0).Format(time.RFC3339))
	}
}

// watchPresence board_presence 채널 이벤트 출력
func watchPresence(mirror *presence.Mirror) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := mirror.Subscribe(ctx)
	defer sub.Close()

	fmt.Printf("👀 Watching %s (Ctrl+C to stop)\n", presence.Channel)
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev presence.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("⚠️ Bad presence event: %v", err)
				continue
			}
			fmt.Printf("  [%s] %s %s (%s) via %s\n",
				ev.BoardID, ev.Action, ev.Entry.UserID, ev.Entry.DisplayName, ev.Entry.ServerID)
		}
	}
}
