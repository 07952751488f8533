package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"board-realtime/internal/auth"
	"board-realtime/internal/config"
	"board-realtime/internal/database"
	"board-realtime/internal/model"
)

func main() {
	boardID := flag.String("board", "", "board id")
	action := flag.String("action", "status", "enable | rotate | disable | status")
	role := flag.String("role", string(model.RoleViewer), "share role: viewer | editor")
	flag.Parse()

	if *boardID == "" {
		log.Fatal("-board is required")
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ No .env file found, using environment variables")
	}

	cfg := config.FromEnv()
	db, err := database.ConnectDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	perms := auth.NewPermissionService(db)
	ctx := context.Background()

	var share *model.ShareToken
	switch *action {
	case "enable":
		share, err = perms.EnableShare(ctx, *boardID, model.Role(*role))
	case "rotate":
		share, err = perms.RotateShare(ctx, *boardID, model.Role(*role))
	case "disable":
		err = perms.DisableShare(ctx, *boardID)
	case "status":
		share, err = perms.EnabledShare(ctx, *boardID)
	default:
		log.Fatalf("unknown action %q", *action)
	}
	if err != nil {
		log.Fatalf("Failed to %s share link for %s: %v", *action, *boardID, err)
	}

	if share == nil {
		log.Printf("Share link for board %s is disabled.", *boardID)
		return
	}
	log.Printf("Share link for board %s: token=%s role=%s", *boardID, share.Token, share.Role)
}
