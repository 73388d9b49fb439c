// Command admin provides management utilities for Oak Voices: promoting
// and demoting admins and repairing orphaned hashtag rows.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"oakvoices/internal/config"
	"oakvoices/internal/database"
	"oakvoices/internal/remote/gormstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin promote <user_id>   - Promote user to admin")
		fmt.Println("  go run ./cmd/admin demote <user_id>    - Demote user from admin")
		fmt.Println("  go run ./cmd/admin sweep-hashtags      - Remove orphaned hashtag rows")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store := gormstore.New(db, nil)
	ctx := context.Background()

	switch os.Args[1] {
	case "promote":
		requireArg("promote <user_id>")
		setAdmin(ctx, store, os.Args[2], true)
	case "demote":
		requireArg("demote <user_id>")
		setAdmin(ctx, store, os.Args[2], false)
	case "sweep-hashtags":
		swept, err := store.SweepOrphanedHashtags(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		fmt.Printf("Removed %d orphaned hashtag rows\n", swept)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func requireArg(usage string) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./cmd/admin " + usage)
		os.Exit(1)
	}
}

func setAdmin(ctx context.Context, store *gormstore.Store, userID string, isAdmin bool) {
	if err := store.SetAdmin(ctx, userID, isAdmin); err != nil {
		log.Fatalf("Failed to update admin flag for %s: %v", userID, err)
	}
	profile, err := store.GetProfile(ctx, userID)
	if err != nil {
		log.Fatalf("Failed to read profile %s: %v", userID, err)
	}
	if isAdmin {
		fmt.Printf("Promoted %s (%s) to admin\n", profile.Name, profile.ID)
	} else {
		fmt.Printf("Demoted %s (%s) from admin\n", profile.Name, profile.ID)
	}
}
