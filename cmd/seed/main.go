// Command seed runs the database seeder for Oak Voices.
package main

import (
	"context"
	"flag"
	"log"

	"oakvoices/internal/bootstrap"
	"oakvoices/internal/config"
	"oakvoices/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 20, "Number of users to create")
	numPosts := flag.Int("posts", 80, "Number of posts to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("Seeding %d users and %d posts (clean=%v)", *numUsers, *numPosts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{Migrate: true})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	s := seed.NewSeeder(db, cfg.JWTSecret)
	ctx := context.Background()

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	users, err := s.SeedUsers(ctx, *numUsers)
	if err != nil {
		log.Fatalf("User seeding failed: %v", err)
	}
	if err := s.SeedPosts(ctx, users, *numPosts); err != nil {
		log.Fatalf("Post seeding failed: %v", err)
	}

	log.Printf("Done. Admin login: %s / %s", users[0].Email, seed.DefaultPassword)
}
