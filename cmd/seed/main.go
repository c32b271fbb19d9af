// Command seed populates the database with demo users and conversations.
package main

import (
	"flag"
	"log"

	"chatter/internal/config"
	"chatter/internal/database"
	"chatter/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 30, "Number of users to create")
	messages := flag.Int("messages", 40, "Messages per conversation")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Log what would be created without writing")
	flag.Parse()

	log.Println("Database Seeder")
	log.Printf("Target: %d users, %d messages per conversation, clean=%v\n",
		*numUsers, *messages, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.SeedOptions{DryRun: *dryRun})

	if *shouldClean && !*dryRun {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	if _, err := s.SeedChatMesh(*numUsers, *messages); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("All done! Your database is now populated with test data.")
	log.Println("All test users have the password: password123")
}
