package main

import (
	"log"

	"dispatch-backend/internal/config"
	"dispatch-backend/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	var result struct {
		Users      int `db:"users"`
		Deliveries int `db:"deliveries"`
		Sessions   int `db:"sessions"`
	}
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM deliveries) AS deliveries,
			(SELECT COUNT(*) FROM tracking_sessions WHERE is_active) AS sessions
	`
	if err := db.Get(&result, query); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	log.Println("✅ Migration completed successfully!")
	log.Printf("   Users:                    %d", result.Users)
	log.Printf("   Deliveries:               %d", result.Deliveries)
	log.Printf("   Active tracking sessions: %d", result.Sessions)
}
