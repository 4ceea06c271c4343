package database

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(dbURL string) (*sqlx.DB, error) {
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Println("🔌 DATABASE CONNECTION ATTEMPT")
	log.Printf("   📍 URL prefix: %s...", dbURL[:min(30, len(dbURL))])
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Printf("❌ DATABASE CONNECTION FAILED: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		log.Printf("❌ DATABASE PING FAILED: %v", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ DATABASE CONNECTION SUCCESSFUL")
	return db, nil
}

func Migrate(db *sqlx.DB) error {
	migrations := []string{
		// Drivers and dispatch admins
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT,
			role TEXT NOT NULL CHECK(role IN ('driver', 'admin')),
			fcm_token TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT
		)`,

		// Delivery stops. latitude/longitude stay NULL until geocoded.
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			assigned_to TEXT,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_email TEXT,
			address TEXT NOT NULL DEFAULT '',
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			window_start BIGINT,
			window_end BIGINT,
			weight DOUBLE PRECISION NOT NULL DEFAULT 1 CHECK(weight >= 0),
			status TEXT NOT NULL DEFAULT 'pending'
				CHECK(status IN ('pending', 'assigned', 'picked-up', 'in-transit', 'delivered', 'failed')),
			tracking_code TEXT,
			delivered_at BIGINT,
			proof_notes TEXT,
			proof_signature TEXT,
			proof_photo TEXT,
			failure_reason TEXT,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (assigned_to) REFERENCES users(id) ON DELETE SET NULL
		)`,

		// Latest position per driver, updated via UPSERT
		`CREATE TABLE IF NOT EXISTS driver_current_location (
			driver_id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			heading DOUBLE PRECISION,
			speed DOUBLE PRECISION,
			accuracy DOUBLE PRECISION,
			timestamp BIGINT NOT NULL,
			is_connected BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Public tracking codes. Codes are unique across history, not only while active.
		`CREATE TABLE IF NOT EXISTS tracking_sessions (
			id TEXT PRIMARY KEY,
			tracking_code TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			driver_id TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			expires_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW())::BIGINT,
			CONSTRAINT tracking_sessions_tracking_code_key UNIQUE (tracking_code),
			FOREIGN KEY (delivery_id) REFERENCES deliveries(id) ON DELETE CASCADE,
			FOREIGN KEY (driver_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// At most one active session per delivery
		`CREATE UNIQUE INDEX IF NOT EXISTS ` + activeDeliveryIndex + ` ON tracking_sessions(delivery_id) WHERE is_active`,

		// Proof columns for databases created before proof upload existed
		`ALTER TABLE deliveries ADD COLUMN IF NOT EXISTS proof_signature TEXT`,
		`ALTER TABLE deliveries ADD COLUMN IF NOT EXISTS proof_photo TEXT`,

		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_assigned_to ON deliveries(assigned_to)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_tracking_code ON deliveries(tracking_code)`,
		`CREATE INDEX IF NOT EXISTS idx_driver_current_location_is_connected ON driver_current_location(is_connected)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_expires_at ON tracking_sessions(expires_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("✓ Database migrations completed")
	return nil
}
