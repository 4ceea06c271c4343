package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"dispatch-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// SeedAccount is a login created by SeedUsers
type SeedAccount struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// DefaultSeedAccounts are the local development logins
var DefaultSeedAccounts = []SeedAccount{
	{Email: "driver@dispatch.local", Password: "driver123", Name: "Dana Driver", Role: models.RoleDriver},
	{Email: "admin@dispatch.local", Password: "admin123", Name: "Dispatch Admin", Role: models.RoleAdmin},
}

// NewAccount hashes the password and builds a user row
func NewAccount(acc SeedAccount, now time.Time) (*models.Driver, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(acc.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &models.Driver{
		ID:        uuid.New().String(),
		Email:     acc.Email,
		Password:  string(hash),
		Name:      acc.Name,
		Role:      acc.Role,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}, nil
}

// SeedUsers creates the given accounts when the users table is empty
func SeedUsers(ctx context.Context, db *sqlx.DB, accounts []SeedAccount) error {
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users"); err != nil {
		return err
	}
	if count > 0 {
		log.Println("✓ Users already seeded, skipping...")
		return nil
	}

	log.Println("🌱 Seeding test users...")

	store := NewDriverStore(db)
	now := time.Now()
	for _, acc := range accounts {
		user, err := NewAccount(acc, now)
		if err != nil {
			return err
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return err
		}
		log.Printf("  ✓ Created user: %s (%s)", acc.Email, acc.Role)
	}

	log.Println("✓ Successfully seeded test users")
	return nil
}

// SeedDeliveries assigns a handful of downtown San Jose deliveries to the driver with the given email
func SeedDeliveries(ctx context.Context, db *sqlx.DB, driverEmail string) error {
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM deliveries"); err != nil {
		return err
	}
	if count > 0 {
		log.Println("✓ Deliveries already seeded, skipping...")
		return nil
	}

	driver, err := NewDriverStore(db).GetByEmail(ctx, driverEmail)
	if err != nil {
		return fmt.Errorf("seed driver %s: %w", driverEmail, err)
	}

	log.Printf("🌱 Seeding deliveries for %s...", driverEmail)

	deliveries := []map[string]interface{}{
		{"customer_name": "Alex Kim", "address": "325 S 1st St, San Jose, CA 95113", "latitude": 37.3329, "longitude": -121.8866},
		{"customer_name": "Priya Shah", "address": "200 E Santa Clara St, San Jose, CA 95113", "latitude": 37.3361, "longitude": -121.8869},
		{"customer_name": "Marco Diaz", "address": "151 W Mission St, San Jose, CA 95110", "latitude": 37.3343, "longitude": -121.8936},
		{"customer_name": "Jo Nguyen", "address": "408 Almaden Blvd, San Jose, CA 95110", "latitude": 37.3313, "longitude": -121.8917},
		{"customer_name": "Sam Okafor", "address": "789 E Julian St, San Jose, CA 95112", "latitude": 37.3442, "longitude": -121.8793},
	}

	now := time.Now().Unix()
	for _, d := range deliveries {
		d["id"] = uuid.New().String()
		d["assigned_to"] = driver.ID
		d["status"] = string(models.StatusAssigned)
		d["created_at"] = now
		d["updated_at"] = now

		query := `
			INSERT INTO deliveries (id, assigned_to, customer_name, address, latitude, longitude, status, created_at, updated_at)
			VALUES (:id, :assigned_to, :customer_name, :address, :latitude, :longitude, :status, :created_at, :updated_at)
		`
		if _, err := db.NamedExecContext(ctx, query, d); err != nil {
			return err
		}
	}

	log.Printf("✓ Successfully seeded %d deliveries", len(deliveries))
	return nil
}
