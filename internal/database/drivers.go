package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dispatch-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// DriverStore reads driver accounts
type DriverStore struct {
	db *sqlx.DB
}

func NewDriverStore(db *sqlx.DB) *DriverStore {
	return &DriverStore{db: db}
}

func (s *DriverStore) GetByEmail(ctx context.Context, email string) (*models.Driver, error) {
	var driver models.Driver
	err := s.db.GetContext(ctx, &driver, `SELECT * FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &driver, nil
}

func (s *DriverStore) GetByID(ctx context.Context, id string) (*models.Driver, error) {
	var driver models.Driver
	err := s.db.GetContext(ctx, &driver, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &driver, nil
}

// CreateUser inserts a driver or admin with an already hashed password
func (s *DriverStore) CreateUser(ctx context.Context, user *models.Driver) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, email, password, name, phone, role, created_at, updated_at)
		VALUES (:id, :email, :password, :name, :phone, :role, :created_at, :updated_at)
		ON CONFLICT (email) DO NOTHING`, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
