// Package store provides storage backends for the onboarding audit trail.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/yomakenya/smsbridge/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure the onboarded_users table exists.
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) RecordOnboarded(user models.OnboardedUser) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO onboarded_users
		(yoma_user_id, first_name, surname, email, display_name, phone_number, country_code, education_id, gender_id, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		user.ID, user.FirstName, user.Surname, user.Email, user.DisplayName,
		user.PhoneNumber, user.CountryCode, user.EducationID, user.GenderID,
		user.DateOfBirth, createdAt)
	if err != nil {
		slog.Error("PostgresStore RecordOnboarded failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to insert onboarded user %s: %w", user.ID, err)
	}
	slog.Debug("PostgresStore RecordOnboarded succeeded", "userID", user.ID, "phone", user.PhoneNumber)
	return nil
}

func (s *PostgresStore) GetOnboarded() ([]models.OnboardedUser, error) {
	rows, err := s.db.Query(`SELECT yoma_user_id, first_name, surname, email, display_name, phone_number, country_code, education_id, gender_id, date_of_birth, created_at
		FROM onboarded_users ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore GetOnboarded query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarded users: %w", err)
	}
	defer rows.Close()
	var users []models.OnboardedUser
	for rows.Next() {
		var u models.OnboardedUser
		if err := rows.Scan(&u.ID, &u.FirstName, &u.Surname, &u.Email, &u.DisplayName,
			&u.PhoneNumber, &u.CountryCode, &u.EducationID, &u.GenderID,
			&u.DateOfBirth, &u.CreatedAt); err != nil {
			slog.Error("PostgresStore GetOnboarded scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan onboarded user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetOnboarded rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate onboarded user rows: %w", err)
	}
	slog.Debug("PostgresStore GetOnboarded succeeded", "count", len(users))
	return users, nil
}

func (s *PostgresStore) IsOnboarded(email, phone string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM onboarded_users
		WHERE ($1 <> '' AND lower(email) = lower($1))
		   OR ($2 <> '' AND phone_number = $2))`, email, phone).Scan(&exists)
	if err != nil {
		slog.Error("PostgresStore IsOnboarded query failed", "error", err)
		return false, fmt.Errorf("failed to check onboarded status: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
