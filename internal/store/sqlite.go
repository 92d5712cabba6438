// Package store provides storage backends for the onboarding audit trail.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yomakenya/smsbridge/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordOnboarded(user models.OnboardedUser) error {
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`INSERT INTO onboarded_users
		(yoma_user_id, first_name, surname, email, display_name, phone_number, country_code, education_id, gender_id, date_of_birth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.FirstName, user.Surname, user.Email, user.DisplayName,
		user.PhoneNumber, user.CountryCode, user.EducationID, user.GenderID,
		user.DateOfBirth, createdAt)
	if err != nil {
		slog.Error("SQLiteStore RecordOnboarded failed", "error", err, "userID", user.ID)
		return fmt.Errorf("failed to insert onboarded user %s: %w", user.ID, err)
	}
	slog.Debug("SQLiteStore RecordOnboarded succeeded", "userID", user.ID, "phone", user.PhoneNumber)
	return nil
}

func (s *SQLiteStore) GetOnboarded() ([]models.OnboardedUser, error) {
	rows, err := s.db.Query(`SELECT yoma_user_id, first_name, surname, email, display_name, phone_number, country_code, education_id, gender_id, date_of_birth, created_at
		FROM onboarded_users ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore GetOnboarded query failed", "error", err)
		return nil, fmt.Errorf("failed to query onboarded users: %w", err)
	}
	defer rows.Close()

	var users []models.OnboardedUser
	for rows.Next() {
		var u models.OnboardedUser
		if err := rows.Scan(&u.ID, &u.FirstName, &u.Surname, &u.Email, &u.DisplayName,
			&u.PhoneNumber, &u.CountryCode, &u.EducationID, &u.GenderID,
			&u.DateOfBirth, &u.CreatedAt); err != nil {
			slog.Error("SQLiteStore GetOnboarded scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan onboarded user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetOnboarded rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate onboarded user rows: %w", err)
	}
	slog.Debug("SQLiteStore GetOnboarded succeeded", "count", len(users))
	return users, nil
}

func (s *SQLiteStore) IsOnboarded(email, phone string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS (
		SELECT 1 FROM onboarded_users
		WHERE (? <> '' AND lower(email) = lower(?))
		   OR (? <> '' AND phone_number = ?))`, email, email, phone, phone).Scan(&exists)
	if err != nil {
		slog.Error("SQLiteStore IsOnboarded query failed", "error", err)
		return false, fmt.Errorf("failed to check onboarded status: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
