// Package store provides storage backends for GramCare user profiles.
//
// This file implements the SQLite-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/gramcare/gramcare/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

const profileColumns = "id, name, country, age, gender, language, onboarding_stage, message_history, created_at, updated_at"

// SQLiteStore persists profiles and the inbound message log in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file
// path). The parent directory is created if necessary.
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
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetProfile fetches one profile by sender id, returning (nil, nil) when no
// record exists.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetProfile not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}

// CreateProfile inserts a new profile record.
func (s *SQLiteStore) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	historyJSON, err := historyJSONOrNil(profile.MessageHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID, nilIfEmpty(profile.Name), nilIfEmpty(profile.Country), nilIfZero(profile.Age),
		nilIfEmpty(profile.Gender), nilIfEmpty(profile.Language), string(profile.OnboardingStage),
		historyJSON, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateProfile failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to create profile %s: %w", profile.ID, err)
	}
	slog.Debug("SQLiteStore CreateProfile succeeded", "id", profile.ID)
	return nil
}

// UpdateProfile applies a partial update as a single UPDATE statement.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	cols, vals, err := updateColumns(update)
	if err != nil {
		return err
	}
	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = col + " = ?"
	}
	vals = append(vals, id)
	query := `UPDATE profiles SET ` + strings.Join(assignments, ", ") + ` WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		slog.Error("SQLiteStore UpdateProfile failed", "error", err, "id", id)
		return fmt.Errorf("failed to update profile %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("profile %s not found", id)
	}
	slog.Debug("SQLiteStore UpdateProfile succeeded", "id", id, "columns", len(cols))
	return nil
}

// ListProfiles returns all stored profiles.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListProfiles query failed", "error", err)
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore ListProfiles scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	return profiles, nil
}

// LogInboundMessage records one inbound message.
func (s *SQLiteStore) LogInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_messages (user_id, body, display_name, message_type, time) VALUES (?, ?, ?, ?, ?)`,
		msg.UserID, msg.Body, nilIfEmpty(msg.DisplayName), string(msg.Type), msg.Time)
	if err != nil {
		slog.Error("SQLiteStore LogInboundMessage failed", "error", err, "user_id", msg.UserID)
		return fmt.Errorf("failed to log inbound message from %s: %w", msg.UserID, err)
	}
	return nil
}

// GetInboundMessages returns logged messages for a sender, or all when
// userID is empty.
func (s *SQLiteStore) GetInboundMessages(ctx context.Context, userID string) ([]models.InboundMessage, error) {
	query := `SELECT user_id, body, COALESCE(display_name, ''), message_type, time FROM inbound_messages`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("SQLiteStore GetInboundMessages query failed", "error", err)
		return nil, fmt.Errorf("failed to query inbound messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.InboundMessage
	for rows.Next() {
		var m models.InboundMessage
		var msgType string
		if err := rows.Scan(&m.UserID, &m.Body, &m.DisplayName, &msgType, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan inbound message row: %w", err)
		}
		m.Type = models.MessageType(msgType)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
