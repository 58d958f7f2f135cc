// Package store provides storage backends for GramCare user profiles.
//
// This file implements the PostgreSQL-backed profile store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/gramcare/gramcare/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants.
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database.
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool.
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused.
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists profiles and the inbound message log in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

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

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetProfile fetches one profile by sender id, returning (nil, nil) when no
// record exists.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetProfile not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get profile %s: %w", id, err)
	}
	return p, nil
}

// CreateProfile inserts a new profile record.
func (s *PostgresStore) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	historyJSON, err := historyJSONOrNil(profile.MessageHistory)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		profile.ID, nilIfEmpty(profile.Name), nilIfEmpty(profile.Country), nilIfZero(profile.Age),
		nilIfEmpty(profile.Gender), nilIfEmpty(profile.Language), string(profile.OnboardingStage),
		historyJSON, profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateProfile failed", "error", err, "id", profile.ID)
		return fmt.Errorf("failed to create profile %s: %w", profile.ID, err)
	}
	slog.Debug("PostgresStore CreateProfile succeeded", "id", profile.ID)
	return nil
}

// UpdateProfile applies a partial update as a single UPDATE statement.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	cols, vals, err := updateColumns(update)
	if err != nil {
		return err
	}
	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	vals = append(vals, id)
	query := `UPDATE profiles SET ` + strings.Join(assignments, ", ") + fmt.Sprintf(` WHERE id = $%d`, len(vals))
	res, err := s.db.ExecContext(ctx, query, vals...)
	if err != nil {
		slog.Error("PostgresStore UpdateProfile failed", "error", err, "id", id)
		return fmt.Errorf("failed to update profile %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("profile %s not found", id)
	}
	slog.Debug("PostgresStore UpdateProfile succeeded", "id", id, "columns", len(cols))
	return nil
}

// ListProfiles returns all stored profiles.
func (s *PostgresStore) ListProfiles(ctx context.Context) ([]*models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore ListProfiles query failed", "error", err)
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore ListProfiles scan failed", "error", err)
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
func (s *PostgresStore) LogInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_messages (user_id, body, display_name, message_type, time) VALUES ($1, $2, $3, $4, $5)`,
		msg.UserID, msg.Body, nilIfEmpty(msg.DisplayName), string(msg.Type), msg.Time)
	if err != nil {
		slog.Error("PostgresStore LogInboundMessage failed", "error", err, "user_id", msg.UserID)
		return fmt.Errorf("failed to log inbound message from %s: %w", msg.UserID, err)
	}
	return nil
}

// GetInboundMessages returns logged messages for a sender, or all when
// userID is empty.
func (s *PostgresStore) GetInboundMessages(ctx context.Context, userID string) ([]models.InboundMessage, error) {
	query := `SELECT user_id, body, COALESCE(display_name, ''), message_type, time FROM inbound_messages`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("PostgresStore GetInboundMessages query failed", "error", err)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
