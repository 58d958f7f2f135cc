// Package store provides storage backends for GramCare user profiles.
//
// It includes an in-memory store for tests plus SQLite and PostgreSQL
// backed stores selected by DSN type.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/gramcare/gramcare/internal/models"
)

// ProfileStore defines the persistence operations the conversation flow
// depends on. GetProfile returns (nil, nil) when no record exists; a
// missing record is expected, not an error.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	CreateProfile(ctx context.Context, profile *models.UserProfile) error
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error
	ListProfiles(ctx context.Context) ([]*models.UserProfile, error)
	LogInboundMessage(ctx context.Context, msg models.InboundMessage) error
	GetInboundMessages(ctx context.Context, userID string) ([]models.InboundMessage, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// NewStore selects a backend from the configured DSN: PostgreSQL for
// postgres-style DSNs, SQLite for file paths, in-memory when no DSN is set.
func NewStore(opts ...Option) (ProfileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// InMemoryStore is a simple mutex-guarded store used in tests and when no
// DSN is configured. Profiles are copied on read and write so callers
// observe snapshot semantics, matching the SQL backends.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.UserProfile
	inbound  []models.InboundMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]*models.UserProfile)}
}

func copyProfile(p *models.UserProfile) *models.UserProfile {
	cp := *p
	if p.MessageHistory != nil {
		cp.MessageHistory = make([]models.ChatMessage, len(p.MessageHistory))
		copy(cp.MessageHistory, p.MessageHistory)
	}
	return &cp
}

// GetProfile returns a copy of the stored profile, or (nil, nil) if absent.
func (s *InMemoryStore) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return copyProfile(p), nil
}

// CreateProfile inserts a new profile record.
func (s *InMemoryStore) CreateProfile(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[profile.ID]; exists {
		return fmt.Errorf("profile %s already exists", profile.ID)
	}
	s.profiles[profile.ID] = copyProfile(profile)
	return nil
}

// UpdateProfile applies a partial update as one atomic operation.
func (s *InMemoryStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s not found", id)
	}
	applyUpdate(p, update)
	return nil
}

// ListProfiles returns copies of all stored profiles.
func (s *InMemoryStore) ListProfiles(ctx context.Context) ([]*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, copyProfile(p))
	}
	return out, nil
}

// LogInboundMessage appends an inbound message to the log.
func (s *InMemoryStore) LogInboundMessage(ctx context.Context, msg models.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inbound = append(s.inbound, msg)
	return nil
}

// GetInboundMessages returns logged messages, optionally filtered by sender.
func (s *InMemoryStore) GetInboundMessages(ctx context.Context, userID string) ([]models.InboundMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.InboundMessage
	for _, m := range s.inbound {
		if userID == "" || m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
