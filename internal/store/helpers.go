package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gramcare/gramcare/internal/models"
)

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its
// shape. File paths fall through to SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZero returns nil if n is zero, otherwise returns n.
func nilIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// applyUpdate copies the set fields of a partial update onto a profile.
func applyUpdate(p *models.UserProfile, u models.ProfileUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Country != nil {
		p.Country = *u.Country
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.OnboardingStage != nil {
		p.OnboardingStage = *u.OnboardingStage
	}
	if u.MessageHistory != nil {
		p.MessageHistory = u.MessageHistory
	}
	p.UpdatedAt = time.Now()
}

// updateColumns flattens a partial update into column names and values for
// SQL backends. The updated_at column is always included.
func updateColumns(u models.ProfileUpdate) ([]string, []interface{}, error) {
	var cols []string
	var vals []interface{}
	if u.Name != nil {
		cols = append(cols, "name")
		vals = append(vals, *u.Name)
	}
	if u.Country != nil {
		cols = append(cols, "country")
		vals = append(vals, *u.Country)
	}
	if u.Age != nil {
		cols = append(cols, "age")
		vals = append(vals, *u.Age)
	}
	if u.Gender != nil {
		cols = append(cols, "gender")
		vals = append(vals, *u.Gender)
	}
	if u.Language != nil {
		cols = append(cols, "language")
		vals = append(vals, *u.Language)
	}
	if u.OnboardingStage != nil {
		cols = append(cols, "onboarding_stage")
		vals = append(vals, string(*u.OnboardingStage))
	}
	if u.MessageHistory != nil {
		historyJSON, err := json.Marshal(u.MessageHistory)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal message history: %w", err)
		}
		cols = append(cols, "message_history")
		vals = append(vals, string(historyJSON))
	}
	cols = append(cols, "updated_at")
	vals = append(vals, time.Now())
	return cols, vals, nil
}

// scanProfile scans one profile row. The column order must match
// profileColumns in the backend queries.
func scanProfile(scan func(dest ...interface{}) error) (*models.UserProfile, error) {
	var p models.UserProfile
	var name, country, gender, language, historyJSON sql.NullString
	var age sql.NullInt64
	var stage string
	err := scan(&p.ID, &name, &country, &age, &gender, &language, &stage, &historyJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.Country = country.String
	p.Age = int(age.Int64)
	p.Gender = gender.String
	p.Language = language.String
	p.OnboardingStage = models.OnboardingStage(stage)
	if historyJSON.Valid && historyJSON.String != "" {
		if err := json.Unmarshal([]byte(historyJSON.String), &p.MessageHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message history for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

// historyJSONOrNil marshals a transcript for insertion, using NULL for an
// empty transcript.
func historyJSONOrNil(history []models.ChatMessage) (interface{}, error) {
	if len(history) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message history: %w", err)
	}
	return string(data), nil
}
