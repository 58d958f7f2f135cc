// Package models defines the core data structures for GramCare.
//
// It includes the user profile collected during onboarding, the chat
// transcript types, and the canonical inbound message tuple shared across
// modules.
package models

import (
	"encoding/json"
	"errors"
	"time"
)

// OnboardingStage marks how far a user has progressed through onboarding.
type OnboardingStage string

const (
	// StageNone is the initial stage before language detection has run.
	StageNone OnboardingStage = "none"
	// StageCountry means the country question is pending.
	StageCountry OnboardingStage = "country"
	// StageAge means the age question is pending.
	StageAge OnboardingStage = "age"
	// StageGender means the gender question is pending.
	StageGender OnboardingStage = "gender"
	// StageDone means onboarding is complete and chat is in steady state.
	StageDone OnboardingStage = "done"
)

// stageOrder defines the forward-only progression of onboarding stages.
var stageOrder = map[OnboardingStage]int{
	StageNone:    0,
	StageCountry: 1,
	StageAge:     2,
	StageGender:  3,
	StageDone:    4,
}

// IsValidStage checks if the given stage is one of the enumerated values.
// Unknown stage values are treated as "no stage-specific action" by the
// flow, never as an error.
func IsValidStage(s OnboardingStage) bool {
	_, ok := stageOrder[s]
	return ok
}

// AdvancesTo reports whether moving from s to next is a forward transition.
// Stages never regress; once done, always done.
func (s OnboardingStage) AdvancesTo(next OnboardingStage) bool {
	from, okFrom := stageOrder[s]
	to, okTo := stageOrder[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

// ChatRole tags a transcript turn with its speaker.
type ChatRole string

const (
	// RoleSystem is the seeded system prompt turn.
	RoleSystem ChatRole = "system"
	// RoleUser is an inbound user turn.
	RoleUser ChatRole = "user"
	// RoleAssistant is a generated assistant turn.
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one role-tagged turn in a user's transcript.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ProfileField names one of the onboarding-collected profile attributes.
type ProfileField string

const (
	FieldName     ProfileField = "name"
	FieldCountry  ProfileField = "country"
	FieldAge      ProfileField = "age"
	FieldGender   ProfileField = "gender"
	FieldLanguage ProfileField = "language"
)

// RequiredFields is the fixed set of attributes onboarding must collect.
var RequiredFields = []ProfileField{FieldName, FieldCountry, FieldAge, FieldGender, FieldLanguage}

// Error variables for better error handling and testability.
var (
	ErrEmptyUserID      = errors.New("user id cannot be empty")
	ErrEmptyMessageBody = errors.New("message body cannot be empty")
)

// UserProfile is the single per-sender record. Fields are zero-valued until
// collected; Age uses 0 as "not collected" since ages are always positive.
type UserProfile struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	Country         string          `json:"country,omitempty"`
	Age             int             `json:"age,omitempty"`
	Gender          string          `json:"gender,omitempty"`
	Language        string          `json:"language,omitempty"`
	OnboardingStage OnboardingStage `json:"onboarding_stage"`
	MessageHistory  []ChatMessage   `json:"message_history,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewUserProfile returns a fresh profile for an unseen sender with all
// required fields unset and the initial stage.
func NewUserProfile(id string) *UserProfile {
	now := time.Now()
	return &UserProfile{
		ID:              id,
		OnboardingStage: StageNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// MissingFields computes the required fields still unset. It is computed
// fresh on every inbound message and never cached.
func (p *UserProfile) MissingFields() []ProfileField {
	var missing []ProfileField
	for _, f := range RequiredFields {
		switch f {
		case FieldName:
			if p.Name == "" {
				missing = append(missing, f)
			}
		case FieldCountry:
			if p.Country == "" {
				missing = append(missing, f)
			}
		case FieldAge:
			if p.Age == 0 {
				missing = append(missing, f)
			}
		case FieldGender:
			if p.Gender == "" {
				missing = append(missing, f)
			}
		case FieldLanguage:
			if p.Language == "" {
				missing = append(missing, f)
			}
		}
	}
	return missing
}

// IsMissing reports whether a single required field is still unset.
func (p *UserProfile) IsMissing(field ProfileField) bool {
	for _, f := range p.MissingFields() {
		if f == field {
			return true
		}
	}
	return false
}

// ToJSON serializes the profile for storage or transport.
func (p *UserProfile) ToJSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON deserializes a profile from its JSON representation.
func (p *UserProfile) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), p)
}

// ProfileUpdate is a partial update applied atomically at the store
// boundary. Nil pointer fields are left untouched; a non-nil
// MessageHistory replaces the stored transcript.
type ProfileUpdate struct {
	Name            *string
	Country         *string
	Age             *int
	Gender          *string
	Language        *string
	OnboardingStage *OnboardingStage
	MessageHistory  []ChatMessage
}

// IsZero reports whether the update carries no mutations.
func (u ProfileUpdate) IsZero() bool {
	return u.Name == nil && u.Country == nil && u.Age == nil &&
		u.Gender == nil && u.Language == nil && u.OnboardingStage == nil &&
		u.MessageHistory == nil
}

// MessageType classifies the channel-reported payload type.
type MessageType string

// MessageTypeText is the only type the state machine processes; anything
// else short-circuits to the fixed fallback reply.
const MessageTypeText MessageType = "text"

// InboundMessage is the canonical tuple produced by a channel adapter from
// a transport-specific payload.
type InboundMessage struct {
	UserID      string      `json:"user_id"`
	Body        string      `json:"body"`
	DisplayName string      `json:"display_name,omitempty"`
	Type        MessageType `json:"type"`
	Time        int64       `json:"time,omitempty"`
}

// Validate checks the inbound tuple has the fields the flow requires.
func (m *InboundMessage) Validate() error {
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if m.Type == MessageTypeText && m.Body == "" {
		return ErrEmptyMessageBody
	}
	return nil
}
