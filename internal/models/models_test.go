package models

import (
	"testing"
)

func TestMissingFieldsNewProfile(t *testing.T) {
	p := NewUserProfile("16135550100")
	missing := p.MissingFields()
	if len(missing) != len(RequiredFields) {
		t.Fatalf("expected all %d required fields missing, got %d", len(RequiredFields), len(missing))
	}
	if p.OnboardingStage != StageNone {
		t.Errorf("new profile stage = %q, want %q", p.OnboardingStage, StageNone)
	}
}

func TestMissingFieldsRecomputed(t *testing.T) {
	p := NewUserProfile("16135550100")
	p.Name = "Asha"
	p.Language = "Swahili"
	missing := p.MissingFields()
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing fields, got %d: %v", len(missing), missing)
	}
	for _, f := range missing {
		if f == FieldName || f == FieldLanguage {
			t.Errorf("field %q reported missing after being set", f)
		}
	}
	p.Country = "Kenya"
	p.Age = 34
	p.Gender = "female"
	if got := p.MissingFields(); len(got) != 0 {
		t.Errorf("expected no missing fields, got %v", got)
	}
}

func TestIsMissingAgeZeroValue(t *testing.T) {
	p := NewUserProfile("16135550100")
	if !p.IsMissing(FieldAge) {
		t.Error("age 0 should count as missing")
	}
	p.Age = 27
	if p.IsMissing(FieldAge) {
		t.Error("age 27 should not count as missing")
	}
}

func TestStageAdvancesForwardOnly(t *testing.T) {
	cases := []struct {
		from, to OnboardingStage
		want     bool
	}{
		{StageNone, StageCountry, true},
		{StageCountry, StageAge, true},
		{StageAge, StageGender, true},
		{StageGender, StageDone, true},
		{StageNone, StageDone, true},
		{StageDone, StageCountry, false},
		{StageAge, StageCountry, false},
		{StageCountry, StageCountry, false},
		{StageDone, "bogus", false},
		{"bogus", StageCountry, false},
	}
	for _, c := range cases {
		if got := c.from.AdvancesTo(c.to); got != c.want {
			t.Errorf("%q.AdvancesTo(%q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestIsValidStage(t *testing.T) {
	for _, s := range []OnboardingStage{StageNone, StageCountry, StageAge, StageGender, StageDone} {
		if !IsValidStage(s) {
			t.Errorf("stage %q should be valid", s)
		}
	}
	if IsValidStage("paused") {
		t.Error("unknown stage should not be valid")
	}
}

func TestProfileJSONRoundTrip(t *testing.T) {
	p := NewUserProfile("16135550100")
	p.Country = "Kenya"
	p.Age = 34
	p.MessageHistory = []ChatMessage{
		{Role: RoleSystem, Content: "seed"},
		{Role: RoleUser, Content: "I have a fever"},
	}
	data, err := p.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	var out UserProfile
	if err := out.FromJSON(data); err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}
	if out.Country != "Kenya" || out.Age != 34 {
		t.Errorf("round trip lost fields: %+v", out)
	}
	if len(out.MessageHistory) != 2 || out.MessageHistory[0].Role != RoleSystem {
		t.Errorf("round trip lost history: %+v", out.MessageHistory)
	}
}

func TestProfileUpdateIsZero(t *testing.T) {
	var u ProfileUpdate
	if !u.IsZero() {
		t.Error("empty update should be zero")
	}
	country := "Kenya"
	u.Country = &country
	if u.IsZero() {
		t.Error("update with country should not be zero")
	}
	u = ProfileUpdate{MessageHistory: []ChatMessage{}}
	if u.IsZero() {
		t.Error("update with non-nil history should not be zero")
	}
}

func TestInboundMessageValidate(t *testing.T) {
	m := InboundMessage{UserID: "16135550100", Body: "Hello", Type: MessageTypeText}
	if err := m.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	m.UserID = ""
	if err := m.Validate(); err != ErrEmptyUserID {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	m = InboundMessage{UserID: "16135550100", Type: MessageTypeText}
	if err := m.Validate(); err != ErrEmptyMessageBody {
		t.Errorf("expected ErrEmptyMessageBody, got %v", err)
	}
	m = InboundMessage{UserID: "16135550100", Type: "image"}
	if err := m.Validate(); err != nil {
		t.Errorf("non-text message without body should validate, got %v", err)
	}
}
