package messaging

import (
	"context"
	"net/url"
	"testing"

	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/twiliowhatsapp"
)

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"16135550100", "16135550100", false},
		{"+1 (613) 555-0100", "16135550100", false},
		{"whatsapp:+16135550100", "16135550100", false},
		{"", "", true},
		{"abc", "", true},
		{"123", "", true},
	}
	for _, c := range cases {
		got, err := s.ValidateAndCanonicalizeRecipient(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("recipient %q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("recipient %q: unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("recipient %q: canonical = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTwilioServiceSendCanonicalizes(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioService(mock)

	if err := s.SendMessage(context.Background(), "whatsapp:+16135550100", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "16135550100" {
		t.Errorf("sent to %q, want canonical digits", mock.SentMessages[0].To)
	}
}

func TestTwilioServiceSendAfterStop(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := s.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SendMessage(context.Background(), "16135550100", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestParseTwilioWebhookText(t *testing.T) {
	form := url.Values{}
	form.Set("MessageType", "text")
	form.Set("From", "whatsapp:+16135550100")
	form.Set("Body", "Hello")
	form.Set("ProfileName", "Asha")

	msg := ParseTwilioWebhook(form)
	if msg.UserID != "16135550100" {
		t.Errorf("user id = %q, want bare digits", msg.UserID)
	}
	if msg.Type != models.MessageTypeText {
		t.Errorf("type = %q, want text", msg.Type)
	}
	if msg.Body != "Hello" || msg.DisplayName != "Asha" {
		t.Errorf("unexpected payload mapping: %+v", msg)
	}
}

func TestParseTwilioWebhookNonText(t *testing.T) {
	form := url.Values{}
	form.Set("MessageType", "image")
	form.Set("From", "whatsapp:+16135550100")

	msg := ParseTwilioWebhook(form)
	if msg.Type == models.MessageTypeText {
		t.Error("non-text payload must not map to the text type")
	}
	if msg.UserID != "16135550100" {
		t.Errorf("user id = %q", msg.UserID)
	}
}

func TestParseTwilioWebhookMissingFrom(t *testing.T) {
	form := url.Values{}
	form.Set("MessageType", "text")
	form.Set("Body", "Hello")

	msg := ParseTwilioWebhook(form)
	if msg.UserID != "" {
		t.Errorf("user id = %q, want empty for invalid sender", msg.UserID)
	}
	if err := msg.Validate(); err == nil {
		t.Error("message without sender must fail validation")
	}
}
