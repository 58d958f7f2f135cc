package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error when no credentials are configured")
	}
}

func TestNewClientRequiresFromNumber(t *testing.T) {
	t.Setenv("TWILIO_FROM_NUMBER", "")

	_, err := NewClient(WithAccountSID("ACxxx"), WithAuthToken("token"))
	if err == nil {
		t.Error("expected error when fromWhats is not configured")
	}
}

func TestNewClientEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACenv")
	t.Setenv("TWILIO_AUTH_TOKEN", "tokenenv")
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+15550001111")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestNewClientOptionsOverrideEnv(t *testing.T) {
	t.Setenv("TWILIO_FROM_NUMBER", "whatsapp:+15550001111")

	c, err := NewClient(
		WithAccountSID("ACopt"),
		WithAuthToken("tokenopt"),
		WithFromWhats("whatsapp:+15550002222"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550002222" {
		t.Errorf("fromWhats = %q, want option value", c.fromWhats)
	}
}

func TestMockClientRecordsMessages(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "16135550100", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "16135550100" || mock.SentMessages[0].Body != "Hello Test" {
		t.Errorf("unexpected recorded message: %+v", mock.SentMessages[0])
	}
}

func TestMockClientInjectedError(t *testing.T) {
	mock := NewMockClient()
	mock.SendErr = errors.New("boom")

	if err := mock.SendMessage(context.Background(), "16135550100", "x"); err == nil {
		t.Error("expected injected error")
	}
	if len(mock.SentMessages) != 0 {
		t.Error("failed send must not be recorded")
	}
}
