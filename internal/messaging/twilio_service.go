package messaging

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/twiliowhatsapp"
)

// TwilioService implements Service over the Twilio REST API. Inbound
// traffic arrives through the HTTP webhook, so the service itself has no
// background processing; ParseTwilioWebhook does the payload mapping for
// the webhook handler.
type TwilioService struct {
	client  twiliowhatsapp.Sender
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioService creates a TwilioService over a real or mock client.
func NewTwilioService(client twiliowhatsapp.Sender) *TwilioService {
	return &TwilioService{client: client}
}

// ValidateAndCanonicalizeRecipient reduces a WhatsApp recipient to bare
// digits.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start is a no-op; inbound messages come through the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop marks the service stopped; subsequent sends fail.
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

// SendMessage sends a message via Twilio after canonicalizing the
// recipient.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// ParseTwilioWebhook maps a Twilio webhook form into the canonical inbound
// message. The sender arrives channel-prefixed ("whatsapp:+16135550100")
// and is reduced to bare digits so both channels key the same profile.
func ParseTwilioWebhook(form url.Values) models.InboundMessage {
	from := strings.TrimPrefix(form.Get("From"), "whatsapp:")
	userID, err := canonicalizePhone(from)
	if err != nil {
		userID = ""
	}
	return models.InboundMessage{
		UserID:      userID,
		Body:        form.Get("Body"),
		DisplayName: form.Get("ProfileName"),
		Type:        models.MessageType(form.Get("MessageType")),
		Time:        time.Now().Unix(),
	}
}
