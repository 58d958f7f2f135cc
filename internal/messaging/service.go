// Package messaging provides the channel adapters between WhatsApp
// transports and the conversation flow: a pluggable delivery service plus
// the mapping from raw channel payloads to the canonical inbound message.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/gramcare/gramcare/internal/models"
)

// ErrServiceStopped is returned when a send is attempted after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit when
// canonicalizing recipients.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Handler processes one canonical inbound message and returns the reply to
// send back on the same channel.
type Handler func(ctx context.Context, msg models.InboundMessage) (string, error)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier. Each channel implements its own rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g. event handling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// canonicalizePhone reduces a recipient to bare digits and validates it.
// Sender ids from both channels pass through here, so a Twilio
// "whatsapp:+16135550100" and a whatsmeow "16135550100" key the same
// profile.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if recipient != canonical {
		slog.Debug("Messaging canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
