package messaging

import (
	"context"
	"log/slog"

	"github.com/gramcare/gramcare/internal/flow"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// mediaMessageType marks inbound payloads with no text content. The flow
// short-circuits anything that is not text to the fixed fallback.
const mediaMessageType models.MessageType = "media"

// WhatsAppService implements Service over the whatsmeow-based client.
// Unlike Twilio there is no webhook: inbound messages arrive as client
// events, get mapped to the canonical tuple, and are handed to the
// configured Handler; its reply is sent straight back.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // nil with mock clients; no event handling then
	handler  Handler
}

// NewWhatsAppService creates a WhatsAppService around the given sender.
func NewWhatsAppService(client whatsapp.WhatsAppSender, handler Handler) *WhatsAppService {
	service := &WhatsAppService{client: client, handler: handler}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	} else {
		slog.Debug("WhatsAppService created with interface client, event handling disabled")
	}
	return service
}

// ValidateAndCanonicalizeRecipient reduces a WhatsApp recipient to bare
// digits.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the inbound event handler on the underlying client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService Start: no full client, skipping event handling")
		return nil
	}
	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if v, ok := evt.(*events.Message); ok {
			s.handleIncomingMessage(ctx, v)
		}
	})
	slog.Info("WhatsAppService event handler registered")
	return nil
}

// Stop is a no-op; the whatsmeow client owns its own connection lifecycle.
func (s *WhatsAppService) Stop() error {
	return nil
}

// SendMessage sends a message after canonicalizing the recipient.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonicalTo, body)
}

// handleIncomingMessage maps one message event to the canonical tuple,
// runs the handler, and replies on the same channel. The user always gets
// a reply, even when persistence failed.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	msg, ok := inboundFromEvent(evt)
	if !ok {
		return
	}

	reply, err := s.handler(ctx, msg)
	if err != nil {
		slog.Error("WhatsAppService handler failed", "error", err, "user_id", msg.UserID)
		reply = flow.ApologyReply
	}
	if reply == "" {
		return
	}
	if err := s.client.SendMessage(ctx, msg.UserID, reply); err != nil {
		slog.Error("WhatsAppService reply send failed", "error", err, "user_id", msg.UserID)
	}
}

// inboundFromEvent maps a whatsmeow message event to the canonical inbound
// tuple. Returns false for events with no message payload. Non-text
// payloads are kept with a media type so the flow can answer them with the
// fixed fallback.
func inboundFromEvent(evt *events.Message) (models.InboundMessage, bool) {
	if evt.Message == nil {
		return models.InboundMessage{}, false
	}

	msgType := models.MessageTypeText
	var body string
	switch {
	case evt.Message.Conversation != nil:
		body = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		body = *evt.Message.ExtendedTextMessage.Text
	default:
		msgType = mediaMessageType
	}

	return models.InboundMessage{
		UserID:      evt.Info.Sender.User,
		Body:        body,
		DisplayName: evt.Info.PushName,
		Type:        msgType,
		Time:        evt.Info.Timestamp.Unix(),
	}, true
}
