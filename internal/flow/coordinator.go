package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/store"
)

// Coordinator is the control flow for one inbound message: get-or-create
// the profile, run the onboarding/chat decision, apply mutations as one
// partial update, and return exactly one reply.
//
// The profile store gives no cross-request atomicity, so two concurrent
// messages from the same sender would race on load-modify-store.
// Per-sender serialization (a keyed mutex) closes that window; it is on by
// default and can be disabled to reproduce the reference behavior.
type Coordinator struct {
	store     store.ProfileStore
	flow      *OnboardingFlow
	serialize bool

	mu          sync.Mutex
	senderLocks map[string]*sync.Mutex
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSenderSerialization toggles per-sender serialization of message
// handling. Disabling it restores the racy reference behavior.
func WithSenderSerialization(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.serialize = enabled }
}

// NewCoordinator creates a coordinator over the given store and oracle.
func NewCoordinator(st store.ProfileStore, client genai.ClientInterface, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:       st,
		flow:        NewOnboardingFlow(client),
		serialize:   true,
		senderLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// senderLock returns the mutex serializing handling for one sender id.
func (c *Coordinator) senderLock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.senderLocks[id]
	if !ok {
		l = &sync.Mutex{}
		c.senderLocks[id] = l
	}
	return l
}

// HandleMessage processes one inbound message and returns the reply body.
// A non-nil error means persistence failed; the caller decides whether the
// transport can surface it or must fall back to an apology reply.
func (c *Coordinator) HandleMessage(ctx context.Context, msg models.InboundMessage) (string, error) {
	if msg.Type != models.MessageTypeText {
		// Non-text payloads get the fixed fallback with no side effects.
		slog.Debug("Coordinator unsupported message type", "type", msg.Type, "user_id", msg.UserID)
		return FallbackReply, nil
	}
	if err := msg.Validate(); err != nil {
		slog.Warn("Coordinator invalid inbound message", "error", err)
		return FallbackReply, nil
	}

	if c.serialize {
		l := c.senderLock(msg.UserID)
		l.Lock()
		defer l.Unlock()
	}

	profile, err := c.store.GetProfile(ctx, msg.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load profile for %s: %w", msg.UserID, err)
	}
	if profile == nil {
		profile = models.NewUserProfile(msg.UserID)
		if err := c.store.CreateProfile(ctx, profile); err != nil {
			return "", fmt.Errorf("failed to create profile for %s: %w", msg.UserID, err)
		}
		slog.Info("Coordinator created profile for new sender", "user_id", msg.UserID)
	}

	if err := c.store.LogInboundMessage(ctx, msg); err != nil {
		// The message log is diagnostic; a failed insert must not cost the
		// user their reply.
		slog.Warn("Coordinator failed to log inbound message", "error", err, "user_id", msg.UserID)
	}

	decision := c.flow.Decide(ctx, profile, msg)

	if !decision.Update.IsZero() {
		if err := c.store.UpdateProfile(ctx, msg.UserID, decision.Update); err != nil {
			return "", fmt.Errorf("failed to update profile for %s: %w", msg.UserID, err)
		}
	}

	slog.Debug("Coordinator handled message", "user_id", msg.UserID, "mutated", !decision.Update.IsZero())
	return decision.Reply, nil
}
