package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/openai/openai-go"
)

// ChatSessionManager maintains the steady-state chat once onboarding is
// complete: it seeds the transcript with a personalized system prompt,
// appends turns, and produces assistant replies over the full history.
type ChatSessionManager struct {
	genaiClient genai.ClientInterface
}

// NewChatSessionManager creates a session manager backed by the given oracle.
func NewChatSessionManager(client genai.ClientInterface) *ChatSessionManager {
	return &ChatSessionManager{genaiClient: client}
}

// ContinueSession appends the user's turn to the transcript, generates an
// assistant reply over the full history, and returns the reply with the
// updated transcript for persistence. On oracle failure nothing is
// returned for persistence, so the stored transcript keeps its strict
// user/assistant alternation.
func (m *ChatSessionManager) ContinueSession(ctx context.Context, profile *models.UserProfile, userText string) (string, []models.ChatMessage, error) {
	history := profile.MessageHistory
	if len(history) == 0 {
		history = []models.ChatMessage{{
			Role:    models.RoleSystem,
			Content: healthSystemPrompt(profile.Country, profile.Age, profile.Gender, profile.Language),
		}}
		slog.Debug("ChatSessionManager seeded transcript", "user_id", profile.ID)
	}
	history = append(history, models.ChatMessage{Role: models.RoleUser, Content: userText})

	reply, err := m.genaiClient.GenerateWithMessages(ctx, buildOracleMessages(history))
	if err != nil {
		return "", nil, fmt.Errorf("chat session completion failed: %w", err)
	}

	history = append(history, models.ChatMessage{Role: models.RoleAssistant, Content: reply})
	slog.Debug("ChatSessionManager turn complete", "user_id", profile.ID, "history_length", len(history))
	return reply, history, nil
}

// buildOracleMessages converts a stored transcript into the oracle's
// message format.
func buildOracleMessages(history []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}
