package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/gramcare/gramcare/internal/genai"
	"github.com/openai/openai-go"
)

// Translator rewrites canonical-language prompts into a user's preferred
// language via the text oracle. Translation into the canonical language is
// the identity function and makes no oracle call.
type Translator struct {
	genaiClient genai.ClientInterface
}

// NewTranslator creates a translator backed by the given oracle.
func NewTranslator(client genai.ClientInterface) *Translator {
	return &Translator{genaiClient: client}
}

// Translate returns text rendered in targetLanguage. Oracle failures
// propagate; callers fall back to the untranslated canonical text.
func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if targetLanguage == "" || strings.EqualFold(targetLanguage, CanonicalLanguage) {
		return text, nil
	}
	instruction := fmt.Sprintf("Only give the translation of the provided text into %s, with absolutely no other text.", targetLanguage)
	out, err := t.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(instruction),
		openai.UserMessage(text),
	})
	if err != nil {
		return "", fmt.Errorf("translation to %s failed: %w", targetLanguage, err)
	}
	return out, nil
}
