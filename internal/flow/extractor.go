package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gramcare/gramcare/internal/genai"
	"github.com/openai/openai-go"
)

// ErrFieldNotFound signals that the oracle could not identify the requested
// field in the message, or that the oracle call itself failed. The caller
// treats it as "no new information this turn".
var ErrFieldNotFound = errors.New("field not found in message")

// FieldKind names a profile attribute the extractor can pull from free text.
type FieldKind string

const (
	FieldKindCountry FieldKind = "country"
	FieldKindAge     FieldKind = "age"
	FieldKindGender  FieldKind = "gender"
)

// notFoundSentinel is the token the oracle is instructed to return when the
// field is absent or ambiguous. Compared case-insensitively after trimming;
// the oracle is not trusted to return it verbatim.
const notFoundSentinel = "null"

// extractionInstructions are the strict per-field oracle instructions.
var extractionInstructions = map[FieldKind]string{
	FieldKindCountry: "Based on the given input, you only need to identify the COUNTRY NAME. Reply with only the name of the country and absolutely no other text. If the input is not a country, reply with only: null",
	FieldKindAge:     "Based on the given input, you only need to identify the AGE AS AN INTEGER. Reply with only the age and absolutely no other text. If the input is not an age, reply with only: null",
	FieldKindGender:  "Based on the given input, you only need to identify the GENDER. Reply with only the gender and absolutely no other text. If the input is not a gender, reply with only: null",
}

const languageDetectionInstruction = "Based on the given input, you only need to detect the LANGUAGE. Reply with only the name of the language and absolutely no other text."

// FieldExtractor turns one free-text message plus a target field into a
// structured value, delegating to the text oracle.
type FieldExtractor struct {
	genaiClient genai.ClientInterface
}

// NewFieldExtractor creates an extractor backed by the given oracle.
func NewFieldExtractor(client genai.ClientInterface) *FieldExtractor {
	return &FieldExtractor{genaiClient: client}
}

// Extract identifies the named field in rawText. Returns ErrFieldNotFound
// when the oracle reports the sentinel, returns an empty value, or fails
// outright; an oracle failure degrades to "not found" so the conversation
// stays at the same stage and the prompt is repeated.
func (e *FieldExtractor) Extract(ctx context.Context, rawText string, kind FieldKind) (string, error) {
	instruction, ok := extractionInstructions[kind]
	if !ok {
		return "", fmt.Errorf("unknown field kind %q", kind)
	}
	out, err := e.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(instruction),
		openai.UserMessage(rawText),
	})
	if err != nil {
		slog.Warn("FieldExtractor oracle call failed, treating as not found", "error", err, "kind", kind)
		return "", ErrFieldNotFound
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.EqualFold(out, notFoundSentinel) {
		slog.Debug("FieldExtractor no value identified", "kind", kind)
		return "", ErrFieldNotFound
	}
	return out, nil
}

// ExtractAge extracts the age field and guards the integer parse; the
// oracle is not guaranteed to obey the integer-only instruction.
func (e *FieldExtractor) ExtractAge(ctx context.Context, rawText string) (int, error) {
	out, err := e.Extract(ctx, rawText, FieldKindAge)
	if err != nil {
		return 0, err
	}
	age, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		slog.Debug("FieldExtractor age not an integer", "value", out)
		return 0, ErrFieldNotFound
	}
	return age, nil
}

// DetectLanguage identifies the language of rawText. Unlike Extract, an
// oracle failure propagates: language is a prerequisite for every
// translated prompt and the caller needs to fall back to an apology.
func (e *FieldExtractor) DetectLanguage(ctx context.Context, rawText string) (string, error) {
	out, err := e.genaiClient.GenerateWithMessages(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(languageDetectionInstruction),
		openai.UserMessage(rawText),
	})
	if err != nil {
		return "", fmt.Errorf("language detection failed: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("language detection returned empty result")
	}
	return out, nil
}
