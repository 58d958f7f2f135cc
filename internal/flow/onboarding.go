package flow

import (
	"context"
	"log/slog"

	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/models"
)

// Decision is the single deterministic outcome of handling one inbound
// message: the profile mutations to apply (possibly none) and the reply to
// send. Exactly one reply goes out per message.
type Decision struct {
	Update models.ProfileUpdate
	Reply  string
}

// OnboardingFlow drives the onboarding state machine: it determines the
// missing-field priority, runs field extraction, advances the onboarding
// stage, and hands off to the chat session once onboarding is done.
type OnboardingFlow struct {
	extractor  *FieldExtractor
	translator *Translator
	chat       *ChatSessionManager
}

// NewOnboardingFlow wires the flow components around a shared oracle client.
func NewOnboardingFlow(client genai.ClientInterface) *OnboardingFlow {
	return &OnboardingFlow{
		extractor:  NewFieldExtractor(client),
		translator: NewTranslator(client),
		chat:       NewChatSessionManager(client),
	}
}

// Decide computes the decision for one inbound text message against the
// current profile. It never returns an error: oracle failures degrade to a
// repeated prompt or an apology, and the store is not touched here —
// mutations are applied by the caller in one partial update.
func (f *OnboardingFlow) Decide(ctx context.Context, profile *models.UserProfile, msg models.InboundMessage) Decision {
	// Language is a prerequisite for every translated prompt, so detection
	// runs before any stage-specific logic, whatever the stored stage is.
	if profile.IsMissing(models.FieldLanguage) {
		return f.decideLanguage(ctx, profile, msg)
	}

	lang := profile.Language

	// First pass: the missing-field priority only chooses a default prompt.
	var prompt string
	switch {
	case profile.IsMissing(models.FieldCountry):
		prompt = countryPrompt
	case profile.IsMissing(models.FieldAge):
		prompt = agePrompt
	case profile.IsMissing(models.FieldGender):
		prompt = genderPrompt
	}

	// Second pass: extraction keyed on the stored stage. A successful
	// extraction advances the stage and overrides the default prompt; a
	// failed one leaves everything untouched so the same prompt repeats.
	var update models.ProfileUpdate
	switch profile.OnboardingStage {
	case models.StageCountry:
		if value, err := f.extractor.Extract(ctx, msg.Body, FieldKindCountry); err == nil {
			stage := models.StageAge
			update = models.ProfileUpdate{Country: &value, OnboardingStage: &stage}
			prompt = agePrompt
			slog.Info("Onboarding country collected", "user_id", profile.ID)
		}
	case models.StageAge:
		if value, err := f.extractor.ExtractAge(ctx, msg.Body); err == nil {
			stage := models.StageGender
			update = models.ProfileUpdate{Age: &value, OnboardingStage: &stage}
			prompt = genderPrompt
			slog.Info("Onboarding age collected", "user_id", profile.ID)
		}
	case models.StageGender:
		if value, err := f.extractor.Extract(ctx, msg.Body, FieldKindGender); err == nil {
			stage := models.StageDone
			update = models.ProfileUpdate{Gender: &value, OnboardingStage: &stage}
			prompt = onboardedPrompt
			slog.Info("Onboarding complete", "user_id", profile.ID)
		}
	case models.StageDone:
		reply, history, err := f.chat.ContinueSession(ctx, profile, msg.Body)
		if err != nil {
			// The transcript is left untouched; a partial turn must never
			// be persisted.
			slog.Error("Chat session failed", "error", err, "user_id", profile.ID)
			return Decision{Reply: ApologyReply}
		}
		return Decision{
			Update: models.ProfileUpdate{MessageHistory: history},
			Reply:  reply,
		}
	default:
		// Stage none or an unrecognized value: no stage-specific action.
	}

	if prompt == "" {
		return Decision{Update: update, Reply: FallbackReply}
	}
	return Decision{Update: update, Reply: f.translatePrompt(ctx, prompt, lang)}
}

// decideLanguage handles the language prerequisite step: detect, persist
// {language, name, stage=country}, and ask for the country in the detected
// language. After this step the next stage is always country, regardless
// of whatever stage value was stored before.
func (f *OnboardingFlow) decideLanguage(ctx context.Context, profile *models.UserProfile, msg models.InboundMessage) Decision {
	lang, err := f.extractor.DetectLanguage(ctx, msg.Body)
	if err != nil {
		slog.Error("Language detection failed", "error", err, "user_id", profile.ID)
		return Decision{Reply: ApologyReply}
	}
	slog.Info("Language detected", "user_id", profile.ID, "language", lang)

	stage := models.StageCountry
	update := models.ProfileUpdate{
		Language:        &lang,
		OnboardingStage: &stage,
	}
	if msg.DisplayName != "" {
		name := msg.DisplayName
		update.Name = &name
	}
	return Decision{Update: update, Reply: f.translatePrompt(ctx, countryPrompt, lang)}
}

// translatePrompt renders a canonical prompt in the user's language,
// falling back to the canonical text if translation fails. The user always
// gets a reply, never a technical error.
func (f *OnboardingFlow) translatePrompt(ctx context.Context, prompt, lang string) string {
	out, err := f.translator.Translate(ctx, prompt, lang)
	if err != nil {
		slog.Warn("Prompt translation failed, using canonical text", "error", err, "language", lang)
		return prompt
	}
	return out
}
