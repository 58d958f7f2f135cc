// Package reminder nudges senders who stalled mid-onboarding by re-sending
// the question their profile is waiting on, on a cron schedule.
package reminder

import (
	"context"
	"log/slog"

	"github.com/gramcare/gramcare/internal/flow"
	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/store"
	"github.com/robfig/cron/v3"
)

// DefaultCronSpec runs the nudge scan once a day at 09:00.
const DefaultCronSpec = "0 9 * * *"

// Reminder periodically scans profiles and re-asks the pending onboarding
// question over the configured messaging channel.
type Reminder struct {
	cron       *cron.Cron
	st         store.ProfileStore
	sender     messaging.Service
	translator *flow.Translator
}

// New creates a reminder service. The oracle client is used to translate
// nudges into each user's language.
func New(st store.ProfileStore, sender messaging.Service, client genai.ClientInterface) *Reminder {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Reminder{
		cron:       c,
		st:         st,
		sender:     sender,
		translator: flow.NewTranslator(client),
	}
}

// Start schedules the nudge scan with the given cron expression and starts
// the scheduler. An empty expression uses DefaultCronSpec.
func (r *Reminder) Start(cronExpr string) error {
	if cronExpr == "" {
		cronExpr = DefaultCronSpec
	}
	if _, err := r.cron.AddFunc(cronExpr, func() { r.runOnce(context.Background()) }); err != nil {
		return err
	}
	r.cron.Start()
	slog.Info("Reminder scheduler started", "cron", cronExpr)
	return nil
}

// Stop stops the scheduler and waits for a running scan to finish.
func (r *Reminder) Stop() {
	<-r.cron.Stop().Done()
}

// runOnce scans all profiles and nudges the ones stuck on an onboarding
// question. Send failures are logged per profile; the scan continues.
func (r *Reminder) runOnce(ctx context.Context) {
	profiles, err := r.st.ListProfiles(ctx)
	if err != nil {
		slog.Error("Reminder profile scan failed", "error", err)
		return
	}

	nudged := 0
	for _, p := range profiles {
		prompt, pending := flow.PromptForStage(p.OnboardingStage)
		if !pending {
			continue
		}
		body, err := r.translator.Translate(ctx, prompt, p.Language)
		if err != nil {
			// Nudge in the canonical language rather than skip the user.
			slog.Warn("Reminder translation failed, using canonical text", "error", err, "user_id", p.ID)
			body = prompt
		}
		if err := r.sender.SendMessage(ctx, p.ID, body); err != nil {
			slog.Error("Reminder send failed", "error", err, "user_id", p.ID)
			continue
		}
		nudged++
	}
	slog.Info("Reminder scan complete", "profiles", len(profiles), "nudged", nudged)
}
