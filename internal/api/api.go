// Package api provides the HTTP surface of GramCare: the Twilio webhook,
// a stateless ask endpoint, proactive sends, and operator visibility into
// onboarding progress.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gramcare/gramcare/internal/flow"
	"github.com/gramcare/gramcare/internal/genai"
	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/reminder"
	"github.com/gramcare/gramcare/internal/store"
)

// DefaultAddr is the default API listen address.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr         string
	ReminderCron string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithReminderCron sets the cron expression for the onboarding nudge scan.
func WithReminderCron(expr string) Option {
	return func(o *Opts) { o.ReminderCron = expr }
}

// Server wires the conversation coordinator, profile store, oracle and
// messaging service behind HTTP handlers.
type Server struct {
	addr        string
	st          store.ProfileStore
	coordinator *flow.Coordinator
	genaiClient genai.ClientInterface
	msgService  messaging.Service
}

// NewServer creates an API server over already-constructed dependencies.
func NewServer(st store.ProfileStore, client genai.ClientInterface, msgService messaging.Service, coordOpts []flow.CoordinatorOption, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:        cfg.Addr,
		st:          st,
		coordinator: flow.NewCoordinator(st, client, coordOpts...),
		genaiClient: client,
		msgService:  msgService,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.twilioWebhookHandler)
	mux.HandleFunc("POST /api", s.askHandler)
	mux.HandleFunc("POST /send", s.sendHandler)
	mux.HandleFunc("GET /profiles", s.listProfilesHandler)
	mux.HandleFunc("GET /profiles/{id}", s.getProfileHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// HandleInbound exposes the coordinator as a messaging.Handler for
// channels that deliver inbound messages as events instead of webhooks.
func (s *Server) HandleInbound(ctx context.Context, msg models.InboundMessage) (string, error) {
	return s.coordinator.HandleMessage(ctx, msg)
}

// Run constructs the store, oracle, messaging service and reminder
// scheduler from options and serves until the listener fails.
//
// The messaging service is built through a factory because event-driven
// channels need the coordinator as their inbound handler, and the
// coordinator only exists once the store and oracle do.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, buildService func(messaging.Handler) (messaging.Service, error), coordOpts []flow.CoordinatorOption, opts ...Option) error {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}
	defer st.Close()

	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize oracle client: %w", err)
	}

	coordinator := flow.NewCoordinator(st, client, coordOpts...)
	msgService, err := buildService(coordinator.HandleMessage)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging service: %w", err)
	}

	srv := &Server{
		addr:        cfg.Addr,
		st:          st,
		coordinator: coordinator,
		genaiClient: client,
		msgService:  msgService,
	}
	if srv.addr == "" {
		srv.addr = DefaultAddr
	}

	ctx := context.Background()
	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer msgService.Stop()

	rem := reminder.New(st, msgService, client)
	if err := rem.Start(cfg.ReminderCron); err != nil {
		return fmt.Errorf("failed to start reminder scheduler: %w", err)
	}
	defer rem.Stop()

	slog.Info("GramCare API listening", "addr", srv.addr)
	return http.ListenAndServe(srv.addr, srv.Handler())
}
