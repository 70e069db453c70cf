// Package api provides the HTTP surface of DONNA: tour commands, the module
// catalog, onboarding progress, the assistant chat endpoint and the inbound
// SMS webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/donna-assistant/donna/internal/genai"
	"github.com/donna-assistant/donna/internal/messaging"
	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/onboarding"
	"github.com/donna-assistant/donna/internal/store"
	"github.com/donna-assistant/donna/internal/tour"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
	// GenAI answers chat messages without a tour intent. Optional; without it
	// the chat endpoint falls back to canned onboarding prompts.
	GenAI genai.ClientInterface
	// Messaging provides the SMS channel and its webhook. Optional.
	Messaging messaging.Service
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithGenAIClient sets the reply generation client.
func WithGenAIClient(c genai.ClientInterface) Option {
	return func(o *Opts) { o.GenAI = c }
}

// WithMessagingService sets the SMS delivery service.
func WithMessagingService(svc messaging.Service) Option {
	return func(o *Opts) { o.Messaging = svc }
}

// Server wires the tour engine, onboarding tracker and channels to HTTP.
type Server struct {
	addr      string
	store     store.Store
	catalog   *tour.Catalog
	sessions  *tour.SessionManager
	processor *tour.Processor
	tracker   *onboarding.Tracker
	genai     genai.ClientInterface
	messaging messaging.Service
}

// NewServer creates an API server over a store, constructing the tour and
// onboarding components on top of it.
func NewServer(st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	catalog := tour.NewCatalog(st)
	sessions := tour.NewSessionManager(st, catalog)
	return &Server{
		addr:      cfg.Addr,
		store:     st,
		catalog:   catalog,
		sessions:  sessions,
		processor: tour.NewProcessor(st, sessions),
		tracker:   onboarding.NewTracker(st),
		genai:     cfg.GenAI,
		messaging: cfg.Messaging,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tours/command", s.tourCommandHandler)
	mux.HandleFunc("/tours/modules", s.tourModulesHandler)
	mux.HandleFunc("/tours/active", s.activeTourHandler)
	mux.HandleFunc("/onboarding/state", s.onboardingStateHandler)
	mux.HandleFunc("/onboarding/field", s.onboardingFieldHandler)
	mux.HandleFunc("/onboarding/complete", s.onboardingCompleteHandler)
	mux.HandleFunc("/onboarding/reset", s.onboardingResetHandler)
	mux.HandleFunc("/onboarding/progress", s.onboardingProgressHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if ts, ok := s.messaging.(*messaging.TwilioService); ok {
		mux.HandleFunc("/webhook/sms", ts.WebhookHandler)
	}
	return mux
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("DONNA API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
			return err
		}
		slog.Info("Server shut down")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server listen error", "error", err)
		return err
	}
}

// SMSRouter returns the routing callback the SMS response handler uses: the
// same assistant logic as the chat endpoint, flattened to a text reply.
func (s *Server) SMSRouter() messaging.RouterFunc {
	return func(ctx context.Context, userID, message string) string {
		reply := s.routeMessage(ctx, userID, message)
		if reply.Tour != nil {
			return renderTourReply(reply.Tour)
		}
		return reply.Reply
	}
}

// routeMessage is the assistant entry shared by the chat endpoint and the SMS
// channel: tour-shaped messages go through the command processor, everything
// else gets a generated reply with the next onboarding question injected for
// first-time users.
func (s *Server) routeMessage(ctx context.Context, userID, message string) models.ChatReply {
	result := s.processor.Handle(ctx, userID, models.TourCommandRequest{Message: message})
	if result.Success || result.Error != models.ErrIntentNotRecognized.Error() {
		return models.ChatReply{Tour: result}
	}
	return models.ChatReply{Reply: s.conversationalReply(ctx, userID, message)}
}

// conversationalReply produces a non-tour answer. Without a GenAI client the
// reply falls back to the pending onboarding question or a tour suggestion.
func (s *Server) conversationalReply(ctx context.Context, userID, message string) string {
	var onboardingHint string
	if first, err := s.tracker.IsFirstTimeUser(ctx, userID); err == nil && first {
		if next, err := s.tracker.GetNextStep(ctx, userID); err == nil && next != "" {
			onboardingHint = next
		}
	}

	if s.genai == nil {
		if onboardingHint != "" {
			return onboardingQuestion(onboardingHint)
		}
		return "I can walk you through the product. Just say \"give me a tour\"."
	}

	systemPrompt := genai.SystemPrompt
	if onboardingHint != "" {
		systemPrompt += " The user has not finished onboarding. After answering, ask for their " + onboardingHint + "."
	}
	reply, err := s.genai.GenerateReply(ctx, systemPrompt, message)
	if err != nil {
		slog.Error("Server.conversationalReply: generation failed", "error", err, "userID", userID)
		if onboardingHint != "" {
			return onboardingQuestion(onboardingHint)
		}
		return "Sorry, I could not process that right now."
	}
	return reply
}

// onboardingQuestion phrases the prompt for one missing onboarding field.
func onboardingQuestion(field string) string {
	switch field {
	case models.MissingFieldName:
		return "Before we get started, what's your name?"
	case models.MissingFieldBusinessName:
		return "What's the name of your business?"
	case models.MissingFieldPersonality:
		return "How should I sound when I talk to your customers? Formal, friendly, or somewhere in between?"
	default:
		return "Let's finish setting up your account."
	}
}

// renderTourReply flattens a tour result into SMS text.
func renderTourReply(result *models.TourCommandResult) string {
	if !result.Success {
		return result.Error
	}
	text := result.Message
	if result.CurrentStep != nil {
		if text != "" {
			text += "\n"
		}
		text += result.CurrentStep.Step.Title + ": " + result.CurrentStep.Text
	}
	if result.Progress != nil && result.Progress.Total > 0 && !result.Completed {
		text += fmt.Sprintf(" (%d/%d)", result.Progress.Current, result.Progress.Total)
	}
	return text
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
