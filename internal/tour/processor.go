package tour

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/donna-assistant/donna/internal/intent"
	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
	"github.com/google/uuid"
)

// Processor is the orchestration layer over the session state machine. It
// accepts either an explicit command or a free-text message, classifies the
// latter, and writes a best-effort audit record for every invocation.
type Processor struct {
	store    store.Store
	sessions *SessionManager
}

// NewProcessor creates a command processor.
func NewProcessor(st store.Store, sessions *SessionManager) *Processor {
	slog.Debug("Creating tour Processor")
	return &Processor{store: st, sessions: sessions}
}

// Handle runs one command or message for a user. Failures come back as a
// structured result with Success=false; Handle never returns an error to the
// caller because the HTTP layer serializes the result either way.
func (p *Processor) Handle(ctx context.Context, userID string, req models.TourCommandRequest) *models.TourCommandResult {
	slog.Debug("Processor Handle", "userID", userID, "command", req.Command, "hasMessage", req.Message != "")

	var result *models.TourCommandResult
	var detected *models.Intent

	switch {
	case req.Command == "" && req.Message != "":
		detected = intent.Detect(req.Message)
		if detected == nil {
			result = failureResult("", nil, models.ErrIntentNotRecognized)
			break
		}
		if detected.IsStartIntent() {
			// Start intents go straight to StartTour so the first response
			// already carries the session, module and step payload.
			moduleID := detected.ModuleID
			tourType := models.TourTypeFull
			if detected.Intent == models.IntentSectionTour {
				tourType = models.TourTypeSection
			}
			res, err := p.sessions.StartTour(ctx, userID, moduleID, tourType)
			if err != nil {
				result = failureResult(models.TourCommandStart, detected, err)
				break
			}
			result = res
			break
		}
		command := detected.CommandFor()
		res, err := p.sessions.ProcessCommand(ctx, userID, command, req.Data)
		if err != nil {
			result = failureResult(command, detected, err)
			break
		}
		result = res
	case req.Command != "":
		res, err := p.sessions.ProcessCommand(ctx, userID, req.Command, req.Data)
		if err != nil {
			result = failureResult(req.Command, nil, err)
			break
		}
		result = res
	default:
		result = failureResult("", nil, models.ErrUnknownCommand)
	}

	if detected != nil {
		result.Intent = detected
	}
	p.logCommand(ctx, userID, req, detected, result)
	return result
}

// failureResult shapes an internal error into the uniform result structure.
// Error text never carries storage details beyond the typed error messages.
func failureResult(command models.TourCommand, detected *models.Intent, err error) *models.TourCommandResult {
	return &models.TourCommandResult{
		Success: false,
		Command: command,
		Intent:  detected,
		Error:   err.Error(),
	}
}

// logCommand writes the audit record. Failures are logged and swallowed so
// they never mask the primary result.
func (p *Processor) logCommand(ctx context.Context, userID string, req models.TourCommandRequest, detected *models.Intent, result *models.TourCommandResult) {
	entry := models.CommandLogEntry{
		ID:              uuid.New().String(),
		UserID:          userID,
		CommandType:     result.Command,
		OriginalMessage: req.Message,
		CreatedAt:       time.Now(),
	}
	if detected != nil {
		entry.DetectedIntent = detected.Intent
		entry.ConfidenceScore = detected.Confidence
	}
	if result.Session != nil {
		entry.TourSessionID = result.Session.ID
	} else if sess, err := p.sessions.GetActiveTour(ctx, userID); err == nil && sess != nil {
		entry.TourSessionID = sess.ID
	}
	if payload, err := json.Marshal(result); err == nil {
		entry.CommandResult = string(payload)
	}
	if err := p.store.AddCommandLogEntry(entry); err != nil {
		slog.Warn("Processor audit log write failed", "error", err, "userID", userID)
	}
}
