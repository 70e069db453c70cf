package tour

import (
	"context"
	"log/slog"
	"time"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
	"github.com/google/uuid"
)

// DefaultModuleID is the module started when a start command names none.
const DefaultModuleID = "tour_dashboard"

// SessionManager drives the per-user tour session state machine. All state
// transitions go through conditional store writes so the at-most-one-active-
// session invariant holds under concurrent requests for the same user.
type SessionManager struct {
	store   store.Store
	catalog *Catalog
}

// NewSessionManager creates a session manager using the given store and catalog.
func NewSessionManager(st store.Store, catalog *Catalog) *SessionManager {
	slog.Debug("Creating tour SessionManager")
	return &SessionManager{store: st, catalog: catalog}
}

// StartTour creates a running session at the module's first step. It fails
// with ErrModuleNotFound for unknown modules and ErrTourAlreadyActive when
// the user already has a running or paused session.
func (sm *SessionManager) StartTour(ctx context.Context, userID, moduleID string, tourType models.TourType) (*models.TourCommandResult, error) {
	slog.Debug("SessionManager StartTour", "userID", userID, "moduleID", moduleID, "tourType", tourType)
	if moduleID == "" {
		moduleID = DefaultModuleID
	}
	if !models.IsValidTourType(tourType) {
		tourType = models.TourTypeFull
	}

	module, err := sm.catalog.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if module == nil {
		slog.Warn("SessionManager StartTour: module not found", "userID", userID, "moduleID", moduleID)
		return nil, models.ErrModuleNotFound
	}

	now := time.Now()
	sess := models.TourSession{
		ID:           uuid.New().String(),
		UserID:       userID,
		TourModuleID: module.ModuleID,
		TourType:     tourType,
		Status:       models.SessionStatusRunning,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if first := module.StepAt(0); first != nil {
		sess.CurrentStepID = first.StepID
	}

	created, err := sm.store.CreateTourSessionIfNoneActive(sess)
	if err != nil {
		slog.Error("SessionManager StartTour create error", "error", err, "userID", userID)
		return nil, err
	}
	if !created {
		slog.Debug("SessionManager StartTour: active session exists", "userID", userID)
		return nil, models.ErrTourAlreadyActive
	}

	result, err := sm.stepResult(ctx, models.TourCommandStart, &sess, module)
	if err != nil {
		return nil, err
	}
	result.Message = "Tour started: " + module.ModuleName
	slog.Info("SessionManager started tour", "userID", userID, "moduleID", module.ModuleID, "sessionID", sess.ID)
	return result, nil
}

// GetActiveTour returns the user's running or paused session, or nil.
func (sm *SessionManager) GetActiveTour(ctx context.Context, userID string) (*models.TourSession, error) {
	sess, err := sm.store.GetActiveTourSession(userID)
	if err != nil {
		slog.Error("SessionManager GetActiveTour error", "error", err, "userID", userID)
		return nil, err
	}
	return sess, nil
}

// NextStep marks the current step completed and advances the session. When
// the advance runs past the final step the session transitions to completed.
func (sm *SessionManager) NextStep(ctx context.Context, userID string) (*models.TourCommandResult, error) {
	sess, module, err := sm.runningSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sm.advance(ctx, models.TourCommandNext, sess, module, true)
}

// SkipStep records the target step (explicit stepID, or the current step when
// empty) as skipped and advances exactly like NextStep. Skipped steps are
// never added to completed_steps.
func (sm *SessionManager) SkipStep(ctx context.Context, userID, stepID string) (*models.TourCommandResult, error) {
	sess, module, err := sm.runningSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stepID == "" {
		stepID = sess.CurrentStepID
	}
	sess.MarkStepSkipped(stepID)
	return sm.advance(ctx, models.TourCommandSkip, sess, module, false)
}

// PauseTour suspends a running session. Fails with ErrTourNotRunning unless
// the status is exactly running.
func (sm *SessionManager) PauseTour(ctx context.Context, userID string) (*models.TourCommandResult, error) {
	sess, err := sm.GetActiveTour(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, models.ErrNoActiveTour
	}
	if sess.Status != models.SessionStatusRunning {
		return nil, models.ErrTourNotRunning
	}

	now := time.Now()
	sess.Status = models.SessionStatusPaused
	sess.PausedAt = &now
	sess.UpdatedAt = now
	if err := sm.applyTransition(sess, models.SessionStatusRunning); err != nil {
		return nil, err
	}
	slog.Info("SessionManager paused tour", "userID", userID, "sessionID", sess.ID)
	return &models.TourCommandResult{
		Success: true,
		Command: models.TourCommandPause,
		Session: sess,
		Message: "Tour paused",
	}, nil
}

// ResumeTour returns a paused session to running and re-fetches the current
// step data from the catalog. Fails with ErrTourNotRunning unless the status
// is exactly paused.
func (sm *SessionManager) ResumeTour(ctx context.Context, userID string) (*models.TourCommandResult, error) {
	sess, err := sm.GetActiveTour(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, models.ErrNoActiveTour
	}
	if sess.Status != models.SessionStatusPaused {
		return nil, models.ErrTourNotRunning
	}

	sess.Status = models.SessionStatusRunning
	sess.PausedAt = nil
	sess.UpdatedAt = time.Now()
	if err := sm.applyTransition(sess, models.SessionStatusPaused); err != nil {
		return nil, err
	}

	module, err := sm.catalog.GetModule(ctx, sess.TourModuleID)
	if err != nil {
		return nil, err
	}
	if module == nil {
		return nil, models.ErrModuleNotFound
	}
	result, err := sm.stepResult(ctx, models.TourCommandResume, sess, module)
	if err != nil {
		return nil, err
	}
	result.Message = "Tour resumed"
	slog.Info("SessionManager resumed tour", "userID", userID, "sessionID", sess.ID)
	return result, nil
}

// StopTour cancels the active session from either running or paused.
func (sm *SessionManager) StopTour(ctx context.Context, userID string) (*models.TourCommandResult, error) {
	sess, err := sm.GetActiveTour(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, models.ErrNoActiveTour
	}

	now := time.Now()
	sess.Status = models.SessionStatusCancelled
	sess.CancelledAt = &now
	sess.UpdatedAt = now
	if err := sm.applyTransition(sess, models.SessionStatusRunning, models.SessionStatusPaused); err != nil {
		return nil, err
	}
	slog.Info("SessionManager stopped tour", "userID", userID, "sessionID", sess.ID)
	return &models.TourCommandResult{
		Success: true,
		Command: models.TourCommandStop,
		Session: sess,
		Message: "Tour cancelled",
	}, nil
}

// ProcessCommand dispatches a command to the matching operation. Unknown
// commands fail with ErrUnknownCommand.
func (sm *SessionManager) ProcessCommand(ctx context.Context, userID string, command models.TourCommand, data map[string]string) (*models.TourCommandResult, error) {
	slog.Debug("SessionManager ProcessCommand", "userID", userID, "command", command)
	switch command {
	case models.TourCommandStart:
		return sm.StartTour(ctx, userID, data["module_id"], models.TourType(data["tour_type"]))
	case models.TourCommandStop, models.TourCommandCancel:
		return sm.StopTour(ctx, userID)
	case models.TourCommandNext:
		return sm.NextStep(ctx, userID)
	case models.TourCommandSkip:
		return sm.SkipStep(ctx, userID, data["step_id"])
	case models.TourCommandPause:
		return sm.PauseTour(ctx, userID)
	case models.TourCommandResume:
		return sm.ResumeTour(ctx, userID)
	default:
		slog.Warn("SessionManager ProcessCommand: unknown command", "userID", userID, "command", command)
		return nil, models.ErrUnknownCommand
	}
}

// runningSession loads the user's session and its module for a step command.
// Paused sessions reject step commands with ErrTourNotRunning.
func (sm *SessionManager) runningSession(ctx context.Context, userID string) (*models.TourSession, *models.TourModule, error) {
	sess, err := sm.GetActiveTour(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, models.ErrNoActiveTour
	}
	if sess.Status != models.SessionStatusRunning {
		return nil, nil, models.ErrTourNotRunning
	}
	module, err := sm.catalog.GetModule(ctx, sess.TourModuleID)
	if err != nil {
		return nil, nil, err
	}
	if module == nil {
		return nil, nil, models.ErrModuleNotFound
	}
	return sess, module, nil
}

// advance moves the session one step forward, completing it when the next
// index runs past the module's final step. markCompleted controls whether the
// departing step lands in completed_steps; skip passes false.
func (sm *SessionManager) advance(ctx context.Context, command models.TourCommand, sess *models.TourSession, module *models.TourModule, markCompleted bool) (*models.TourCommandResult, error) {
	if markCompleted {
		sess.MarkStepCompleted(sess.CurrentStepID)
	}
	now := time.Now()
	sess.UpdatedAt = now

	nextIndex := sess.CurrentStepIndex + 1
	if module.StepCount() == 0 || nextIndex >= module.StepCount() {
		sess.Status = models.SessionStatusCompleted
		sess.CompletedAt = &now
		if err := sm.applyTransition(sess, models.SessionStatusRunning); err != nil {
			return nil, err
		}
		meta := module.Metadata()
		slog.Info("SessionManager completed tour", "userID", sess.UserID, "sessionID", sess.ID, "moduleID", module.ModuleID)
		return &models.TourCommandResult{
			Success:   true,
			Command:   command,
			Session:   sess,
			Module:    &meta,
			Progress:  &models.TourProgress{Current: module.StepCount(), Total: module.StepCount()},
			Completed: true,
			Message:   "Tour completed: " + module.ModuleName,
		}, nil
	}

	sess.CurrentStepIndex = nextIndex
	sess.CurrentStepID = module.StepSequence[nextIndex].StepID
	if err := sm.applyTransition(sess, models.SessionStatusRunning); err != nil {
		return nil, err
	}
	return sm.stepResult(ctx, command, sess, module)
}

// applyTransition writes the session conditionally on its prior status. A
// lost race surfaces as ErrTourNotRunning rather than a silent overwrite.
func (sm *SessionManager) applyTransition(sess *models.TourSession, expected ...models.SessionStatus) error {
	applied, err := sm.store.UpdateTourSessionIfStatus(*sess, expected)
	if err != nil {
		slog.Error("SessionManager transition write error", "error", err, "sessionID", sess.ID)
		return err
	}
	if !applied {
		slog.Warn("SessionManager transition lost race", "sessionID", sess.ID, "status", sess.Status)
		return models.ErrTourNotRunning
	}
	return nil
}

// stepResult builds the success result for a session positioned on a step.
func (sm *SessionManager) stepResult(ctx context.Context, command models.TourCommand, sess *models.TourSession, module *models.TourModule) (*models.TourCommandResult, error) {
	meta := module.Metadata()
	result := &models.TourCommandResult{
		Success: true,
		Command: command,
		Session: sess,
		Module:  &meta,
	}
	if sess.CurrentStepID != "" {
		stepData, err := sm.catalog.GetStepData(ctx, module.ModuleID, sess.CurrentStepID)
		if err != nil {
			return nil, err
		}
		result.CurrentStep = stepData
		result.Progress = &models.TourProgress{Current: sess.CurrentStepIndex + 1, Total: module.StepCount()}
	} else {
		result.Progress = &models.TourProgress{Current: 0, Total: module.StepCount()}
	}
	return result, nil
}
