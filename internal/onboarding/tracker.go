// Package onboarding tracks per-user completion of the onboarding fields
// (name, business name, personality) independently of tour sessions.
package onboarding

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
)

// Tracker manages onboarding state records in a Store. State is initialized
// lazily on first access, one record per user.
type Tracker struct {
	store store.Store
}

// NewTracker creates an onboarding tracker backed by the given store.
func NewTracker(st store.Store) *Tracker {
	slog.Debug("Creating onboarding Tracker")
	return &Tracker{store: st}
}

// GetState returns the user's onboarding record, creating a fresh one on
// first access. Idempotent.
func (t *Tracker) GetState(ctx context.Context, userID string) (*models.OnboardingState, error) {
	state, err := t.store.GetOnboardingState(userID)
	if err != nil {
		slog.Error("Tracker GetState error", "error", err, "userID", userID)
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	now := time.Now()
	fresh := models.OnboardingState{
		UserID:              userID,
		OnboardingStartedAt: now,
		CurrentStep:         models.MissingFieldName,
		UpdatedAt:           now,
	}
	if err := t.store.SaveOnboardingState(fresh); err != nil {
		slog.Error("Tracker GetState init error", "error", err, "userID", userID)
		return nil, err
	}
	slog.Info("Tracker initialized onboarding state", "userID", userID)
	return &fresh, nil
}

// IsFirstTimeUser reports whether the user has not finished onboarding. A
// user with no record at all counts as first-time without creating one.
func (t *Tracker) IsFirstTimeUser(ctx context.Context, userID string) (bool, error) {
	state, err := t.store.GetOnboardingState(userID)
	if err != nil {
		slog.Error("Tracker IsFirstTimeUser error", "error", err, "userID", userID)
		return false, err
	}
	return state == nil || !state.OnboardingCompleted, nil
}

// GetMissingFields returns the unsatisfied required fields in priority order.
func (t *Tracker) GetMissingFields(ctx context.Context, userID string) ([]string, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return state.MissingFields(), nil
}

// GetNextStep returns the highest-priority missing field, or "" when none.
func (t *Tracker) GetNextStep(ctx context.Context, userID string) (string, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return "", err
	}
	return state.NextStep(), nil
}

// UpdateField sets one allow-listed field and advances current_step to the
// next missing field. Setting the last required field completes onboarding.
// Non-allow-listed field names fail with ErrInvalidField.
func (t *Tracker) UpdateField(ctx context.Context, userID string, field models.OnboardingField, value string) (*models.OnboardingState, error) {
	if !models.IsAllowedOnboardingField(field) {
		slog.Warn("Tracker UpdateField rejected field", "userID", userID, "field", field)
		return nil, models.ErrInvalidField
	}
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch field {
	case models.OnboardingFieldName:
		state.Name = value
	case models.OnboardingFieldBusinessName:
		state.BusinessName = value
	case models.OnboardingFieldDocuments:
		state.DocumentsUploaded = parseFlag(value)
	case models.OnboardingFieldPersonality:
		state.PersonalityConfigured = parseFlag(value)
	case models.OnboardingFieldCurrentStep:
		state.CurrentStep = value
	}

	now := time.Now()
	state.UpdatedAt = now
	if field != models.OnboardingFieldCurrentStep {
		state.CurrentStep = state.NextStep()
	}
	if !state.OnboardingCompleted && len(state.MissingFields()) == 0 {
		state.OnboardingCompleted = true
		state.OnboardingCompletedAt = &now
		state.CurrentStep = ""
		slog.Info("Tracker onboarding auto-completed", "userID", userID)
	}

	if err := t.store.SaveOnboardingState(*state); err != nil {
		slog.Error("Tracker UpdateField save error", "error", err, "userID", userID, "field", field)
		return nil, err
	}
	slog.Debug("Tracker UpdateField succeeded", "userID", userID, "field", field, "nextStep", state.CurrentStep)
	return state, nil
}

// CompleteOnboarding marks onboarding finished after verifying every required
// field is populated. Missing fields fail with ErrOnboardingIncomplete; use
// ForceCompleteOnboarding for operator overrides.
func (t *Tracker) CompleteOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	if missing := state.MissingFields(); len(missing) > 0 {
		slog.Warn("Tracker CompleteOnboarding refused", "userID", userID, "missing", missing)
		return nil, models.ErrOnboardingIncomplete
	}
	return t.finishOnboarding(state)
}

// ForceCompleteOnboarding marks onboarding finished without checking the
// required fields. Intended for explicit admin or migration actions.
func (t *Tracker) ForceCompleteOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	slog.Info("Tracker force-completing onboarding", "userID", userID, "missing", state.MissingFields())
	return t.finishOnboarding(state)
}

func (t *Tracker) finishOnboarding(state *models.OnboardingState) (*models.OnboardingState, error) {
	now := time.Now()
	state.OnboardingCompleted = true
	state.OnboardingCompletedAt = &now
	state.CurrentStep = ""
	state.UpdatedAt = now
	if err := t.store.SaveOnboardingState(*state); err != nil {
		slog.Error("Tracker finishOnboarding save error", "error", err, "userID", state.UserID)
		return nil, err
	}
	return state, nil
}

// ResetOnboarding clears all progress back to a fresh record, keeping the
// original start time for history.
func (t *Tracker) ResetOnboarding(ctx context.Context, userID string) (*models.OnboardingState, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	reset := models.OnboardingState{
		UserID:              userID,
		OnboardingStartedAt: state.OnboardingStartedAt,
		CurrentStep:         models.MissingFieldName,
		UpdatedAt:           now,
	}
	if err := t.store.SaveOnboardingState(reset); err != nil {
		slog.Error("Tracker ResetOnboarding save error", "error", err, "userID", userID)
		return nil, err
	}
	slog.Info("Tracker reset onboarding", "userID", userID)
	return &reset, nil
}

// GetProgress returns onboarding completion as 0..100.
func (t *Tracker) GetProgress(ctx context.Context, userID string) (int, error) {
	state, err := t.GetState(ctx, userID)
	if err != nil {
		return 0, err
	}
	return state.Progress(), nil
}

// parseFlag treats the boolean-ish strings the channels send as true. Any
// unparseable value counts as true because the caller only reports that the
// action happened, never its absence.
func parseFlag(value string) bool {
	if value == "" {
		return true
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return true
}
