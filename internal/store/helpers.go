package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/donna-assistant/donna/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalOrNil JSON-encodes v for a nullable column, returning nil for empty
// maps/slices so the column stays NULL.
func marshalOrNil(v interface{}, empty bool) (interface{}, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// moduleColumns is the canonical select list for tour_modules.
const moduleColumns = `module_id, module_name, description, section_id, order_index, is_active, step_sequence, text_payload, ui_hooks, created_at, updated_at`

// scanTourModule scans one tour_modules row, decoding the JSON columns.
func scanTourModule(row rowScanner) (models.TourModule, error) {
	var m models.TourModule
	var description, stepSequence, textPayload, uiHooks sql.NullString
	err := row.Scan(
		&m.ModuleID, &m.ModuleName, &description, &m.SectionID, &m.OrderIndex,
		&m.IsActive, &stepSequence, &textPayload, &uiHooks, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}
	m.Description = description.String
	if stepSequence.Valid && stepSequence.String != "" {
		if err := json.Unmarshal([]byte(stepSequence.String), &m.StepSequence); err != nil {
			return m, fmt.Errorf("failed to decode step sequence for module %s: %w", m.ModuleID, err)
		}
	}
	if textPayload.Valid && textPayload.String != "" {
		if err := json.Unmarshal([]byte(textPayload.String), &m.TextPayload); err != nil {
			return m, fmt.Errorf("failed to decode text payload for module %s: %w", m.ModuleID, err)
		}
	}
	if uiHooks.Valid && uiHooks.String != "" {
		if err := json.Unmarshal([]byte(uiHooks.String), &m.UIHooks); err != nil {
			return m, fmt.Errorf("failed to decode ui hooks for module %s: %w", m.ModuleID, err)
		}
	}
	return m, nil
}

// sessionColumns is the canonical select list for tour_sessions.
const sessionColumns = `id, user_id, tour_module_id, tour_type, status, current_step_index, current_step_id, completed_steps, skipped_steps, started_at, paused_at, completed_at, cancelled_at, updated_at`

// scanTourSession scans one tour_sessions row, decoding the JSON step sets.
func scanTourSession(row rowScanner) (models.TourSession, error) {
	var s models.TourSession
	var currentStepID, completedSteps, skippedSteps sql.NullString
	var pausedAt, completedAt, cancelledAt sql.NullTime
	var tourType, status string
	err := row.Scan(
		&s.ID, &s.UserID, &s.TourModuleID, &tourType, &status, &s.CurrentStepIndex,
		&currentStepID, &completedSteps, &skippedSteps, &s.StartedAt,
		&pausedAt, &completedAt, &cancelledAt, &s.UpdatedAt,
	)
	if err != nil {
		return s, err
	}
	s.TourType = models.TourType(tourType)
	s.Status = models.SessionStatus(status)
	s.CurrentStepID = currentStepID.String
	if completedSteps.Valid && completedSteps.String != "" {
		if err := json.Unmarshal([]byte(completedSteps.String), &s.CompletedSteps); err != nil {
			return s, fmt.Errorf("failed to decode completed steps for session %s: %w", s.ID, err)
		}
	}
	if skippedSteps.Valid && skippedSteps.String != "" {
		if err := json.Unmarshal([]byte(skippedSteps.String), &s.SkippedSteps); err != nil {
			return s, fmt.Errorf("failed to decode skipped steps for session %s: %w", s.ID, err)
		}
	}
	s.PausedAt = timePtr(pausedAt)
	s.CompletedAt = timePtr(completedAt)
	s.CancelledAt = timePtr(cancelledAt)
	return s, nil
}

// moduleArgs builds the insert/update argument list for a tour module.
func moduleArgs(m models.TourModule) ([]interface{}, error) {
	stepSequence, err := json.Marshal(m.StepSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step sequence: %w", err)
	}
	textPayload, err := json.Marshal(m.TextPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode text payload: %w", err)
	}
	uiHooks, err := marshalOrNil(m.UIHooks, len(m.UIHooks) == 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ui hooks: %w", err)
	}
	return []interface{}{
		m.ModuleID, m.ModuleName, nilIfEmpty(m.Description), m.SectionID, m.OrderIndex,
		m.IsActive, string(stepSequence), string(textPayload), uiHooks, m.CreatedAt, m.UpdatedAt,
	}, nil
}

// sessionArgs builds the insert/update argument list for a tour session.
func sessionArgs(s models.TourSession) ([]interface{}, error) {
	completedSteps, err := marshalOrNil(s.CompletedSteps, len(s.CompletedSteps) == 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completed steps: %w", err)
	}
	skippedSteps, err := marshalOrNil(s.SkippedSteps, len(s.SkippedSteps) == 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode skipped steps: %w", err)
	}
	return []interface{}{
		s.ID, s.UserID, s.TourModuleID, string(s.TourType), string(s.Status),
		s.CurrentStepIndex, nilIfEmpty(s.CurrentStepID), completedSteps, skippedSteps,
		s.StartedAt, nullableTime(s.PausedAt), nullableTime(s.CompletedAt),
		nullableTime(s.CancelledAt), s.UpdatedAt,
	}, nil
}

// onboardingColumns is the canonical select list for onboarding_states.
const onboardingColumns = `user_id, name, business_name, documents_uploaded, personality_configured, onboarding_completed, onboarding_started_at, onboarding_completed_at, current_step, step_data, updated_at`

// scanOnboardingState scans one onboarding_states row.
func scanOnboardingState(row rowScanner) (models.OnboardingState, error) {
	var o models.OnboardingState
	var name, businessName, currentStep, stepData sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&o.UserID, &name, &businessName, &o.DocumentsUploaded, &o.PersonalityConfigured,
		&o.OnboardingCompleted, &o.OnboardingStartedAt, &completedAt,
		&currentStep, &stepData, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Name = name.String
	o.BusinessName = businessName.String
	o.CurrentStep = currentStep.String
	o.OnboardingCompletedAt = timePtr(completedAt)
	if stepData.Valid && stepData.String != "" {
		if err := json.Unmarshal([]byte(stepData.String), &o.StepData); err != nil {
			return o, fmt.Errorf("failed to decode step data for user %s: %w", o.UserID, err)
		}
	}
	return o, nil
}

// onboardingArgs builds the insert/update argument list for onboarding state.
func onboardingArgs(o models.OnboardingState) ([]interface{}, error) {
	stepData, err := marshalOrNil(o.StepData, len(o.StepData) == 0)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step data: %w", err)
	}
	return []interface{}{
		o.UserID, nilIfEmpty(o.Name), nilIfEmpty(o.BusinessName), o.DocumentsUploaded,
		o.PersonalityConfigured, o.OnboardingCompleted, o.OnboardingStartedAt,
		nullableTime(o.OnboardingCompletedAt), nilIfEmpty(o.CurrentStep), stepData, o.UpdatedAt,
	}, nil
}
