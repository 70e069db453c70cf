// Package models defines the core data structures for the DONNA guided tour engine.
package models

import (
	"errors"
	"time"
)

// TourType describes the scope of a tour session.
type TourType string

const (
	// TourTypeFull walks the user through the entire product.
	TourTypeFull TourType = "full"
	// TourTypeSection walks the user through a single product section.
	TourTypeSection TourType = "section"
	// TourTypeMini is a shortened walkthrough of one feature.
	TourTypeMini TourType = "mini"
)

// IsValidTourType checks if the given tour type is supported.
func IsValidTourType(t TourType) bool {
	switch t {
	case TourTypeFull, TourTypeSection, TourTypeMini:
		return true
	default:
		return false
	}
}

// SessionStatus represents the lifecycle state of a tour session.
type SessionStatus string

const (
	// SessionStatusRunning indicates the tour is actively advancing.
	SessionStatusRunning SessionStatus = "running"
	// SessionStatusPaused indicates the tour is suspended and resumable.
	SessionStatusPaused SessionStatus = "paused"
	// SessionStatusCompleted indicates the tour ran past its final step.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusCancelled indicates the tour was stopped explicitly.
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// TourCommand is the closed set of commands the tour engine dispatches on.
type TourCommand string

const (
	TourCommandStart  TourCommand = "start"
	TourCommandStop   TourCommand = "stop"
	TourCommandCancel TourCommand = "cancel"
	TourCommandNext   TourCommand = "next"
	TourCommandSkip   TourCommand = "skip"
	TourCommandPause  TourCommand = "pause"
	TourCommandResume TourCommand = "resume"
)

// Error variables for tour engine failure modes. The API layer maps these to
// structured error responses; none of them carry internal state in their text.
var (
	ErrModuleNotFound       = errors.New("tour module not found")
	ErrTourAlreadyActive    = errors.New("a tour is already active for this user")
	ErrNoActiveTour         = errors.New("no active tour for this user")
	ErrTourNotRunning       = errors.New("tour is not in the required state")
	ErrUnknownCommand       = errors.New("unknown tour command")
	ErrIntentNotRecognized  = errors.New("message did not match any tour intent")
	ErrInvalidField         = errors.New("field is not allowed for onboarding updates")
	ErrOnboardingIncomplete = errors.New("required onboarding fields are missing")
)

// TourStep is one entry in a module's ordered step sequence.
type TourStep struct {
	StepID      string `json:"step_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// UIHook carries the UI-highlight instruction attached to a step.
type UIHook struct {
	Selector  string `json:"selector"`            // CSS selector of the element to highlight
	Action    string `json:"action,omitempty"`    // e.g. "highlight", "pulse", "open"
	Placement string `json:"placement,omitempty"` // tooltip placement relative to the element
}

// TourModule is the immutable catalog entry for one tour: an ordered step
// sequence plus per-step narration and optional UI hooks.
type TourModule struct {
	ModuleID     string            `json:"module_id"`
	ModuleName   string            `json:"module_name"`
	Description  string            `json:"description,omitempty"`
	SectionID    string            `json:"section_id"`
	OrderIndex   int               `json:"order_index"`
	IsActive     bool              `json:"is_active"`
	StepSequence []TourStep        `json:"step_sequence"`
	TextPayload  map[string]string `json:"text_payload"`
	UIHooks      map[string]UIHook `json:"ui_hooks,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Module validation errors.
var (
	ErrEmptyModuleID   = errors.New("module_id is required")
	ErrEmptyModuleName = errors.New("module_name is required")
	ErrEmptySectionID  = errors.New("section_id is required")
	ErrEmptyStepID     = errors.New("every step needs a step_id")
	ErrDuplicateStepID = errors.New("step_id appears more than once in step sequence")
	ErrMissingStepText = errors.New("every step in the sequence needs a text payload")
	ErrDanglingUIHook  = errors.New("ui hook references a step not in the sequence")
)

// Validate checks the catalog invariants: identifiers present, step IDs
// unique, and every sequenced step backed by a narration text payload.
func (m *TourModule) Validate() error {
	if m.ModuleID == "" {
		return ErrEmptyModuleID
	}
	if m.ModuleName == "" {
		return ErrEmptyModuleName
	}
	if m.SectionID == "" {
		return ErrEmptySectionID
	}
	seen := make(map[string]bool, len(m.StepSequence))
	for _, step := range m.StepSequence {
		if step.StepID == "" {
			return ErrEmptyStepID
		}
		if seen[step.StepID] {
			return ErrDuplicateStepID
		}
		seen[step.StepID] = true
		if _, ok := m.TextPayload[step.StepID]; !ok {
			return ErrMissingStepText
		}
	}
	for stepID := range m.UIHooks {
		if !seen[stepID] {
			return ErrDanglingUIHook
		}
	}
	return nil
}

// StepCount returns the number of steps in the module's sequence.
func (m *TourModule) StepCount() int {
	return len(m.StepSequence)
}

// StepAt returns the step at the given index, or nil if out of range.
func (m *TourModule) StepAt(index int) *TourStep {
	if index < 0 || index >= len(m.StepSequence) {
		return nil
	}
	return &m.StepSequence[index]
}

// ModuleMetadata is the lightweight module summary exposed to the UI.
type ModuleMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SectionID   string `json:"section_id"`
	StepCount   int    `json:"step_count"`
}

// Metadata builds the metadata summary for the module.
func (m *TourModule) Metadata() ModuleMetadata {
	return ModuleMetadata{
		ID:          m.ModuleID,
		Name:        m.ModuleName,
		Description: m.Description,
		SectionID:   m.SectionID,
		StepCount:   len(m.StepSequence),
	}
}

// StepData bundles everything the UI needs to render one step.
type StepData struct {
	Step   TourStep `json:"step"`
	Text   string   `json:"text"`
	UIHook *UIHook  `json:"ui_hook,omitempty"`
}

// TourProgress is the 1-based position indicator returned with step data.
type TourProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// TourSession is a user's run through a tour module. At most one session per
// user may be in a non-terminal status at any time; history is retained.
type TourSession struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	TourModuleID     string        `json:"tour_module_id"`
	TourType         TourType      `json:"tour_type"`
	Status           SessionStatus `json:"status"`
	CurrentStepIndex int           `json:"current_step_index"`
	CurrentStepID    string        `json:"current_step_id,omitempty"`
	CompletedSteps   []string      `json:"completed_steps,omitempty"`
	SkippedSteps     []string      `json:"skipped_steps,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	PausedAt         *time.Time    `json:"paused_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsActive reports whether the session still occupies the user's active slot.
func (s *TourSession) IsActive() bool {
	return !s.Status.IsTerminal()
}

// HasCompletedStep reports whether the step is already in completed_steps.
func (s *TourSession) HasCompletedStep(stepID string) bool {
	return containsStep(s.CompletedSteps, stepID)
}

// MarkStepCompleted records a step as completed. Idempotent.
func (s *TourSession) MarkStepCompleted(stepID string) {
	if stepID == "" || containsStep(s.CompletedSteps, stepID) {
		return
	}
	s.CompletedSteps = append(s.CompletedSteps, stepID)
}

// MarkStepSkipped records a step as skipped. Idempotent, and never touches
// completed_steps.
func (s *TourSession) MarkStepSkipped(stepID string) {
	if stepID == "" || containsStep(s.SkippedSteps, stepID) {
		return
	}
	s.SkippedSteps = append(s.SkippedSteps, stepID)
}

func containsStep(steps []string, stepID string) bool {
	for _, id := range steps {
		if id == stepID {
			return true
		}
	}
	return false
}

// TourCommandRequest is the inbound command payload: either an explicit
// command or a free-text message to classify.
type TourCommandRequest struct {
	Command TourCommand       `json:"command,omitempty"`
	Message string            `json:"message,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// Validate checks that the request carries something actionable.
func (r *TourCommandRequest) Validate() error {
	if r.Command == "" && r.Message == "" {
		return errors.New("either command or message is required")
	}
	return nil
}

// TourCommandResult is the uniform JSON-serializable outcome of a command.
type TourCommandResult struct {
	Success     bool            `json:"success"`
	Command     TourCommand     `json:"command,omitempty"`
	Intent      *Intent         `json:"intent,omitempty"`
	Session     *TourSession    `json:"session,omitempty"`
	Module      *ModuleMetadata `json:"module,omitempty"`
	CurrentStep *StepData       `json:"current_step,omitempty"`
	Progress    *TourProgress   `json:"progress,omitempty"`
	Completed   bool            `json:"completed,omitempty"`
	Message     string          `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// CommandLogEntry is the append-only audit record written for every command
// processor invocation.
type CommandLogEntry struct {
	ID              string      `json:"id"`
	TourSessionID   string      `json:"tour_session_id,omitempty"`
	UserID          string      `json:"user_id"`
	CommandType     TourCommand `json:"command_type,omitempty"`
	OriginalMessage string      `json:"original_message,omitempty"`
	DetectedIntent  IntentType  `json:"detected_intent,omitempty"`
	ConfidenceScore float64     `json:"confidence_score,omitempty"`
	CommandResult   string      `json:"command_result,omitempty"` // serialized TourCommandResult
	CreatedAt       time.Time   `json:"created_at"`
}
