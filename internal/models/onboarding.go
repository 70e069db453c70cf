// Package models defines onboarding state structures for DONNA.
package models

import (
	"math"
	"time"
)

// OnboardingField names a column the tracker is allowed to update. The
// allow-list exists so free-form field names from the API can never reach
// storage as arbitrary columns.
type OnboardingField string

const (
	OnboardingFieldName         OnboardingField = "name"
	OnboardingFieldBusinessName OnboardingField = "business_name"
	OnboardingFieldDocuments    OnboardingField = "documents_uploaded"
	OnboardingFieldPersonality  OnboardingField = "personality_configured"
	OnboardingFieldCurrentStep  OnboardingField = "current_step"
)

// IsAllowedOnboardingField checks the update allow-list.
func IsAllowedOnboardingField(f OnboardingField) bool {
	switch f {
	case OnboardingFieldName, OnboardingFieldBusinessName, OnboardingFieldDocuments,
		OnboardingFieldPersonality, OnboardingFieldCurrentStep:
		return true
	default:
		return false
	}
}

// Missing-field labels, in the fixed priority order the tracker reports them.
const (
	MissingFieldName         = "name"
	MissingFieldBusinessName = "business_name"
	MissingFieldPersonality  = "personality"
)

// requiredFieldCount is the denominator for onboarding progress.
const requiredFieldCount = 3

// OnboardingState is the per-user field-collection record, independent of any
// tour session.
type OnboardingState struct {
	UserID                string            `json:"user_id"`
	Name                  string            `json:"name,omitempty"`
	BusinessName          string            `json:"business_name,omitempty"`
	DocumentsUploaded     bool              `json:"documents_uploaded"`
	PersonalityConfigured bool              `json:"personality_configured"`
	OnboardingCompleted   bool              `json:"onboarding_completed"`
	OnboardingStartedAt   time.Time         `json:"onboarding_started_at"`
	OnboardingCompletedAt *time.Time        `json:"onboarding_completed_at,omitempty"`
	CurrentStep           string            `json:"current_step,omitempty"`
	StepData              map[string]string `json:"step_data,omitempty"` // scratch space for in-progress field capture
	UpdatedAt             time.Time         `json:"updated_at"`
}

// MissingFields returns the unsatisfied required fields in priority order:
// name, business_name, personality.
func (o *OnboardingState) MissingFields() []string {
	missing := make([]string, 0, requiredFieldCount)
	if o.Name == "" {
		missing = append(missing, MissingFieldName)
	}
	if o.BusinessName == "" {
		missing = append(missing, MissingFieldBusinessName)
	}
	if !o.PersonalityConfigured {
		missing = append(missing, MissingFieldPersonality)
	}
	return missing
}

// NextStep returns the highest-priority missing field, or "" when none remain.
func (o *OnboardingState) NextStep() string {
	missing := o.MissingFields()
	if len(missing) == 0 {
		return ""
	}
	return missing[0]
}

// Progress returns completion as 0..100. A completed record is always 100;
// otherwise round(completed/3*100), so one field is 33 and two are 67.
func (o *OnboardingState) Progress() int {
	if o.OnboardingCompleted {
		return 100
	}
	completed := requiredFieldCount - len(o.MissingFields())
	return int(math.Round(float64(completed) / requiredFieldCount * 100))
}
