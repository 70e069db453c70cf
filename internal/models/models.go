// Package models defines the shared request/response structures for DONNA.
//
// It includes the uniform API response envelope and the inbound payloads for
// the chat and onboarding endpoints, which are shared across modules.
package models

import "errors"

// Validation constants for input validation
const (
	// MaxChatMessageLength defines the maximum allowed length for a free-text chat message
	MaxChatMessageLength = 4096
	// MaxUserIDLength defines the maximum allowed length for user identifiers
	MaxUserIDLength = 128
)

// Error variables for request validation
var (
	ErrEmptyUserID    = errors.New("user_id is required")
	ErrUserIDTooLong  = errors.New("user_id exceeds maximum length")
	ErrEmptyMessage   = errors.New("message is required")
	ErrMessageTooLong = errors.New("message exceeds maximum length")
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ChatRequest is the payload for the assistant chat endpoint.
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// Validate performs validation on a ChatRequest.
func (r *ChatRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if len(r.UserID) > MaxUserIDLength {
		return ErrUserIDTooLong
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxChatMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatReply is the assistant chat endpoint result. Exactly one of Tour or
// Reply is populated: Tour when the message carried a tour intent, Reply when
// the assistant answered conversationally.
type ChatReply struct {
	Tour  *TourCommandResult `json:"tour,omitempty"`
	Reply string             `json:"reply,omitempty"`
}

// OnboardingFieldRequest is the payload for onboarding field updates.
type OnboardingFieldRequest struct {
	UserID string          `json:"user_id"`
	Field  OnboardingField `json:"field"`
	Value  string          `json:"value"`
}

// Validate performs validation on an OnboardingFieldRequest. Field membership
// in the allow-list is enforced by the tracker, not here.
func (r *OnboardingFieldRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Field == "" {
		return errors.New("field is required")
	}
	return nil
}

// Response represents an incoming message from a user over an SMS channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
