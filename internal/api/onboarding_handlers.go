package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/donna-assistant/donna/internal/models"
)

func (s *Server) onboardingStateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	state, err := s.tracker.GetState(r.Context(), userID)
	if err != nil {
		slog.Error("Server.onboardingStateHandler: failed to load state", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load onboarding state"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

func (s *Server) onboardingFieldHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.OnboardingFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.onboardingFieldHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	state, err := s.tracker.UpdateField(r.Context(), req.UserID, req.Field, req.Value)
	if err != nil {
		if errors.Is(err, models.ErrInvalidField) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.onboardingFieldHandler: update failed", "error", err, "userID", req.UserID, "field", req.Field)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update onboarding field"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(state))
}

func (s *Server) onboardingCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		Force  bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	var state *models.OnboardingState
	var err error
	if req.Force {
		state, err = s.tracker.ForceCompleteOnboarding(r.Context(), req.UserID)
	} else {
		state, err = s.tracker.CompleteOnboarding(r.Context(), req.UserID)
	}
	if err != nil {
		if errors.Is(err, models.ErrOnboardingIncomplete) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		slog.Error("Server.onboardingCompleteHandler: completion failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to complete onboarding"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Onboarding completed", state))
}

func (s *Server) onboardingResetHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	state, err := s.tracker.ResetOnboarding(r.Context(), userID)
	if err != nil {
		slog.Error("Server.onboardingResetHandler: reset failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset onboarding"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Onboarding reset", state))
}

func (s *Server) onboardingProgressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}

	progress, err := s.tracker.GetProgress(r.Context(), userID)
	if err != nil {
		slog.Error("Server.onboardingProgressHandler: failed to compute progress", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute progress"))
		return
	}
	missing, err := s.tracker.GetMissingFields(r.Context(), userID)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute progress"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"progress":       progress,
		"missing_fields": missing,
	}))
}
