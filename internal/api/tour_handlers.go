package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/donna-assistant/donna/internal/models"
)

// tourCommandRequest is the HTTP payload for the tour command endpoint.
type tourCommandRequest struct {
	UserID  string             `json:"user_id"`
	Command models.TourCommand `json:"command,omitempty"`
	Message string             `json:"message,omitempty"`
	Data    map[string]string  `json:"data,omitempty"`
}

func (s *Server) tourCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req tourCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.tourCommandHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyUserID.Error()))
		return
	}
	cmdReq := models.TourCommandRequest{Command: req.Command, Message: req.Message, Data: req.Data}
	if err := cmdReq.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result := s.processor.Handle(r.Context(), req.UserID, cmdReq)
	status := http.StatusOK
	if !result.Success {
		status = commandErrorStatus(result.Error)
	}
	writeJSONResponse(w, status, models.Success(result))
}

// commandErrorStatus maps the tour error taxonomy onto HTTP status codes. The
// result payload stays uniform either way; the status is advisory.
func commandErrorStatus(errText string) int {
	switch errText {
	case models.ErrModuleNotFound.Error(), models.ErrNoActiveTour.Error():
		return http.StatusNotFound
	case models.ErrTourAlreadyActive.Error():
		return http.StatusConflict
	case models.ErrUnknownCommand.Error(), models.ErrIntentNotRecognized.Error():
		return http.StatusBadRequest
	case models.ErrTourNotRunning.Error():
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) tourModulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.listTourModules(w, r)
	case http.MethodPost:
		s.registerTourModule(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTourModules(w http.ResponseWriter, r *http.Request) {
	if moduleID := r.URL.Query().Get("module_id"); moduleID != "" {
		if r.URL.Query().Get("steps") != "" {
			module, err := s.catalog.GetModule(r.Context(), moduleID)
			if err != nil {
				writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load module"))
				return
			}
			if module == nil {
				writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrModuleNotFound.Error()))
				return
			}
			writeJSONResponse(w, http.StatusOK, models.Success(module))
			return
		}
		meta, err := s.catalog.GetModuleMetadata(r.Context(), moduleID)
		if err != nil {
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load module"))
			return
		}
		if meta == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrModuleNotFound.Error()))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(meta))
		return
	}

	modules, err := s.catalog.GetAllModules(r.Context())
	if err != nil {
		slog.Error("Server.listTourModules: failed to list modules", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list modules"))
		return
	}
	metas := make([]models.ModuleMetadata, 0, len(modules))
	for i := range modules {
		metas = append(metas, modules[i].Metadata())
	}
	writeJSONResponse(w, http.StatusOK, models.Success(metas))
}

func (s *Server) registerTourModule(w http.ResponseWriter, r *http.Request) {
	var module models.TourModule
	if err := json.NewDecoder(r.Body).Decode(&module); err != nil {
		slog.Warn("Server.registerTourModule: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	registered, err := s.catalog.RegisterModule(r.Context(), module)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Info("Server.registerTourModule: module registered", "moduleID", registered.ModuleID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Module registered", registered.Metadata()))
}

func (s *Server) activeTourHandler(w http.ResponseWriter, r *http.Request) {
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

	sess, err := s.sessions.GetActiveTour(r.Context(), userID)
	if err != nil {
		slog.Error("Server.activeTourHandler: lookup failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load active tour"))
		return
	}
	if sess == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error(models.ErrNoActiveTour.Error()))
		return
	}

	result := models.TourCommandResult{Success: true, Session: sess}
	if meta, err := s.catalog.GetModuleMetadata(r.Context(), sess.TourModuleID); err == nil && meta != nil {
		result.Module = meta
		result.Progress = &models.TourProgress{Current: sess.CurrentStepIndex + 1, Total: meta.StepCount}
	}
	if sess.CurrentStepID != "" {
		if stepData, err := s.catalog.GetStepData(r.Context(), sess.TourModuleID, sess.CurrentStepID); err == nil {
			result.CurrentStep = stepData
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// userIDFromRequest pulls user_id from the query string for GET endpoints and
// from the JSON body otherwise.
func userIDFromRequest(r *http.Request) string {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("user_id")
	}
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return ""
	}
	return payload.UserID
}
