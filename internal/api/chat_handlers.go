package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/donna-assistant/donna/internal/models"
)

// chatHandler is the assistant entry point. Tour-shaped messages run through
// the command processor; everything else gets a conversational reply.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	reply := s.routeMessage(r.Context(), req.UserID, req.Message)
	writeJSONResponse(w, http.StatusOK, models.Success(reply))
}
