package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
	"github.com/donna-assistant/donna/internal/tour"
)

type mockGenAI struct {
	reply   string
	prompts []string
}

func (m *mockGenAI) GenerateReply(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	m.prompts = append(m.prompts, systemPrompt)
	return m.reply, nil
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := tour.NewCatalog(st).SeedDefaults(context.Background()); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	return NewServer(st, opts...)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp models.APIResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("invalid JSON response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, resp
}

func resultFrom(t *testing.T, resp models.APIResponse) models.TourCommandResult {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("failed to remarshal result: %v", err)
	}
	var result models.TourCommandResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode command result: %v", err)
	}
	return result
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, resp := doJSON(t, s.Handler(), "GET", "/health", "")
	if rec.Code != http.StatusOK || resp.Status != string(models.APIStatusOK) {
		t.Errorf("unexpected health response: %d %+v", rec.Code, resp)
	}
}

func TestTourCommandEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, resp := doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","message":"give me a tour"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := resultFrom(t, resp)
	if !result.Success || result.Session == nil || result.CurrentStep == nil {
		t.Errorf("unexpected start result: %+v", result)
	}

	rec, resp = doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","command":"next"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result = resultFrom(t, resp)
	if !result.Success || result.Progress.Current != 2 {
		t.Errorf("unexpected next result: %+v", result)
	}
}

func TestTourCommandErrors(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, resp := doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","command":"next"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for next without a tour, got %d", rec.Code)
	}
	result := resultFrom(t, resp)
	if result.Success || result.Error != models.ErrNoActiveTour.Error() {
		t.Errorf("unexpected failure payload: %+v", result)
	}

	rec, _ = doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty request, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, "POST", "/tours/command", `{"command":"next"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user_id, got %d", rec.Code)
	}

	doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","message":"give me a tour"}`)
	rec, _ = doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","command":"start"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate start, got %d", rec.Code)
	}
}

func TestTourModulesEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, resp := doJSON(t, h, "GET", "/tours/modules", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Result)
	var metas []models.ModuleMetadata
	if err := json.Unmarshal(raw, &metas); err != nil {
		t.Fatalf("failed to decode modules: %v", err)
	}
	if len(metas) != len(tour.BuiltinModules()) {
		t.Errorf("expected %d modules, got %d", len(tour.BuiltinModules()), len(metas))
	}

	rec, resp = doJSON(t, h, "GET", "/tours/modules?module_id=tour_dashboard", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ = json.Marshal(resp.Result)
	var meta models.ModuleMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("failed to decode metadata: %v", err)
	}
	if meta.StepCount != 3 {
		t.Errorf("dashboard module should have 3 steps, got %d", meta.StepCount)
	}

	rec, resp = doJSON(t, h, "GET", "/tours/modules?module_id=tour_dashboard&steps=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ = json.Marshal(resp.Result)
	var module models.TourModule
	if err := json.Unmarshal(raw, &module); err != nil {
		t.Fatalf("failed to decode module: %v", err)
	}
	if len(module.StepSequence) != 3 {
		t.Errorf("expected full step sequence, got %d steps", len(module.StepSequence))
	}

	rec, _ = doJSON(t, h, "GET", "/tours/modules?module_id=tour_nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown module, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, "POST", "/tours/modules", `{"module_id":"tour_new","module_name":"New","section_id":"new","step_sequence":[{"step_id":"a","title":"A"}],"text_payload":{"a":"text"},"is_active":true}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for registration, got %d: %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, h, "POST", "/tours/modules", `{"module_name":"No ID"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid module, got %d", rec.Code)
	}
}

func TestActiveTourEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, _ := doJSON(t, h, "GET", "/tours/active?user_id=user-1", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a tour, got %d", rec.Code)
	}

	doJSON(t, h, "POST", "/tours/command", `{"user_id":"user-1","message":"give me a tour"}`)
	rec, resp := doJSON(t, h, "GET", "/tours/active?user_id=user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	result := resultFrom(t, resp)
	if result.Session == nil || result.CurrentStep == nil || result.Progress == nil {
		t.Errorf("active tour payload incomplete: %+v", result)
	}
}

func TestOnboardingEndpoints(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec, _ := doJSON(t, h, "GET", "/onboarding/state?user_id=user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, "POST", "/onboarding/field", `{"user_id":"user-1","field":"name","value":"Alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, h, "POST", "/onboarding/field", `{"user_id":"user-1","field":"admin","value":"true"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for disallowed field, got %d", rec.Code)
	}

	rec, resp := doJSON(t, h, "GET", "/onboarding/progress?user_id=user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Result)
	var progress struct {
		Progress      int      `json:"progress"`
		MissingFields []string `json:"missing_fields"`
	}
	if err := json.Unmarshal(raw, &progress); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if progress.Progress != 33 || len(progress.MissingFields) != 2 {
		t.Errorf("unexpected progress payload: %+v", progress)
	}

	rec, _ = doJSON(t, h, "POST", "/onboarding/complete", `{"user_id":"user-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for incomplete fields, got %d", rec.Code)
	}
	rec, _ = doJSON(t, h, "POST", "/onboarding/complete", `{"user_id":"user-1","force":true}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for forced completion, got %d", rec.Code)
	}

	rec, _ = doJSON(t, h, "POST", "/onboarding/reset", `{"user_id":"user-1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for reset, got %d", rec.Code)
	}
	_, resp = doJSON(t, h, "GET", "/onboarding/progress?user_id=user-1", "")
	raw, _ = json.Marshal(resp.Result)
	if err := json.Unmarshal(raw, &progress); err != nil {
		t.Fatalf("failed to decode progress: %v", err)
	}
	if progress.Progress != 0 {
		t.Errorf("progress after reset = %d, expected 0", progress.Progress)
	}
}

func TestChatEndpointTourIntent(t *testing.T) {
	s := newTestServer(t)
	rec, resp := doJSON(t, s.Handler(), "POST", "/chat", `{"user_id":"user-1","message":"explain the marketing tab"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Result)
	var reply models.ChatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("failed to decode chat reply: %v", err)
	}
	if reply.Tour == nil || reply.Tour.Session.TourModuleID != "tour_marketing" {
		t.Errorf("expected a marketing tour result, got %+v", reply)
	}
}

func TestChatEndpointFallbackAsksOnboarding(t *testing.T) {
	s := newTestServer(t)
	rec, resp := doJSON(t, s.Handler(), "POST", "/chat", `{"user_id":"user-1","message":"hello there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Result)
	var reply models.ChatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("failed to decode chat reply: %v", err)
	}
	if reply.Tour != nil {
		t.Errorf("greeting should not start a tour: %+v", reply.Tour)
	}
	if !strings.Contains(reply.Reply, "name") {
		t.Errorf("first-time fallback should ask for the name, got %q", reply.Reply)
	}
}

func TestChatEndpointWithGenAI(t *testing.T) {
	mock := &mockGenAI{reply: "Happy to help!"}
	s := newTestServer(t, WithGenAIClient(mock))
	rec, resp := doJSON(t, s.Handler(), "POST", "/chat", `{"user_id":"user-1","message":"how do i grow my business"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	raw, _ := json.Marshal(resp.Result)
	var reply models.ChatReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("failed to decode chat reply: %v", err)
	}
	if reply.Reply != "Happy to help!" {
		t.Errorf("expected generated reply, got %q", reply.Reply)
	}
	if len(mock.prompts) != 1 || !strings.Contains(mock.prompts[0], "onboarding") {
		t.Errorf("system prompt should mention pending onboarding, got %v", mock.prompts)
	}
	rec, _ = doJSON(t, s.Handler(), "POST", "/chat", `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing user_id, got %d", rec.Code)
	}
}
