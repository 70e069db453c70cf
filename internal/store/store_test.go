package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/donna-assistant/donna/internal/models"
)

func sampleModule() models.TourModule {
	now := time.Now().UTC().Truncate(time.Second)
	return models.TourModule{
		ModuleID:    "tour_dashboard",
		ModuleName:  "Dashboard Tour",
		Description: "Walks through the dashboard",
		SectionID:   "dashboard",
		OrderIndex:  1,
		IsActive:    true,
		StepSequence: []models.TourStep{
			{StepID: "overview", Title: "Overview", Description: "The main view"},
			{StepID: "widgets", Title: "Widgets", Description: "Your widgets"},
		},
		TextPayload: map[string]string{
			"overview": "This is your dashboard.",
			"widgets":  "These are your widgets.",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func sampleSession(userID string) models.TourSession {
	now := time.Now().UTC().Truncate(time.Second)
	return models.TourSession{
		ID:               "sess-" + userID,
		UserID:           userID,
		TourModuleID:     "tour_dashboard",
		TourType:         models.TourTypeFull,
		Status:           models.SessionStatusRunning,
		CurrentStepIndex: 0,
		CurrentStepID:    "overview",
		StartedAt:        now,
		UpdatedAt:        now,
	}
}

func runStoreTests(t *testing.T, s Store) {
	t.Helper()

	// Module round trip
	m := sampleModule()
	if err := s.SaveTourModule(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetTourModule("tour_dashboard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ModuleName != "Dashboard Tour" || len(got.StepSequence) != 2 {
		t.Fatalf("module not stored or retrieved correctly: %+v", got)
	}
	if got.TextPayload["widgets"] != "These are your widgets." {
		t.Errorf("text payload not preserved: %+v", got.TextPayload)
	}

	bySection, err := s.GetTourModuleBySection("dashboard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bySection == nil || bySection.ModuleID != "tour_dashboard" {
		t.Errorf("section lookup failed: %+v", bySection)
	}

	missing, err := s.GetTourModule("tour_nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown module, got %+v", missing)
	}

	// Upsert replaces content without erroring
	m.Description = "Updated description"
	if err := s.SaveTourModule(m); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}
	got, err = s.GetTourModule("tour_dashboard")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Description != "Updated description" {
		t.Errorf("upsert did not replace description: %q", got.Description)
	}

	// Inactive modules are hidden
	inactive := sampleModule()
	inactive.ModuleID = "tour_hidden"
	inactive.SectionID = "hidden"
	inactive.IsActive = false
	if err := s.SaveTourModule(inactive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hidden, err := s.GetTourModule("tour_hidden")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hidden != nil {
		t.Errorf("inactive module should not be returned, got %+v", hidden)
	}
	list, err := s.ListTourModules()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, mod := range list {
		if mod.ModuleID == "tour_hidden" {
			t.Error("inactive module appeared in listing")
		}
	}

	// Session create is conditional on no active session
	sess := sampleSession("user-1")
	created, err := s.CreateTourSessionIfNoneActive(sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected first session to be created")
	}
	second := sampleSession("user-1")
	second.ID = "sess-user-1-second"
	created, err = s.CreateTourSessionIfNoneActive(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("second session created while the first was still active")
	}

	active, err := s.GetActiveTourSession("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active == nil || active.ID != sess.ID {
		t.Errorf("active session lookup failed: %+v", active)
	}

	// Conditional update applies only when the stored status matches
	sess.Status = models.SessionStatusPaused
	now := time.Now().UTC().Truncate(time.Second)
	sess.PausedAt = &now
	sess.UpdatedAt = now
	applied, err := s.UpdateTourSessionIfStatus(sess, []models.SessionStatus{models.SessionStatusRunning})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected pause transition to apply")
	}
	sess.Status = models.SessionStatusCompleted
	applied, err = s.UpdateTourSessionIfStatus(sess, []models.SessionStatus{models.SessionStatusRunning})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied {
		t.Error("update applied despite status mismatch")
	}

	loaded, err := s.GetTourSession(sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded == nil || loaded.Status != models.SessionStatusPaused {
		t.Errorf("session not stored correctly: %+v", loaded)
	}
	if loaded.PausedAt == nil {
		t.Error("paused_at not persisted")
	}

	// Paused sessions still count as active
	active, err = s.GetActiveTourSession("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active == nil {
		t.Error("paused session should remain active")
	}

	// Completing frees the slot for a new session
	sess.Status = models.SessionStatusCompleted
	sess.CompletedAt = &now
	applied, err = s.UpdateTourSessionIfStatus(sess, []models.SessionStatus{models.SessionStatusRunning, models.SessionStatusPaused})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !applied {
		t.Fatal("expected completion transition to apply")
	}
	created, err = s.CreateTourSessionIfNoneActive(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected new session after the previous one completed")
	}

	// Onboarding round trip
	st, err := s.GetOnboardingState("user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil onboarding state for new user, got %+v", st)
	}
	state := models.OnboardingState{
		UserID:              "user-2",
		Name:                "Ada",
		OnboardingStartedAt: time.Now().UTC().Truncate(time.Second),
		CurrentStep:         "business_name",
		StepData:            map[string]string{"source": "chat"},
		UpdatedAt:           time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveOnboardingState(state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	state.BusinessName = "Ada Consulting"
	if err := s.SaveOnboardingState(state); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}
	st, err = s.GetOnboardingState("user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st == nil || st.Name != "Ada" || st.BusinessName != "Ada Consulting" {
		t.Errorf("onboarding state not stored correctly: %+v", st)
	}
	if st.StepData["source"] != "chat" {
		t.Errorf("step data not preserved: %+v", st.StepData)
	}
	if err := s.DeleteOnboardingState("user-2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err = s.GetOnboardingState("user-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != nil {
		t.Errorf("onboarding state not deleted: %+v", st)
	}

	// Command log
	entry := models.CommandLogEntry{
		ID:              "log-1",
		TourSessionID:   sess.ID,
		UserID:          "user-1",
		CommandType:     models.TourCommandStart,
		OriginalMessage: "give me a tour",
		DetectedIntent:  models.IntentFullTour,
		ConfidenceScore: 0.9,
		CommandResult:   "success",
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := s.AddCommandLogEntry(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := s.GetCommandLogEntries("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].DetectedIntent != models.IntentFullTour {
		t.Errorf("command log not stored correctly: %+v", entries)
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	runStoreTests(t, s)
}

func TestInMemoryStoreCloning(t *testing.T) {
	s := NewInMemoryStore()
	m := sampleModule()
	if err := s.SaveTourModule(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.GetTourModule(m.ModuleID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got.StepSequence[0].Title = "mutated"
	got.TextPayload["overview"] = "mutated"
	again, err := s.GetTourModule(m.ModuleID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.StepSequence[0].Title != "Overview" || again.TextPayload["overview"] != "This is your dashboard." {
		t.Error("store returned shared state that callers can mutate")
	}
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "donna.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer s.Close()
	runStoreTests(t, s)
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance. Set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	s.db.Exec("DELETE FROM tour_command_log")
	s.db.Exec("DELETE FROM tour_sessions")
	s.db.Exec("DELETE FROM tour_modules")
	s.db.Exec("DELETE FROM onboarding_states")
	runStoreTests(t, s)
}

func TestPostgresStoreConcurrentSessionCreate(t *testing.T) {
	// Requires a running PostgreSQL instance. Set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	s.db.Exec("DELETE FROM tour_sessions")

	// Concurrent inserts for one user must resolve to a single created
	// session; the losers land on the partial unique index and report
	// created=false rather than an error.
	const attempts = 8
	results := make(chan bool, attempts)
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess := sampleSession("race-user")
			sess.ID = fmt.Sprintf("sess-race-%d", n)
			created, err := s.CreateTourSessionIfNoneActive(sess)
			results <- created
			errs <- err
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	var created int
	for c := range results {
		if c {
			created++
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one session created, got %d", created)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
