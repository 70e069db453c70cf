package tour

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
)

func newTestManager(t *testing.T) (*SessionManager, *Catalog, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	catalog := NewCatalog(st)
	if err := catalog.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	return NewSessionManager(st, catalog), catalog, st
}

func TestStartTour(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()

	result, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected success result")
	}
	if result.Session == nil || result.Session.Status != models.SessionStatusRunning {
		t.Fatalf("expected running session, got %+v", result.Session)
	}
	if result.Session.CurrentStepIndex != 0 || result.Session.CurrentStepID != "dashboard_overview" {
		t.Errorf("session not positioned at first step: %+v", result.Session)
	}
	if result.CurrentStep == nil || result.CurrentStep.Text == "" {
		t.Error("expected first step payload in the start result")
	}
	if result.Progress == nil || result.Progress.Current != 1 || result.Progress.Total != 3 {
		t.Errorf("unexpected progress: %+v", result.Progress)
	}
	if result.Module == nil || result.Module.ID != "tour_dashboard" {
		t.Errorf("unexpected module metadata: %+v", result.Module)
	}
}

func TestStartTourUnknownModule(t *testing.T) {
	sm, _, _ := newTestManager(t)
	_, err := sm.StartTour(context.Background(), "user-1", "tour_nope", models.TourTypeFull)
	if !errors.Is(err, models.ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound, got %v", err)
	}
}

func TestStartTourAlreadyActive(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := sm.StartTour(ctx, "user-1", "tour_inbox", models.TourTypeFull)
	if !errors.Is(err, models.ErrTourAlreadyActive) {
		t.Errorf("expected ErrTourAlreadyActive, got %v", err)
	}
	// A paused session still blocks new starts.
	if _, err := sm.PauseTour(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = sm.StartTour(ctx, "user-1", "tour_inbox", models.TourTypeFull)
	if !errors.Is(err, models.ErrTourAlreadyActive) {
		t.Errorf("expected ErrTourAlreadyActive for paused session, got %v", err)
	}
}

func TestStartTourConcurrentSingleWinner(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()

	const attempts = 16
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var started, blocked int
	for err := range errs {
		switch {
		case err == nil:
			started++
		case errors.Is(err, models.ErrTourAlreadyActive):
			blocked++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if started != 1 {
		t.Errorf("expected exactly one start to win, got %d", started)
	}
	if blocked != attempts-1 {
		t.Errorf("expected %d blocked starts, got %d", attempts-1, blocked)
	}
}

func TestNextStepRequiresActiveTour(t *testing.T) {
	sm, _, _ := newTestManager(t)
	_, err := sm.NextStep(context.Background(), "user-1")
	if !errors.Is(err, models.ErrNoActiveTour) {
		t.Errorf("expected ErrNoActiveTour, got %v", err)
	}
}

func TestNextStepRejectsPausedTour(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sm.PauseTour(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := sm.NextStep(ctx, "user-1")
	if !errors.Is(err, models.ErrTourNotRunning) {
		t.Errorf("expected ErrTourNotRunning, got %v", err)
	}
}

// Walking the three dashboard steps with pause and resume in the middle must
// complete the session on exactly the third advance.
func TestDashboardTourEndToEnd(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()

	start, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Progress.Total != 3 {
		t.Fatalf("dashboard tour should have 3 steps, got %d", start.Progress.Total)
	}

	first, err := sm.NextStep(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Completed {
		t.Fatal("tour completed too early")
	}
	if first.Session.CurrentStepID != "dashboard_activity" || first.Progress.Current != 2 {
		t.Errorf("unexpected position after first advance: %+v", first.Session)
	}

	second, err := sm.NextStep(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Completed || second.Progress.Current != 3 {
		t.Errorf("unexpected position after second advance: %+v", second.Progress)
	}

	if _, err := sm.PauseTour(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resumed, err := sm.ResumeTour(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.Session.CurrentStepID != "dashboard_quick_actions" {
		t.Errorf("resume moved the current step: %+v", resumed.Session)
	}
	if resumed.Session.PausedAt != nil {
		t.Error("paused_at not cleared on resume")
	}
	if resumed.CurrentStep == nil || resumed.CurrentStep.Text == "" {
		t.Error("resume should re-fetch current step data")
	}

	final, err := sm.NextStep(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !final.Completed {
		t.Fatal("expected the third advance to complete the tour")
	}
	if final.Session.Status != models.SessionStatusCompleted {
		t.Errorf("expected completed status, got %s", final.Session.Status)
	}
	if len(final.Session.CompletedSteps) != 3 {
		t.Errorf("expected all 3 steps completed, got %v", final.Session.CompletedSteps)
	}
	if final.Session.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}

	// Completion frees the active slot.
	active, err := sm.GetActiveTour(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active != nil {
		t.Errorf("completed session still reported active: %+v", active)
	}
}

func TestSkipStepNotCompleted(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := sm.SkipStep(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess := result.Session
	if sess.CurrentStepIndex != 1 {
		t.Errorf("skip did not advance, index = %d", sess.CurrentStepIndex)
	}
	if !containsString(sess.SkippedSteps, "dashboard_overview") {
		t.Errorf("skipped step not recorded: %v", sess.SkippedSteps)
	}
	if containsString(sess.CompletedSteps, "dashboard_overview") {
		t.Errorf("skipped step must not be marked completed: %v", sess.CompletedSteps)
	}
}

func TestStopTourFromPaused(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sm.PauseTour(ctx, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := sm.StopTour(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Session.Status != models.SessionStatusCancelled {
		t.Errorf("expected cancelled status, got %s", result.Session.Status)
	}
	if result.Session.CancelledAt == nil {
		t.Error("cancelled_at not stamped")
	}
	_, err = sm.StopTour(ctx, "user-1")
	if !errors.Is(err, models.ErrNoActiveTour) {
		t.Errorf("expected ErrNoActiveTour after cancellation, got %v", err)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()
	if _, err := sm.StartTour(ctx, "user-1", "tour_dashboard", models.TourTypeFull); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := sm.ResumeTour(ctx, "user-1")
	if !errors.Is(err, models.ErrTourNotRunning) {
		t.Errorf("expected ErrTourNotRunning for a running session, got %v", err)
	}
	_, err = sm.PauseTour(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = sm.PauseTour(ctx, "user-1")
	if !errors.Is(err, models.ErrTourNotRunning) {
		t.Errorf("expected ErrTourNotRunning for a paused session, got %v", err)
	}
}

func TestZeroStepModuleCompletesImmediately(t *testing.T) {
	sm, catalog, _ := newTestManager(t)
	ctx := context.Background()
	_, err := catalog.RegisterModule(ctx, models.TourModule{
		ModuleID:   "tour_empty",
		ModuleName: "Empty Tour",
		SectionID:  "empty",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start, err := sm.StartTour(ctx, "user-1", "tour_empty", models.TourTypeMini)
	if err != nil {
		t.Fatalf("starting a zero-step tour must not fail: %v", err)
	}
	if start.Session.CurrentStepID != "" || start.CurrentStep != nil {
		t.Errorf("zero-step tour should have no current step: %+v", start)
	}

	result, err := sm.NextStep(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Completed || result.Session.Status != models.SessionStatusCompleted {
		t.Errorf("zero-step tour should complete on first advance: %+v", result.Session)
	}
	if len(result.Session.CompletedSteps) != 0 {
		t.Errorf("zero-step tour should complete no steps: %v", result.Session.CompletedSteps)
	}
}

func TestProcessCommandDispatch(t *testing.T) {
	sm, _, _ := newTestManager(t)
	ctx := context.Background()

	result, err := sm.ProcessCommand(ctx, "user-1", models.TourCommandStart, map[string]string{"module_id": "tour_inbox", "tour_type": "section"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Session.TourModuleID != "tour_inbox" || result.Session.TourType != models.TourTypeSection {
		t.Errorf("dispatch did not honor command data: %+v", result.Session)
	}

	if _, err := sm.ProcessCommand(ctx, "user-1", models.TourCommandCancel, nil); err != nil {
		t.Fatalf("cancel dispatch failed: %v", err)
	}

	_, err = sm.ProcessCommand(ctx, "user-1", models.TourCommand("bogus"), nil)
	if !errors.Is(err, models.ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestStartTourDefaultsModule(t *testing.T) {
	sm, _, _ := newTestManager(t)
	result, err := sm.StartTour(context.Background(), "user-1", "", models.TourType("bogus"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Session.TourModuleID != DefaultModuleID {
		t.Errorf("expected default module, got %s", result.Session.TourModuleID)
	}
	if result.Session.TourType != models.TourTypeFull {
		t.Errorf("invalid tour type should fall back to full, got %s", result.Session.TourType)
	}
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
