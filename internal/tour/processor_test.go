package tour

import (
	"context"
	"testing"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
)

func newTestProcessor(t *testing.T) (*Processor, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	catalog := NewCatalog(st)
	if err := catalog.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
	return NewProcessor(st, NewSessionManager(st, catalog)), st
}

// A start-type message must return the session, module and first step payload
// in a single round trip.
func TestHandleStartMessage(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := p.Handle(context.Background(), "user-1", models.TourCommandRequest{Message: "give me a tour"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Intent == nil || result.Intent.Intent != models.IntentFullTour {
		t.Errorf("expected full_tour intent on the result, got %+v", result.Intent)
	}
	if result.Session == nil || result.Module == nil || result.CurrentStep == nil {
		t.Errorf("start result missing payload: %+v", result)
	}
	if result.Session.TourModuleID != DefaultModuleID {
		t.Errorf("full tour should start the default module, got %s", result.Session.TourModuleID)
	}
}

func TestHandleSectionMessage(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := p.Handle(context.Background(), "user-1", models.TourCommandRequest{Message: "explain the marketing tab"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Session.TourModuleID != "tour_marketing" || result.Session.TourType != models.TourTypeSection {
		t.Errorf("section message resolved wrong module: %+v", result.Session)
	}
}

func TestHandleControlMessage(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	if result := p.Handle(ctx, "user-1", models.TourCommandRequest{Message: "give me a tour"}); !result.Success {
		t.Fatalf("setup start failed: %+v", result)
	}
	result := p.Handle(ctx, "user-1", models.TourCommandRequest{Message: "stop the tour"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Command != models.TourCommandStop {
		t.Errorf("expected stop command, got %s", result.Command)
	}
	if result.Session.Status != models.SessionStatusCancelled {
		t.Errorf("expected cancelled session, got %s", result.Session.Status)
	}
}

func TestHandleUnrecognizedMessage(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := p.Handle(context.Background(), "user-1", models.TourCommandRequest{Message: "hello there"})
	if result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.Error != models.ErrIntentNotRecognized.Error() {
		t.Errorf("unexpected error text: %q", result.Error)
	}
}

func TestHandleExplicitCommand(t *testing.T) {
	p, _ := newTestProcessor(t)
	ctx := context.Background()
	result := p.Handle(ctx, "user-1", models.TourCommandRequest{
		Command: models.TourCommandStart,
		Data:    map[string]string{"module_id": "tour_inbox"},
	})
	if !result.Success || result.Session.TourModuleID != "tour_inbox" {
		t.Fatalf("explicit start failed: %+v", result)
	}
	next := p.Handle(ctx, "user-1", models.TourCommandRequest{Command: models.TourCommandNext})
	if !next.Success || next.Progress.Current != 2 {
		t.Errorf("explicit next failed: %+v", next)
	}
}

func TestHandleFailureShape(t *testing.T) {
	p, _ := newTestProcessor(t)
	result := p.Handle(context.Background(), "user-1", models.TourCommandRequest{Command: models.TourCommandNext})
	if result.Success {
		t.Fatal("expected failure without an active tour")
	}
	if result.Error != models.ErrNoActiveTour.Error() {
		t.Errorf("unexpected error text: %q", result.Error)
	}
	result = p.Handle(context.Background(), "user-1", models.TourCommandRequest{})
	if result.Success || result.Error == "" {
		t.Errorf("empty request should fail with an error message: %+v", result)
	}
}

// Every invocation writes an audit record, success or failure, carrying the
// detected intent and the serialized result.
func TestHandleWritesAuditLog(t *testing.T) {
	p, st := newTestProcessor(t)
	ctx := context.Background()
	p.Handle(ctx, "user-1", models.TourCommandRequest{Message: "give me a tour"})
	p.Handle(ctx, "user-1", models.TourCommandRequest{Message: "hello there"})

	entries, err := st.GetCommandLogEntries("user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	first := entries[0]
	if first.DetectedIntent != models.IntentFullTour || first.ConfidenceScore != 0.9 {
		t.Errorf("audit entry missing intent data: %+v", first)
	}
	if first.TourSessionID == "" {
		t.Error("audit entry for a start should carry the session ID")
	}
	if first.CommandResult == "" {
		t.Error("audit entry missing serialized result")
	}
	second := entries[1]
	if second.DetectedIntent != "" || second.OriginalMessage != "hello there" {
		t.Errorf("unexpected audit entry for unrecognized message: %+v", second)
	}
}
