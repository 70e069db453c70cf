// Package tour implements the guided tour engine: the module catalog, the
// per-user session state machine, and the command processor that ties free
// text and explicit commands to session transitions.
package tour

import (
	"context"
	"log/slog"
	"time"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/donna-assistant/donna/internal/store"
)

// Catalog is the read-mostly registry of tour modules backed by a Store.
// Only active modules are visible through read operations.
type Catalog struct {
	store store.Store
}

// NewCatalog creates a catalog backed by the given store.
func NewCatalog(st store.Store) *Catalog {
	slog.Debug("Creating tour Catalog")
	return &Catalog{store: st}
}

// GetModule retrieves an active module by ID, or nil if unknown or inactive.
func (c *Catalog) GetModule(ctx context.Context, moduleID string) (*models.TourModule, error) {
	m, err := c.store.GetTourModule(moduleID)
	if err != nil {
		slog.Error("Catalog GetModule error", "error", err, "moduleID", moduleID)
		return nil, err
	}
	return m, nil
}

// GetModuleBySection retrieves the active module covering a product section,
// or nil if no module covers it.
func (c *Catalog) GetModuleBySection(ctx context.Context, sectionID string) (*models.TourModule, error) {
	m, err := c.store.GetTourModuleBySection(sectionID)
	if err != nil {
		slog.Error("Catalog GetModuleBySection error", "error", err, "sectionID", sectionID)
		return nil, err
	}
	return m, nil
}

// GetAllModules lists active modules ordered by order index, ties broken by
// module name.
func (c *Catalog) GetAllModules(ctx context.Context) ([]models.TourModule, error) {
	modules, err := c.store.ListTourModules()
	if err != nil {
		slog.Error("Catalog GetAllModules error", "error", err)
		return nil, err
	}
	return modules, nil
}

// GetStepData returns the step record, narration text and optional UI hook
// for one step of a module. It returns nil when the module is unknown or the
// step ID is not part of the module's sequence.
func (c *Catalog) GetStepData(ctx context.Context, moduleID, stepID string) (*models.StepData, error) {
	m, err := c.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	for i := range m.StepSequence {
		if m.StepSequence[i].StepID != stepID {
			continue
		}
		data := &models.StepData{
			Step: m.StepSequence[i],
			Text: m.TextPayload[stepID],
		}
		if hook, ok := m.UIHooks[stepID]; ok {
			data.UIHook = &hook
		}
		return data, nil
	}
	slog.Debug("Catalog GetStepData: step not in module", "moduleID", moduleID, "stepID", stepID)
	return nil, nil
}

// GetModuleSteps returns the ordered step summaries for a module, or nil if
// the module is unknown.
func (c *Catalog) GetModuleSteps(ctx context.Context, moduleID string) ([]models.TourStep, error) {
	m, err := c.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	steps := make([]models.TourStep, len(m.StepSequence))
	copy(steps, m.StepSequence)
	return steps, nil
}

// GetModuleMetadata returns the summary view of a module, or nil if unknown.
func (c *Catalog) GetModuleMetadata(ctx context.Context, moduleID string) (*models.ModuleMetadata, error) {
	m, err := c.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	meta := m.Metadata()
	return &meta, nil
}

// RegisterModule validates and upserts a module by module_id. On conflict the
// step sequence and payloads are fully replaced.
func (c *Catalog) RegisterModule(ctx context.Context, m models.TourModule) (*models.TourModule, error) {
	if err := m.Validate(); err != nil {
		slog.Warn("Catalog RegisterModule validation failed", "error", err, "moduleID", m.ModuleID)
		return nil, err
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if err := c.store.SaveTourModule(m); err != nil {
		slog.Error("Catalog RegisterModule save error", "error", err, "moduleID", m.ModuleID)
		return nil, err
	}
	slog.Info("Catalog registered tour module", "moduleID", m.ModuleID, "steps", m.StepCount())
	return &m, nil
}

// SeedDefaults registers every built-in module that is not already present,
// so operator edits to existing modules survive restarts.
func (c *Catalog) SeedDefaults(ctx context.Context) error {
	for _, m := range BuiltinModules() {
		existing, err := c.store.GetTourModule(m.ModuleID)
		if err != nil {
			slog.Error("Catalog SeedDefaults lookup error", "error", err, "moduleID", m.ModuleID)
			return err
		}
		if existing != nil {
			continue
		}
		if _, err := c.RegisterModule(ctx, m); err != nil {
			return err
		}
	}
	slog.Debug("Catalog SeedDefaults completed")
	return nil
}
