// Package store provides storage backends for the DONNA tour engine.
//
// It includes an in-memory store for tests and development, plus persistent
// SQLite and PostgreSQL stores. All backends implement the Store interface and
// provide the conditional-write operations the session state machine relies on
// to keep at most one active tour session per user.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/donna-assistant/donna/internal/models"
)

// Store defines the persistence operations required by the tour engine.
type Store interface {
	// SaveTourModule upserts a tour module by module_id, replacing the step
	// sequence and payloads on conflict.
	SaveTourModule(m models.TourModule) error

	// GetTourModule retrieves an active module by ID. Returns nil if the
	// module does not exist or is inactive.
	GetTourModule(moduleID string) (*models.TourModule, error)

	// GetTourModuleBySection retrieves the first active module for a section,
	// lowest order index first. Returns nil if none exists.
	GetTourModuleBySection(sectionID string) (*models.TourModule, error)

	// ListTourModules returns all active modules ordered by order index, ties
	// broken by module name.
	ListTourModules() ([]models.TourModule, error)

	// CreateTourSessionIfNoneActive inserts the session only if the user has
	// no running or paused session. Returns false (and no error) when an
	// active session already blocked the insert.
	CreateTourSessionIfNoneActive(s models.TourSession) (bool, error)

	// UpdateTourSessionIfStatus updates the session record only if its stored
	// status is one of the expected statuses. Returns false (and no error)
	// when the condition did not hold.
	UpdateTourSessionIfStatus(s models.TourSession, expected []models.SessionStatus) (bool, error)

	// GetTourSession retrieves a session by ID. Returns nil if not found.
	GetTourSession(id string) (*models.TourSession, error)

	// GetActiveTourSession retrieves the user's most recently started session
	// whose status is running or paused. Returns nil if none exists.
	GetActiveTourSession(userID string) (*models.TourSession, error)

	// GetOnboardingState retrieves the onboarding record for a user. Returns
	// nil if the user has no record yet.
	GetOnboardingState(userID string) (*models.OnboardingState, error)

	// SaveOnboardingState upserts the onboarding record keyed by user_id.
	SaveOnboardingState(st models.OnboardingState) error

	// DeleteOnboardingState removes the onboarding record for a user.
	DeleteOnboardingState(userID string) error

	// AddCommandLogEntry appends an audit record. Append-only.
	AddCommandLogEntry(e models.CommandLogEntry) error

	// GetCommandLogEntries returns a user's audit records, oldest first.
	GetCommandLogEntries(userID string) ([]models.CommandLogEntry, error)

	// Close releases the underlying resources.
	Close() error
}

// InMemoryStore is a mutex-guarded in-memory Store. A single lock serializes
// all operations, which trivially satisfies the per-user linearizability the
// session machine requires.
type InMemoryStore struct {
	mu         sync.Mutex
	modules    map[string]models.TourModule
	sessions   map[string]models.TourSession
	onboarding map[string]models.OnboardingState
	commandLog []models.CommandLogEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		modules:    make(map[string]models.TourModule),
		sessions:   make(map[string]models.TourSession),
		onboarding: make(map[string]models.OnboardingState),
	}
}

// SaveTourModule upserts a module by module_id.
func (s *InMemoryStore) SaveTourModule(m models.TourModule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[m.ModuleID] = cloneModule(m)
	return nil
}

// GetTourModule retrieves an active module by ID.
func (s *InMemoryStore) GetTourModule(moduleID string) (*models.TourModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.modules[moduleID]
	if !ok || !m.IsActive {
		return nil, nil
	}
	out := cloneModule(m)
	return &out, nil
}

// GetTourModuleBySection retrieves the first active module for a section.
func (s *InMemoryStore) GetTourModuleBySection(sectionID string) (*models.TourModule, error) {
	modules, err := s.ListTourModules()
	if err != nil {
		return nil, err
	}
	for _, m := range modules {
		if m.SectionID == sectionID {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

// ListTourModules returns active modules ordered by order index then name.
func (s *InMemoryStore) ListTourModules() ([]models.TourModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var modules []models.TourModule
	for _, m := range s.modules {
		if m.IsActive {
			modules = append(modules, cloneModule(m))
		}
	}
	sort.Slice(modules, func(i, j int) bool {
		if modules[i].OrderIndex != modules[j].OrderIndex {
			return modules[i].OrderIndex < modules[j].OrderIndex
		}
		return modules[i].ModuleName < modules[j].ModuleName
	})
	return modules, nil
}

// CreateTourSessionIfNoneActive inserts the session unless the user already
// has a running or paused one.
func (s *InMemoryStore) CreateTourSessionIfNoneActive(sess models.TourSession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.UserID == sess.UserID && existing.IsActive() {
			return false, nil
		}
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return true, nil
}

// UpdateTourSessionIfStatus updates the session iff its stored status matches.
func (s *InMemoryStore) UpdateTourSessionIfStatus(sess models.TourSession, expected []models.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sessions[sess.ID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range expected {
		if existing.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	s.sessions[sess.ID] = cloneSession(sess)
	return true, nil
}

// GetTourSession retrieves a session by ID.
func (s *InMemoryStore) GetTourSession(id string) (*models.TourSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	out := cloneSession(sess)
	return &out, nil
}

// GetActiveTourSession retrieves the most recently started running or paused
// session for a user.
func (s *InMemoryStore) GetActiveTourSession(userID string) (*models.TourSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.TourSession
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.IsActive() {
			continue
		}
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			out := cloneSession(sess)
			latest = &out
		}
	}
	return latest, nil
}

// GetOnboardingState retrieves the onboarding record for a user.
func (s *InMemoryStore) GetOnboardingState(userID string) (*models.OnboardingState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.onboarding[userID]
	if !ok {
		return nil, nil
	}
	out := cloneOnboarding(st)
	return &out, nil
}

// SaveOnboardingState upserts the onboarding record keyed by user_id.
func (s *InMemoryStore) SaveOnboardingState(st models.OnboardingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboarding[st.UserID] = cloneOnboarding(st)
	return nil
}

// DeleteOnboardingState removes the onboarding record for a user.
func (s *InMemoryStore) DeleteOnboardingState(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.onboarding, userID)
	return nil
}

// AddCommandLogEntry appends an audit record.
func (s *InMemoryStore) AddCommandLogEntry(e models.CommandLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandLog = append(s.commandLog, e)
	return nil
}

// GetCommandLogEntries returns a user's audit records, oldest first.
func (s *InMemoryStore) GetCommandLogEntries(userID string) ([]models.CommandLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []models.CommandLogEntry
	for _, e := range s.commandLog {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Clone helpers keep callers from aliasing the store's internal maps/slices.

func cloneModule(m models.TourModule) models.TourModule {
	out := m
	out.StepSequence = append([]models.TourStep(nil), m.StepSequence...)
	if m.TextPayload != nil {
		out.TextPayload = make(map[string]string, len(m.TextPayload))
		for k, v := range m.TextPayload {
			out.TextPayload[k] = v
		}
	}
	if m.UIHooks != nil {
		out.UIHooks = make(map[string]models.UIHook, len(m.UIHooks))
		for k, v := range m.UIHooks {
			out.UIHooks[k] = v
		}
	}
	return out
}

func cloneSession(s models.TourSession) models.TourSession {
	out := s
	out.CompletedSteps = append([]string(nil), s.CompletedSteps...)
	out.SkippedSteps = append([]string(nil), s.SkippedSteps...)
	out.PausedAt = cloneTime(s.PausedAt)
	out.CompletedAt = cloneTime(s.CompletedAt)
	out.CancelledAt = cloneTime(s.CancelledAt)
	return out
}

func cloneOnboarding(o models.OnboardingState) models.OnboardingState {
	out := o
	out.OnboardingCompletedAt = cloneTime(o.OnboardingCompletedAt)
	if o.StepData != nil {
		out.StepData = make(map[string]string, len(o.StepData))
		for k, v := range o.StepData {
			out.StepData[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
