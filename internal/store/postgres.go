// Package store provides storage backends for the DONNA tour engine.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/donna-assistant/donna/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveTourModule upserts a module by module_id, replacing the step sequence
// and payloads on conflict. created_at is preserved across updates.
func (s *PostgresStore) SaveTourModule(m models.TourModule) error {
	args, err := moduleArgs(m)
	if err != nil {
		slog.Error("PostgresStore SaveTourModule encode failed", "error", err, "moduleID", m.ModuleID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tour_modules (`+moduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (module_id) DO UPDATE SET
			module_name = EXCLUDED.module_name,
			description = EXCLUDED.description,
			section_id = EXCLUDED.section_id,
			order_index = EXCLUDED.order_index,
			is_active = EXCLUDED.is_active,
			step_sequence = EXCLUDED.step_sequence,
			text_payload = EXCLUDED.text_payload,
			ui_hooks = EXCLUDED.ui_hooks,
			updated_at = EXCLUDED.updated_at`, args...)
	if err != nil {
		slog.Error("PostgresStore SaveTourModule failed", "error", err, "moduleID", m.ModuleID)
		return fmt.Errorf("failed to save tour module %s: %w", m.ModuleID, err)
	}
	slog.Debug("PostgresStore SaveTourModule succeeded", "moduleID", m.ModuleID)
	return nil
}

// GetTourModule retrieves an active module by ID.
func (s *PostgresStore) GetTourModule(moduleID string) (*models.TourModule, error) {
	row := s.db.QueryRow(`SELECT `+moduleColumns+` FROM tour_modules WHERE module_id = $1 AND is_active`, moduleID)
	m, err := scanTourModule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTourModule failed", "error", err, "moduleID", moduleID)
		return nil, fmt.Errorf("failed to query tour module %s: %w", moduleID, err)
	}
	return &m, nil
}

// GetTourModuleBySection retrieves the first active module for a section.
func (s *PostgresStore) GetTourModuleBySection(sectionID string) (*models.TourModule, error) {
	row := s.db.QueryRow(`
		SELECT `+moduleColumns+` FROM tour_modules
		WHERE section_id = $1 AND is_active
		ORDER BY order_index, module_name LIMIT 1`, sectionID)
	m, err := scanTourModule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTourModuleBySection failed", "error", err, "sectionID", sectionID)
		return nil, fmt.Errorf("failed to query tour module for section %s: %w", sectionID, err)
	}
	return &m, nil
}

// ListTourModules returns active modules ordered by order index then name.
func (s *PostgresStore) ListTourModules() ([]models.TourModule, error) {
	rows, err := s.db.Query(`SELECT ` + moduleColumns + ` FROM tour_modules WHERE is_active ORDER BY order_index, module_name`)
	if err != nil {
		slog.Error("PostgresStore ListTourModules query failed", "error", err)
		return nil, fmt.Errorf("failed to query tour modules: %w", err)
	}
	defer rows.Close()

	var modules []models.TourModule
	for rows.Next() {
		m, err := scanTourModule(rows)
		if err != nil {
			slog.Error("PostgresStore ListTourModules scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan tour module row: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tour module rows: %w", err)
	}
	slog.Debug("PostgresStore ListTourModules succeeded", "count", len(modules))
	return modules, nil
}

// CreateTourSessionIfNoneActive inserts the session only if the user has no
// running or paused session.
func (s *PostgresStore) CreateTourSessionIfNoneActive(sess models.TourSession) (bool, error) {
	args, err := sessionArgs(sess)
	if err != nil {
		slog.Error("PostgresStore CreateTourSessionIfNoneActive encode failed", "error", err, "sessionID", sess.ID)
		return false, err
	}
	args = append(args, sess.UserID)
	res, err := s.db.Exec(`
		INSERT INTO tour_sessions (`+sessionColumns+`)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		WHERE NOT EXISTS (
			SELECT 1 FROM tour_sessions WHERE user_id = $15 AND status IN ('running', 'paused')
		)`, args...)
	if err != nil {
		// The partial unique index on (user_id) WHERE status IN
		// ('running','paused') catches concurrent inserts that both pass
		// the NOT EXISTS check; treat the violation as "already active".
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			slog.Debug("PostgresStore CreateTourSessionIfNoneActive lost insert race", "userID", sess.UserID)
			return false, nil
		}
		slog.Error("PostgresStore CreateTourSessionIfNoneActive failed", "error", err, "userID", sess.UserID)
		return false, fmt.Errorf("failed to create tour session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("PostgresStore CreateTourSessionIfNoneActive", "userID", sess.UserID, "created", affected > 0)
	return affected > 0, nil
}

// UpdateTourSessionIfStatus updates the session only if its stored status is
// one of the expected statuses.
func (s *PostgresStore) UpdateTourSessionIfStatus(sess models.TourSession, expected []models.SessionStatus) (bool, error) {
	if len(expected) == 0 {
		return false, fmt.Errorf("expected statuses must not be empty")
	}
	args, err := sessionArgs(sess)
	if err != nil {
		slog.Error("PostgresStore UpdateTourSessionIfStatus encode failed", "error", err, "sessionID", sess.ID)
		return false, err
	}
	// Drop the leading id column from the SET list; it is the WHERE key.
	setArgs := args[1:]
	queryArgs := append(setArgs, sess.ID)
	statuses := make([]string, len(expected))
	for i, status := range expected {
		statuses[i] = string(status)
	}
	res, err := s.db.Exec(`
		UPDATE tour_sessions SET
			user_id = $1, tour_module_id = $2, tour_type = $3, status = $4,
			current_step_index = $5, current_step_id = $6, completed_steps = $7,
			skipped_steps = $8, started_at = $9, paused_at = $10, completed_at = $11,
			cancelled_at = $12, updated_at = $13
		WHERE id = $14 AND status = ANY($15)`, append(queryArgs, pq.Array(statuses))...)
	if err != nil {
		slog.Error("PostgresStore UpdateTourSessionIfStatus failed", "error", err, "sessionID", sess.ID)
		return false, fmt.Errorf("failed to update tour session %s: %w", sess.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("PostgresStore UpdateTourSessionIfStatus", "sessionID", sess.ID, "applied", affected > 0)
	return affected > 0, nil
}

// GetTourSession retrieves a session by ID.
func (s *PostgresStore) GetTourSession(id string) (*models.TourSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM tour_sessions WHERE id = $1`, id)
	sess, err := scanTourSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTourSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query tour session %s: %w", id, err)
	}
	return &sess, nil
}

// GetActiveTourSession retrieves the user's most recently started running or
// paused session.
func (s *PostgresStore) GetActiveTourSession(userID string) (*models.TourSession, error) {
	row := s.db.QueryRow(`
		SELECT `+sessionColumns+` FROM tour_sessions
		WHERE user_id = $1 AND status IN ('running', 'paused')
		ORDER BY started_at DESC LIMIT 1`, userID)
	sess, err := scanTourSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveTourSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active tour session: %w", err)
	}
	return &sess, nil
}

// GetOnboardingState retrieves the onboarding record for a user.
func (s *PostgresStore) GetOnboardingState(userID string) (*models.OnboardingState, error) {
	row := s.db.QueryRow(`SELECT `+onboardingColumns+` FROM onboarding_states WHERE user_id = $1`, userID)
	st, err := scanOnboardingState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetOnboardingState failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query onboarding state: %w", err)
	}
	return &st, nil
}

// SaveOnboardingState upserts the onboarding record keyed by user_id.
func (s *PostgresStore) SaveOnboardingState(st models.OnboardingState) error {
	args, err := onboardingArgs(st)
	if err != nil {
		slog.Error("PostgresStore SaveOnboardingState encode failed", "error", err, "userID", st.UserID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO onboarding_states (`+onboardingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			business_name = EXCLUDED.business_name,
			documents_uploaded = EXCLUDED.documents_uploaded,
			personality_configured = EXCLUDED.personality_configured,
			onboarding_completed = EXCLUDED.onboarding_completed,
			onboarding_completed_at = EXCLUDED.onboarding_completed_at,
			current_step = EXCLUDED.current_step,
			step_data = EXCLUDED.step_data,
			updated_at = EXCLUDED.updated_at`, args...)
	if err != nil {
		slog.Error("PostgresStore SaveOnboardingState failed", "error", err, "userID", st.UserID)
		return fmt.Errorf("failed to save onboarding state: %w", err)
	}
	slog.Debug("PostgresStore SaveOnboardingState succeeded", "userID", st.UserID)
	return nil
}

// DeleteOnboardingState removes the onboarding record for a user.
func (s *PostgresStore) DeleteOnboardingState(userID string) error {
	_, err := s.db.Exec(`DELETE FROM onboarding_states WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteOnboardingState failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete onboarding state: %w", err)
	}
	return nil
}

// AddCommandLogEntry appends an audit record.
func (s *PostgresStore) AddCommandLogEntry(e models.CommandLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO tour_command_log (id, tour_session_id, user_id, command_type, original_message, detected_intent, confidence_score, command_result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, nilIfEmpty(e.TourSessionID), e.UserID, nilIfEmpty(string(e.CommandType)),
		nilIfEmpty(e.OriginalMessage), nilIfEmpty(string(e.DetectedIntent)),
		e.ConfidenceScore, nilIfEmpty(e.CommandResult), e.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddCommandLogEntry failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert command log entry: %w", err)
	}
	return nil
}

// GetCommandLogEntries returns a user's audit records, oldest first.
func (s *PostgresStore) GetCommandLogEntries(userID string) ([]models.CommandLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, tour_session_id, user_id, command_type, original_message, detected_intent, confidence_score, command_result, created_at
		FROM tour_command_log WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("PostgresStore GetCommandLogEntries query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query command log: %w", err)
	}
	defer rows.Close()

	var entries []models.CommandLogEntry
	for rows.Next() {
		e, err := scanCommandLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command log row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate command log rows: %w", err)
	}
	return entries, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
