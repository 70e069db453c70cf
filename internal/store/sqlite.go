// Package store provides storage backends for the DONNA tour engine.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	"github.com/donna-assistant/donna/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveTourModule upserts a module by module_id, replacing the step sequence
// and payloads on conflict. created_at is preserved across updates.
func (s *SQLiteStore) SaveTourModule(m models.TourModule) error {
	args, err := moduleArgs(m)
	if err != nil {
		slog.Error("SQLiteStore SaveTourModule encode failed", "error", err, "moduleID", m.ModuleID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO tour_modules (`+moduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (module_id) DO UPDATE SET
			module_name = excluded.module_name,
			description = excluded.description,
			section_id = excluded.section_id,
			order_index = excluded.order_index,
			is_active = excluded.is_active,
			step_sequence = excluded.step_sequence,
			text_payload = excluded.text_payload,
			ui_hooks = excluded.ui_hooks,
			updated_at = excluded.updated_at`, args...)
	if err != nil {
		slog.Error("SQLiteStore SaveTourModule failed", "error", err, "moduleID", m.ModuleID)
		return fmt.Errorf("failed to save tour module %s: %w", m.ModuleID, err)
	}
	slog.Debug("SQLiteStore SaveTourModule succeeded", "moduleID", m.ModuleID)
	return nil
}

// GetTourModule retrieves an active module by ID.
func (s *SQLiteStore) GetTourModule(moduleID string) (*models.TourModule, error) {
	row := s.db.QueryRow(`SELECT `+moduleColumns+` FROM tour_modules WHERE module_id = ? AND is_active = 1`, moduleID)
	m, err := scanTourModule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTourModule failed", "error", err, "moduleID", moduleID)
		return nil, fmt.Errorf("failed to query tour module %s: %w", moduleID, err)
	}
	return &m, nil
}

// GetTourModuleBySection retrieves the first active module for a section.
func (s *SQLiteStore) GetTourModuleBySection(sectionID string) (*models.TourModule, error) {
	row := s.db.QueryRow(`
		SELECT `+moduleColumns+` FROM tour_modules
		WHERE section_id = ? AND is_active = 1
		ORDER BY order_index, module_name LIMIT 1`, sectionID)
	m, err := scanTourModule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTourModuleBySection failed", "error", err, "sectionID", sectionID)
		return nil, fmt.Errorf("failed to query tour module for section %s: %w", sectionID, err)
	}
	return &m, nil
}

// ListTourModules returns active modules ordered by order index then name.
func (s *SQLiteStore) ListTourModules() ([]models.TourModule, error) {
	rows, err := s.db.Query(`SELECT ` + moduleColumns + ` FROM tour_modules WHERE is_active = 1 ORDER BY order_index, module_name`)
	if err != nil {
		slog.Error("SQLiteStore ListTourModules query failed", "error", err)
		return nil, fmt.Errorf("failed to query tour modules: %w", err)
	}
	defer rows.Close()

	var modules []models.TourModule
	for rows.Next() {
		m, err := scanTourModule(rows)
		if err != nil {
			slog.Error("SQLiteStore ListTourModules scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan tour module row: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tour module rows: %w", err)
	}
	slog.Debug("SQLiteStore ListTourModules succeeded", "count", len(modules))
	return modules, nil
}

// CreateTourSessionIfNoneActive inserts the session only if the user has no
// running or paused session. The single conditional INSERT keeps concurrent
// starts for the same user from both succeeding.
func (s *SQLiteStore) CreateTourSessionIfNoneActive(sess models.TourSession) (bool, error) {
	args, err := sessionArgs(sess)
	if err != nil {
		slog.Error("SQLiteStore CreateTourSessionIfNoneActive encode failed", "error", err, "sessionID", sess.ID)
		return false, err
	}
	args = append(args, sess.UserID)
	res, err := s.db.Exec(`
		INSERT INTO tour_sessions (`+sessionColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM tour_sessions WHERE user_id = ? AND status IN ('running', 'paused')
		)`, args...)
	if err != nil {
		slog.Error("SQLiteStore CreateTourSessionIfNoneActive failed", "error", err, "userID", sess.UserID)
		return false, fmt.Errorf("failed to create tour session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("SQLiteStore CreateTourSessionIfNoneActive", "userID", sess.UserID, "created", affected > 0)
	return affected > 0, nil
}

// UpdateTourSessionIfStatus updates the session only if its stored status is
// one of the expected statuses.
func (s *SQLiteStore) UpdateTourSessionIfStatus(sess models.TourSession, expected []models.SessionStatus) (bool, error) {
	if len(expected) == 0 {
		return false, fmt.Errorf("expected statuses must not be empty")
	}
	args, err := sessionArgs(sess)
	if err != nil {
		slog.Error("SQLiteStore UpdateTourSessionIfStatus encode failed", "error", err, "sessionID", sess.ID)
		return false, err
	}
	// Drop the leading id column from the SET list; it is the WHERE key.
	setArgs := args[1:]
	placeholders := make([]string, len(expected))
	queryArgs := append(setArgs, sess.ID)
	for i, status := range expected {
		placeholders[i] = "?"
		queryArgs = append(queryArgs, string(status))
	}
	res, err := s.db.Exec(`
		UPDATE tour_sessions SET
			user_id = ?, tour_module_id = ?, tour_type = ?, status = ?,
			current_step_index = ?, current_step_id = ?, completed_steps = ?,
			skipped_steps = ?, started_at = ?, paused_at = ?, completed_at = ?,
			cancelled_at = ?, updated_at = ?
		WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`, queryArgs...)
	if err != nil {
		slog.Error("SQLiteStore UpdateTourSessionIfStatus failed", "error", err, "sessionID", sess.ID)
		return false, fmt.Errorf("failed to update tour session %s: %w", sess.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	slog.Debug("SQLiteStore UpdateTourSessionIfStatus", "sessionID", sess.ID, "applied", affected > 0)
	return affected > 0, nil
}

// GetTourSession retrieves a session by ID.
func (s *SQLiteStore) GetTourSession(id string) (*models.TourSession, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM tour_sessions WHERE id = ?`, id)
	sess, err := scanTourSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTourSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to query tour session %s: %w", id, err)
	}
	return &sess, nil
}

// GetActiveTourSession retrieves the user's most recently started running or
// paused session.
func (s *SQLiteStore) GetActiveTourSession(userID string) (*models.TourSession, error) {
	row := s.db.QueryRow(`
		SELECT `+sessionColumns+` FROM tour_sessions
		WHERE user_id = ? AND status IN ('running', 'paused')
		ORDER BY started_at DESC LIMIT 1`, userID)
	sess, err := scanTourSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveTourSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query active tour session: %w", err)
	}
	return &sess, nil
}

// GetOnboardingState retrieves the onboarding record for a user.
func (s *SQLiteStore) GetOnboardingState(userID string) (*models.OnboardingState, error) {
	row := s.db.QueryRow(`SELECT `+onboardingColumns+` FROM onboarding_states WHERE user_id = ?`, userID)
	st, err := scanOnboardingState(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetOnboardingState failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query onboarding state: %w", err)
	}
	return &st, nil
}

// SaveOnboardingState upserts the onboarding record keyed by user_id.
func (s *SQLiteStore) SaveOnboardingState(st models.OnboardingState) error {
	args, err := onboardingArgs(st)
	if err != nil {
		slog.Error("SQLiteStore SaveOnboardingState encode failed", "error", err, "userID", st.UserID)
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO onboarding_states (`+onboardingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name,
			business_name = excluded.business_name,
			documents_uploaded = excluded.documents_uploaded,
			personality_configured = excluded.personality_configured,
			onboarding_completed = excluded.onboarding_completed,
			onboarding_completed_at = excluded.onboarding_completed_at,
			current_step = excluded.current_step,
			step_data = excluded.step_data,
			updated_at = excluded.updated_at`, args...)
	if err != nil {
		slog.Error("SQLiteStore SaveOnboardingState failed", "error", err, "userID", st.UserID)
		return fmt.Errorf("failed to save onboarding state: %w", err)
	}
	slog.Debug("SQLiteStore SaveOnboardingState succeeded", "userID", st.UserID)
	return nil
}

// DeleteOnboardingState removes the onboarding record for a user.
func (s *SQLiteStore) DeleteOnboardingState(userID string) error {
	_, err := s.db.Exec(`DELETE FROM onboarding_states WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteOnboardingState failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete onboarding state: %w", err)
	}
	return nil
}

// AddCommandLogEntry appends an audit record.
func (s *SQLiteStore) AddCommandLogEntry(e models.CommandLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO tour_command_log (id, tour_session_id, user_id, command_type, original_message, detected_intent, confidence_score, command_result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, nilIfEmpty(e.TourSessionID), e.UserID, nilIfEmpty(string(e.CommandType)),
		nilIfEmpty(e.OriginalMessage), nilIfEmpty(string(e.DetectedIntent)),
		e.ConfidenceScore, nilIfEmpty(e.CommandResult), e.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddCommandLogEntry failed", "error", err, "userID", e.UserID)
		return fmt.Errorf("failed to insert command log entry: %w", err)
	}
	return nil
}

// GetCommandLogEntries returns a user's audit records, oldest first.
func (s *SQLiteStore) GetCommandLogEntries(userID string) ([]models.CommandLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, tour_session_id, user_id, command_type, original_message, detected_intent, confidence_score, command_result, created_at
		FROM tour_command_log WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetCommandLogEntries query failed", "error", err, "userID", userID)
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

// scanCommandLogEntry scans one tour_command_log row.
func scanCommandLogEntry(row rowScanner) (models.CommandLogEntry, error) {
	var e models.CommandLogEntry
	var sessionID, commandType, originalMessage, detectedIntent, commandResult sql.NullString
	var confidence sql.NullFloat64
	err := row.Scan(&e.ID, &sessionID, &e.UserID, &commandType, &originalMessage,
		&detectedIntent, &confidence, &commandResult, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	e.TourSessionID = sessionID.String
	e.CommandType = models.TourCommand(commandType.String)
	e.OriginalMessage = originalMessage.String
	e.DetectedIntent = models.IntentType(detectedIntent.String)
	e.ConfidenceScore = confidence.Float64
	e.CommandResult = commandResult.String
	return e, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
