package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/SRdeMora/Ingenieria-de-Contexto/internal/models"
)

// SQLiteSummaryStore implements SummaryStore on an embedded SQLite
// database: one table for rolling summaries, one for session records.
type SQLiteSummaryStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewSQLiteSummaryStore(path string, logger *logrus.Logger) (*SQLiteSummaryStore, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	store := &SQLiteSummaryStore{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteSummaryStore) createTables() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		summary      TEXT NOT NULL,
		turn_count   INTEGER NOT NULL,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS session_info (
		session_id   TEXT PRIMARY KEY,
		session_name TEXT NOT NULL,
		created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *SQLiteSummaryStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteSummaryStore) GetSummary(ctx context.Context, sessionID string) (*models.RollingSummary, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT summary, turn_count FROM sessions WHERE session_id = ?", sessionID)

	var summary models.RollingSummary
	if err := row.Scan(&summary.Text, &summary.TurnCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	return &summary, nil
}

func (s *SQLiteSummaryStore) PutSummary(ctx context.Context, sessionID, text string, turnCount int) error {
	_, err := s.db.ExecContext(ctx,
		"REPLACE INTO sessions (session_id, summary, turn_count) VALUES (?, ?, ?)",
		sessionID, text, turnCount)
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"turn_count": turnCount,
	}).Debug("Rolling summary replaced")
	return nil
}

func (s *SQLiteSummaryStore) CreateSession(ctx context.Context, sessionID, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO session_info (session_id, session_name) VALUES (?, ?)",
		sessionID, name)
	if err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":   sessionID,
		"session_name": name,
	}).Info("Session record created")
	return nil
}

func (s *SQLiteSummaryStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, session_name, created_at FROM session_info ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteSummaryStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_info WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session summary: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session delete: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Info("Session deleted from relational store")
	return nil
}
