// Package archive persists terminal session outcomes for audit. Archiving is
// optional; a session that cannot be archived still terminates normally.
package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store writes session reports to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

const sqlCreateTable = `
	CREATE TABLE IF NOT EXISTS session_reports (
		session_id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		status TEXT NOT NULL,
		iterations_used INT NOT NULL,
		history JSONB NOT NULL,
		final_summary JSONB,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		clarification TEXT
	);
`

const sqlInsertReport = `
	INSERT INTO session_reports (session_id, goal, status, iterations_used, history, final_summary, started_at, ended_at, clarification)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (session_id) DO UPDATE SET
		status = EXCLUDED.status,
		iterations_used = EXCLUDED.iterations_used,
		history = EXCLUDED.history,
		final_summary = EXCLUDED.final_summary,
		ended_at = EXCLUDED.ended_at,
		clarification = EXCLUDED.clarification;
`

const sqlSelectReport = `
	SELECT session_id, goal, status, iterations_used, history, final_summary, started_at, ended_at, clarification
	FROM session_reports WHERE session_id = $1;
`

// EnsureSchema creates the report table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTable); err != nil {
		return fmt.Errorf("failed to create session_reports table: %w", err)
	}
	return nil
}

// SaveReport persists one terminal report, complete history included.
func (s *Store) SaveReport(ctx context.Context, report schemas.SessionReport) error {
	history, err := json.Marshal(report.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	var finalSummary []byte
	if report.FinalSummary != nil {
		finalSummary, err = json.Marshal(report.FinalSummary)
		if err != nil {
			return fmt.Errorf("failed to marshal final summary: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, sqlInsertReport,
		report.SessionID, report.Goal, string(report.Status), report.IterationsUsed,
		history, finalSummary,
		report.StartedAt.UTC(), report.EndedAt.UTC(), report.Clarification)
	if err != nil {
		return fmt.Errorf("failed to insert session report: %w", err)
	}

	s.log.Info("Session report archived",
		zap.String("session_id", report.SessionID),
		zap.String("status", string(report.Status)),
		zap.Int("iterations_used", report.IterationsUsed))
	return nil
}

// LoadReport retrieves one archived report by session id.
func (s *Store) LoadReport(ctx context.Context, sessionID string) (schemas.SessionReport, error) {
	var (
		report       schemas.SessionReport
		status       string
		history      []byte
		finalSummary []byte
	)

	err := s.pool.QueryRow(ctx, sqlSelectReport, sessionID).Scan(
		&report.SessionID, &report.Goal, &status, &report.IterationsUsed,
		&history, &finalSummary,
		&report.StartedAt, &report.EndedAt, &report.Clarification)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.SessionReport{}, fmt.Errorf("session report '%s' not found", sessionID)
		}
		return schemas.SessionReport{}, fmt.Errorf("failed to load session report: %w", err)
	}

	report.Status = schemas.SessionStatus(status)
	if err := json.Unmarshal(history, &report.History); err != nil {
		return schemas.SessionReport{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	if len(finalSummary) > 0 {
		report.FinalSummary = &schemas.ObservationSummary{}
		if err := json.Unmarshal(finalSummary, report.FinalSummary); err != nil {
			return schemas.SessionReport{}, fmt.Errorf("failed to unmarshal final summary: %w", err)
		}
	}
	return report, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
