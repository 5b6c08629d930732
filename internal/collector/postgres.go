package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/carivox/voicerunner/internal/session"
)

// Schema is the SQL DDL for the collector tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS run_summaries (
    session_id       TEXT PRIMARY KEY,
    final_score      INTEGER NOT NULL DEFAULT 0,
    max_level        INTEGER NOT NULL DEFAULT 1,
    accuracy         DOUBLE PRECISION NOT NULL DEFAULT 0,
    best_combo       INTEGER NOT NULL DEFAULT 0,
    duration_seconds BIGINT NOT NULL DEFAULT 0,
    recorded_at      TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS attempt_recordings (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL,
    phrase_id       TEXT NOT NULL,
    phrase_category TEXT NOT NULL DEFAULT '',
    phrase_register TEXT NOT NULL DEFAULT '',
    outcome         TEXT NOT NULL DEFAULT '',
    metadata        JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS attempt_audio (
    session_id TEXT NOT NULL,
    filename   TEXT NOT NULL,
    data       BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, filename)
);
CREATE INDEX IF NOT EXISTS idx_attempt_recordings_session ON attempt_recordings(session_id);
CREATE INDEX IF NOT EXISTS idx_attempt_recordings_phrase ON attempt_recordings(phrase_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. The full
// attempt record is stored as JSONB with the breakdown keys mirrored into
// dedicated columns for cheap aggregation.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] that uses the given connection
// or pool. The caller is responsible for calling [PostgresStore.Migrate]
// before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("collector: migrate: %w", err)
	}
	return nil
}

// SaveAttempt inserts one attempt record. Duplicate IDs are rejected.
func (s *PostgresStore) SaveAttempt(ctx context.Context, rec session.AttemptRecord) error {
	if rec.ID == "" || rec.SessionID == "" {
		return fmt.Errorf("collector: attempt record missing id or session id")
	}
	metadata, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("collector: marshal attempt record: %w", err)
	}

	const query = `
		INSERT INTO attempt_recordings (
			id, session_id, phrase_id, phrase_category, phrase_register, outcome, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = s.db.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.PhraseID,
		string(rec.PhraseCategory), string(rec.PhraseRegister), string(rec.Outcome),
		metadata,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("collector: attempt record %q %w", rec.ID, ErrDuplicate)
		}
		return fmt.Errorf("collector: save attempt: %w", err)
	}
	return nil
}

// SaveAudio stores the blob in the attempt_audio table and returns a
// pg:// pseudo-path identifying the row.
func (s *PostgresStore) SaveAudio(ctx context.Context, sessionID, filename string, data []byte) (string, error) {
	const query = `
		INSERT INTO attempt_audio (session_id, filename, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (session_id, filename) DO UPDATE SET data = EXCLUDED.data`

	if _, err := s.db.Exec(ctx, query, sessionID, filename, data); err != nil {
		return "", fmt.Errorf("collector: save audio: %w", err)
	}
	return fmt.Sprintf("pg://attempt_audio/%s/%s", sessionID, filename), nil
}

// SaveSummary upserts the run summary for a session.
func (s *PostgresStore) SaveSummary(ctx context.Context, sum session.RunSummary) error {
	if sum.SessionID == "" {
		return fmt.Errorf("collector: run summary missing session id")
	}

	const query = `
		INSERT INTO run_summaries (
			session_id, final_score, max_level, accuracy, best_combo, duration_seconds, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id) DO UPDATE SET
			final_score = EXCLUDED.final_score,
			max_level = EXCLUDED.max_level,
			accuracy = EXCLUDED.accuracy,
			best_combo = EXCLUDED.best_combo,
			duration_seconds = EXCLUDED.duration_seconds,
			recorded_at = EXCLUDED.recorded_at`

	_, err := s.db.Exec(ctx, query,
		sum.SessionID, sum.Score, sum.MaxLevel, sum.Accuracy, sum.MaxCombo,
		sum.DurationSeconds, sum.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("collector: save summary: %w", err)
	}
	return nil
}

// Stats aggregates counts with GROUP BY queries over the mirrored columns.
func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	stats := newStats()

	err := s.db.QueryRow(ctx, `SELECT count(*) FROM run_summaries`).Scan(&stats.TotalSessions)
	if err != nil {
		return Stats{}, fmt.Errorf("collector: count sessions: %w", err)
	}
	err = s.db.QueryRow(ctx, `SELECT count(*) FROM attempt_recordings`).Scan(&stats.TotalRecordings)
	if err != nil {
		return Stats{}, fmt.Errorf("collector: count recordings: %w", err)
	}

	for col, dest := range map[string]map[string]int{
		"phrase_category": stats.PhraseBreakdown,
		"phrase_register": stats.RegisterBreakdown,
		"outcome":         stats.OutcomeBreakdown,
	} {
		if err := s.countBy(ctx, col, dest); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}

// Export reads every stored summary and recording.
func (s *PostgresStore) Export(ctx context.Context) (Export, error) {
	exp := Export{
		Sessions:   []session.RunSummary{},
		Recordings: []session.AttemptRecord{},
	}

	rows, err := s.db.Query(ctx, `
		SELECT session_id, final_score, max_level, accuracy, best_combo, duration_seconds, recorded_at
		FROM run_summaries ORDER BY recorded_at`)
	if err != nil {
		return Export{}, fmt.Errorf("collector: query sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sum session.RunSummary
		var recordedAt time.Time
		if err := rows.Scan(&sum.SessionID, &sum.Score, &sum.MaxLevel, &sum.Accuracy,
			&sum.MaxCombo, &sum.DurationSeconds, &recordedAt); err != nil {
			return Export{}, fmt.Errorf("collector: scan session: %w", err)
		}
		sum.Timestamp = recordedAt
		sum.Duration = time.Duration(sum.DurationSeconds) * time.Second
		exp.Sessions = append(exp.Sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return Export{}, fmt.Errorf("collector: iterate sessions: %w", err)
	}

	recRows, err := s.db.Query(ctx, `SELECT metadata FROM attempt_recordings ORDER BY created_at`)
	if err != nil {
		return Export{}, fmt.Errorf("collector: query recordings: %w", err)
	}
	defer recRows.Close()
	for recRows.Next() {
		var metadata []byte
		if err := recRows.Scan(&metadata); err != nil {
			return Export{}, fmt.Errorf("collector: scan recording: %w", err)
		}
		var rec session.AttemptRecord
		if err := json.Unmarshal(metadata, &rec); err != nil {
			return Export{}, fmt.Errorf("collector: decode recording: %w", err)
		}
		exp.Recordings = append(exp.Recordings, rec)
	}
	if err := recRows.Err(); err != nil {
		return Export{}, fmt.Errorf("collector: iterate recordings: %w", err)
	}
	return exp, nil
}

// Ping runs a trivial query to verify connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("collector: ping: %w", err)
	}
	return nil
}

// countBy runs a GROUP BY over col and fills dest with per-value counts.
func (s *PostgresStore) countBy(ctx context.Context, col string, dest map[string]int) error {
	rows, err := s.db.Query(ctx,
		fmt.Sprintf(`SELECT %s, count(*) FROM attempt_recordings GROUP BY %s`, col, col))
	if err != nil {
		return fmt.Errorf("collector: group by %s: %w", col, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("collector: scan %s count: %w", col, err)
		}
		dest[key] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("collector: iterate %s counts: %w", col, err)
	}
	return nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
