// Package database records generation runs, their candidates and their
// warning events in PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
	"github.com/CodeMonkeyCybersecurity/x9/internal/logger"
	"github.com/CodeMonkeyCybersecurity/x9/pkg/mutation"
)

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db     *sqlx.DB
	cfg    config.DatabaseConfig
	logger *logger.Logger
}

// NewStore connects, configures the pool and applies pending migrations.
func NewStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (s *Store, err error) {
	log = log.WithComponent("database")
	start := time.Now()
	ctx, span := log.StartOperation(ctx, "database.NewStore",
		"driver", cfg.Driver,
		"dsn_masked", maskDSN(cfg.DSN),
	)
	defer func() {
		log.FinishOperation(ctx, span, "database.NewStore", start, err)
	}()

	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = NewMigrationRunner(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, cfg: cfg, logger: log}, nil
}

// Open connects and applies the pool settings without touching the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.ConnectContext(ctx, driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", maskDSN(cfg.DSN), err)
	}

	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxConnections)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		if len(dsn) > 10 {
			return dsn[:5] + "***"
		}
		return "***"
	}
	if u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateRun inserts run with status running. An empty ID is filled in.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO runs (
			id, status, mode, value_strategy, chunk_size,
			url_count, word_count, payload_count, created_at
		) VALUES (
			:id, :status, :mode, :value_strategy, :chunk_size,
			:url_count, :word_count, :payload_count, :created_at
		)
	`

	start := time.Now()
	result, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		s.logger.LogError(ctx, err, "database.CreateRun", "run_id", run.ID)
		return fmt.Errorf("failed to create run: %w", err)
	}
	rows, _ := result.RowsAffected()
	s.logger.LogDatabaseOperation(ctx, "INSERT", "runs", rows, time.Since(start), "run_id", run.ID)
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, res RunResult) error {
	var msg sql.NullString
	if res.Err != nil {
		msg = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = $2,
			candidate_count = $3,
			failed_count = $4,
			error_message = $5,
			completed_at = $6
		WHERE id = $1
	`, id, res.Status, res.Candidates, res.Failed, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotFound
	}
	s.logger.LogDatabaseOperation(ctx, "UPDATE", "runs", rows, time.Since(start),
		"run_id", id,
		"status", string(res.Status),
	)
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT * FROM runs WHERE 1=1`
	args := map[string]interface{}{}

	if filter.Status != "" {
		query += " AND status = :status"
		args["status"] = filter.Status
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		var run Run
		if err := rows.StructScan(&run); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// SaveCandidates stores a batch in one transaction. firstSeq numbers the
// first candidate; the rest follow in order.
func (s *Store) SaveCandidates(ctx context.Context, runID string, firstSeq int, candidates []mutation.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO candidates (run_id, seq, url, base, origin, payload, params, created_at)
		VALUES (:run_id, :seq, :url, :base, :origin, :payload, :params, :created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, c := range candidates {
		params, err := json.Marshal(c.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		rec := CandidateRecord{
			RunID:     runID,
			Seq:       firstSeq + i,
			URL:       c.URL,
			Base:      c.Base,
			Origin:    string(c.Origin),
			Payload:   c.Payload,
			Params:    string(params),
			CreatedAt: now,
		}
		if _, err := stmt.ExecContext(ctx, rec); err != nil {
			return fmt.Errorf("failed to insert candidate %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidates: %w", err)
	}
	s.logger.LogDatabaseOperation(ctx, "INSERT", "candidates", int64(len(candidates)), time.Since(start),
		"run_id", runID,
	)
	return nil
}

// GetCandidates returns a run's candidates in emission order. A limit of
// zero returns all of them.
func (s *Store) GetCandidates(ctx context.Context, runID string, limit int) ([]CandidateRecord, error) {
	query := `SELECT run_id, seq, url, base, origin, payload, params::text AS params, created_at
		FROM candidates WHERE run_id = $1 ORDER BY seq`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	records := []CandidateRecord{}
	if err := s.db.SelectContext(ctx, &records, query, runID); err != nil {
		return nil, fmt.Errorf("failed to get candidates: %w", err)
	}
	return records, nil
}

// SaveRunEvent stores a warning or error raised during a run.
// It satisfies logger.EventStore.
func (s *Store) SaveRunEvent(ctx context.Context, runID, level, component, message string, metadata map[string]interface{}) error {
	data, err := json.Marshal(sanitizeMetadata(metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (id, run_id, level, component, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New().String(), runID, level, component, message, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save run event: %w", err)
	}
	return nil
}

func (s *Store) GetRunEvents(ctx context.Context, runID string) ([]RunEvent, error) {
	events := []RunEvent{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, run_id, level, component, message, COALESCE(metadata::text, '{}') AS metadata, created_at
		FROM run_events WHERE run_id = $1 ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

// sanitizeMetadata keeps JSON-friendly values and renders the rest with
// fmt, so errors and durations survive marshalling.
func sanitizeMetadata(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil, string, bool, int, int32, int64, float32, float64:
			out[k] = val
		case error:
			out[k] = val.Error()
		case fmt.Stringer:
			out[k] = val.String()
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}
