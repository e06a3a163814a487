package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

const duckdbSchema = `
CREATE TABLE IF NOT EXISTS job_status (
	job_id     VARCHAR PRIMARY KEY,
	doc        VARCHAR NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS job_results (
	job_id     VARCHAR PRIMARY KEY,
	doc        VARCHAR NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// DuckDBStore keeps status and result documents in two keyed tables. Each
// write is a single INSERT OR REPLACE statement.
type DuckDBStore struct {
	// serializes writers; concurrent upserts into one table can abort
	// with a transaction conflict
	writeMu sync.Mutex
	db      *sql.DB
	logger  zerolog.Logger
}

var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database.
func NewDuckDBStore(path string, logger zerolog.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if _, err := db.Exec(duckdbSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DuckDBStore{
		db:     db,
		logger: logger.With().Str("component", "store").Str("backend", BackendDuckDB).Logger(),
	}, nil
}

// SaveStatus replaces the status document of job.JobID.
func (s *DuckDBStore) SaveStatus(ctx context.Context, job models.Job) error {
	if err := checkKey(job.JobID); err != nil {
		return err
	}
	return s.upsert(ctx, "job_status", job.JobID, job)
}

// GetStatus reads the status document of jobID.
func (s *DuckDBStore) GetStatus(ctx context.Context, jobID string) (models.Job, error) {
	var job models.Job
	if err := s.get(ctx, "job_status", jobID, &job); err != nil {
		return models.Job{}, err
	}
	return job, nil
}

// SaveResult replaces the result document of result.JobID.
func (s *DuckDBStore) SaveResult(ctx context.Context, result models.JobResult) error {
	if err := checkKey(result.JobID); err != nil {
		return err
	}
	return s.upsert(ctx, "job_results", result.JobID, result)
}

// GetResult reads the result document of jobID.
func (s *DuckDBStore) GetResult(ctx context.Context, jobID string) (models.JobResult, error) {
	var result models.JobResult
	if err := s.get(ctx, "job_results", jobID, &result); err != nil {
		return models.JobResult{}, err
	}
	return result, nil
}

// DeleteResult removes the result document of jobID.
func (s *DuckDBStore) DeleteResult(ctx context.Context, jobID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_results WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

// upsert is only called with the two table names above.
func (s *DuckDBStore) upsert(ctx context.Context, table, jobID string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (job_id, doc, updated_at) VALUES (?, ?, ?)`, table)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, jobID, string(doc), time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("table", table).Str("jobId", jobID).Msg("Failed to write record")
		return fmt.Errorf("write %s: %w", table, err)
	}
	return nil
}

func (s *DuckDBStore) get(ctx context.Context, table, jobID string, v any) error {
	var doc string
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE job_id = ?`, table)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("table", table).Str("jobId", jobID).Msg("Error reading record")
		return models.ErrNotFound
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		s.logger.Warn().Err(err).Str("table", table).Str("jobId", jobID).Msg("Corrupt record treated as missing")
		return models.ErrNotFound
	}
	return nil
}
