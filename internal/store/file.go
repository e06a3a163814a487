package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

// FileStore keeps one status file and one result file per job in a
// directory. Files are replaced with write-to-temp, fsync and rename.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		dir = "job_data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "store").Str("backend", BackendFile).Logger(),
	}, nil
}

func (s *FileStore) statusPath(jobID string) string {
	return filepath.Join(s.dir, jobID+"_status.json")
}

func (s *FileStore) resultPath(jobID string) string {
	return filepath.Join(s.dir, jobID+"_results.json")
}

// SaveStatus replaces the status record of job.JobID.
func (s *FileStore) SaveStatus(ctx context.Context, job models.Job) error {
	if err := checkKey(job.JobID); err != nil {
		return err
	}
	return s.write(s.statusPath(job.JobID), job)
}

// GetStatus reads the status record of jobID.
func (s *FileStore) GetStatus(ctx context.Context, jobID string) (models.Job, error) {
	var job models.Job
	if err := checkKey(jobID); err != nil {
		return job, models.ErrNotFound
	}
	if err := s.read(s.statusPath(jobID), &job); err != nil {
		return models.Job{}, err
	}
	if job.JobID != jobID {
		s.logger.Warn().Str("jobId", jobID).Str("recordJobId", job.JobID).Msg("Status record does not match its key")
		return models.Job{}, models.ErrNotFound
	}
	return job, nil
}

// SaveResult replaces the result record of result.JobID.
func (s *FileStore) SaveResult(ctx context.Context, result models.JobResult) error {
	if err := checkKey(result.JobID); err != nil {
		return err
	}
	return s.write(s.resultPath(result.JobID), result)
}

// GetResult reads the result record of jobID.
func (s *FileStore) GetResult(ctx context.Context, jobID string) (models.JobResult, error) {
	var result models.JobResult
	if err := checkKey(jobID); err != nil {
		return result, models.ErrNotFound
	}
	if err := s.read(s.resultPath(jobID), &result); err != nil {
		return models.JobResult{}, err
	}
	if result.JobID != jobID {
		s.logger.Warn().Str("jobId", jobID).Str("recordJobId", result.JobID).Msg("Result record does not match its key")
		return models.JobResult{}, models.ErrNotFound
	}
	return result, nil
}

// DeleteResult removes the result record. Missing records are not an error.
func (s *FileStore) DeleteResult(ctx context.Context, jobID string) error {
	if err := checkKey(jobID); err != nil {
		return err
	}
	if err := os.Remove(s.resultPath(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove result: %w", err)
	}
	return nil
}

// Ping checks that the directory is still accessible.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) write(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("Failed to write record")
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (s *FileStore) read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", path).Msg("Error reading record")
		}
		return models.ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Corrupt record treated as missing")
		return models.ErrNotFound
	}
	return nil
}
