// Package store persists job status and result records keyed by job id.
//
// Every write replaces a whole record atomically, so concurrent readers see
// either the previous record or the new one. Records that cannot be read or
// decoded are reported as models.ErrNotFound.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
)

// Store is the durable job state store.
type Store interface {
	SaveStatus(ctx context.Context, job models.Job) error
	GetStatus(ctx context.Context, jobID string) (models.Job, error)
	SaveResult(ctx context.Context, result models.JobResult) error
	GetResult(ctx context.Context, jobID string) (models.JobResult, error)
	DeleteResult(ctx context.Context, jobID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Supported backends.
const (
	BackendFile   = "file"
	BackendDuckDB = "duckdb"
)

// Open creates the store for the named backend. For the file backend path is
// a directory, for duckdb a database file.
func Open(backend, path string, logger zerolog.Logger) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileStore(path, logger)
	case BackendDuckDB:
		return NewDuckDBStore(path, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", backend)
	}
}

// checkKey rejects identifiers that cannot safely be used as record keys.
func checkKey(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("empty job id")
	}
	if strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return fmt.Errorf("invalid job id %q", jobID)
	}
	return nil
}
