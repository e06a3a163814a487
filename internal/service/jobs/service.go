// Package jobs is the application service behind the HTTP API: it accepts
// uploads, answers status and result queries and runs summarization for
// completed jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/logging"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/service/job"
	"meeting-protocol-service/internal/service/stt"
	"meeting-protocol-service/internal/service/summarize"
	"meeting-protocol-service/internal/service/worker"
	"meeting-protocol-service/internal/store"
)

// Errors returned to the serving layer.
var (
	ErrNotFound          = models.ErrNotFound
	ErrNotCompleted      = errors.New("job not completed")
	ErrResultUnavailable = errors.New("results not available")
	ErrInvalidModelSize  = errors.New("invalid model size")
	ErrEmptyUpload       = errors.New("uploaded file is empty")
	ErrUploadTooLarge    = errors.New("uploaded file is too large")
	ErrQueueFull         = worker.ErrQueueFull
)

// Status messages written by the service itself.
const (
	MessageUploaded = "Upload successful"
	messageRejected = "Processing failed: "
)

// Queue accepts work for asynchronous processing.
type Queue interface {
	Submit(sub models.Submission) error
}

// Summarizer produces a summary for a protocol.
type Summarizer interface {
	Summarize(ctx context.Context, protocol []models.TranscriptSegment, backendID string, opts summarize.Options) (string, error)
}

// Events receives job events. Publishing failures never fail a request.
type Events interface {
	PublishStatus(ctx context.Context, job models.Job, segments int) error
	PublishSummary(ctx context.Context, jobID, backend, summary string) error
}

// Config holds service settings.
type Config struct {
	// WorkDir receives uploads until their job finishes.
	WorkDir          string
	MaxUploadBytes   int64
	DefaultModelSize string
}

// Deps are the collaborators of a Service. Events and Metrics are optional.
type Deps struct {
	Store      store.Store
	Queue      Queue
	Summarizer Summarizer
	Events     Events
	Metrics    *metrics.Metrics
}

// Service implements the job operations.
type Service struct {
	cfg        Config
	store      store.Store
	queue      Queue
	summarizer Summarizer
	events     Events
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a Service.
func New(cfg Config, d Deps) *Service {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.DefaultModelSize == "" {
		cfg.DefaultModelSize = stt.DefaultModelSize
	}
	m := d.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Service{
		cfg:        cfg,
		store:      d.Store,
		queue:      d.Queue,
		summarizer: d.Summarizer,
		events:     d.Events,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue wires the queue after construction, for queues whose drop hook
// needs the service.
func (s *Service) SetQueue(q Queue) {
	s.queue = q
}

// Submit stores the upload, records the job as processing and queues it.
// It returns as soon as the job is queued.
func (s *Service) Submit(ctx context.Context, audio io.Reader, filename, modelSize string) (string, error) {
	if modelSize == "" {
		modelSize = s.cfg.DefaultModelSize
	}
	if !stt.ValidModelSize(modelSize) {
		s.metrics.RecordJobRejected("model_size")
		return "", fmt.Errorf("%w: %q", ErrInvalidModelSize, modelSize)
	}

	jobID := job.NewID()
	logger := logging.WithJob(jobID)

	path := filepath.Join(s.cfg.WorkDir, jobID+uploadExt(filename))
	size, err := s.saveUpload(path, audio)
	if err != nil {
		s.metrics.RecordJobRejected("upload")
		return "", err
	}

	now := s.now()
	initial := models.Job{
		JobID:     jobID,
		Status:    models.JobStatusProcessing,
		Progress:  0,
		Message:   MessageUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveStatus(ctx, initial); err != nil {
		os.Remove(path)
		s.metrics.RecordJobRejected("store")
		return "", fmt.Errorf("save initial status: %w", err)
	}

	sub := models.Submission{JobID: jobID, AudioPath: path, ModelSize: modelSize}
	// Counted as queued before handing off so a fast worker cannot decrement first.
	s.metrics.RecordJobQueued()
	if err := s.queue.Submit(sub); err != nil {
		s.metrics.JobsQueued.Dec()
		os.Remove(path)
		s.metrics.RecordJobRejected("queue")
		s.markFailed(ctx, initial, err)
		logger.Warn().Err(err).Msg("Job rejected by queue")
		return jobID, err
	}

	s.metrics.RecordJobSubmitted(size)
	s.publishStatus(ctx, initial)

	logger.Info().
		Str("filename", filepath.Base(filename)).
		Str("modelSize", modelSize).
		Int64("bytes", size).
		Msg("Job submitted")

	return jobID, nil
}

// Dropped marks a queued job failed when the queue shuts down before the
// job ran. It is the worker queue's drop hook.
func (s *Service) Dropped(sub models.Submission) {
	ctx := context.Background()
	rec, err := s.store.GetStatus(ctx, sub.JobID)
	if err != nil {
		rec = models.Job{JobID: sub.JobID, CreatedAt: s.now()}
	}
	s.metrics.JobsQueued.Dec()
	s.markFailed(ctx, rec, errors.New("service shutting down"))
	if err := os.Remove(sub.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger := logging.WithJob(sub.JobID)
		logger.Warn().Err(err).Msg("Failed to remove upload of dropped job")
	}
}

// Status returns the latest status record.
func (s *Service) Status(ctx context.Context, jobID string) (models.Job, error) {
	if !job.ValidID(jobID) {
		return models.Job{}, ErrNotFound
	}
	return s.store.GetStatus(ctx, jobID)
}

// Result returns the result of a completed job.
func (s *Service) Result(ctx context.Context, jobID string) (models.JobResult, error) {
	st, err := s.Status(ctx, jobID)
	if err != nil {
		return models.JobResult{}, err
	}
	if st.Status != models.JobStatusCompleted {
		return models.JobResult{}, ErrNotCompleted
	}
	res, err := s.store.GetResult(ctx, jobID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.JobResult{}, ErrResultUnavailable
		}
		return models.JobResult{}, err
	}
	return res, nil
}

// Summarize generates a summary for a completed job and stores it on the
// result. The job's status is never changed. Concurrent calls for one job
// are last-write-wins.
func (s *Service) Summarize(ctx context.Context, jobID, backendID string, opts summarize.Options) (string, error) {
	res, err := s.Result(ctx, jobID)
	if err != nil {
		return "", err
	}
	if len(res.Protocol) == 0 {
		return "", ErrResultUnavailable
	}

	backend := backendID
	if backendID == summarize.APIOllama || opts.URL != "" {
		backend = summarize.APIOllama
	}
	logger := logging.WithBackend(jobID, backend, backendID)

	summary, err := s.summarizer.Summarize(ctx, res.Protocol, backendID, opts)
	if err != nil {
		logger.Warn().Err(err).Msg("Summary generation failed")
		return "", err
	}

	res.Summary = &summary
	res.SummaryBackend = backend
	if err := s.store.SaveResult(ctx, res); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishSummary(ctx, jobID, backend, summary); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish summary event")
		}
	}
	logger.Info().Int("summaryChars", len(summary)).Msg("Summary stored")
	return summary, nil
}

// Ping reports whether the store is usable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) saveUpload(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	src := r
	if s.cfg.MaxUploadBytes > 0 {
		src = io.LimitReader(r, s.cfg.MaxUploadBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		os.Remove(path)
		return 0, fmt.Errorf("write upload: %w", err)
	case n == 0:
		os.Remove(path)
		return 0, ErrEmptyUpload
	case s.cfg.MaxUploadBytes > 0 && n > s.cfg.MaxUploadBytes:
		os.Remove(path)
		return 0, ErrUploadTooLarge
	}
	return n, nil
}

func (s *Service) markFailed(ctx context.Context, rec models.Job, cause error) {
	rec.Status = models.JobStatusFailed
	rec.Message = messageRejected + cause.Error()
	rec.UpdatedAt = s.now()
	if err := s.store.SaveStatus(context.WithoutCancel(ctx), rec); err != nil {
		logger := logging.WithJob(rec.JobID)
		logger.Error().Err(err).Msg("Failed to persist failed status")
	}
	s.publishStatus(ctx, rec)
}

func (s *Service) publishStatus(ctx context.Context, rec models.Job) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStatus(context.WithoutCancel(ctx), rec, 0); err != nil {
		logger := logging.WithJob(rec.JobID)
		logger.Warn().Err(err).Msg("Failed to publish job status event")
	}
}

// uploadExt keeps a short alphanumeric extension so the normalizer can
// recognise WAV input.
func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
