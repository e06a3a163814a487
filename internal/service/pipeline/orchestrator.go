// Package pipeline runs one job from uploaded audio to a persisted
// speaker-attributed protocol.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/logging"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/schema"
	"meeting-protocol-service/internal/service/alignment"
	"meeting-protocol-service/internal/service/audio"
	"meeting-protocol-service/internal/service/diarize"
	"meeting-protocol-service/internal/service/job"
	"meeting-protocol-service/internal/service/stt"
	"meeting-protocol-service/internal/store"
)

// Status messages written while a job runs.
const (
	MessageConverting    = "Converting audio"
	MessageDiarizing     = "Identifying speakers"
	MessageTranscribing  = "Transcribing audio"
	MessageAligning      = "Aligning speakers and words"
	MessageCompleted     = "Processing completed"
	messageFailedPrefix  = "Processing failed: "
	stageInternal        = "internal"
	defaultStatusTimeout = 10 * time.Second
)

// StatusPublisher receives every terminal job transition.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, job models.Job, segments int) error
}

// Deps are the collaborators of an Orchestrator. Events and Metrics are
// optional.
type Deps struct {
	Normalizer  audio.Normalizer
	Diarizer    diarize.Diarizer
	Transcriber stt.Transcriber
	Store       store.Store
	Events      StatusPublisher
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

// Orchestrator sequences conversion, diarization, transcription, alignment
// and persistence for a single job. It is safe to run many jobs
// concurrently; each Run owns its job exclusively.
type Orchestrator struct {
	normalizer  audio.Normalizer
	diarizer    diarize.Diarizer
	transcriber stt.Transcriber
	store       store.Store
	events      StatusPublisher
	metrics     *metrics.Metrics
	validator   *schema.Validator
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	m := d.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Orchestrator{
		normalizer:  d.Normalizer,
		diarizer:    d.Diarizer,
		transcriber: d.Transcriber,
		store:       d.Store,
		events:      d.Events,
		metrics:     m,
		validator:   schema.New(),
		logger:      d.Logger.With().Str("component", "pipeline").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// run carries the per-job state through the stages.
type run struct {
	sub       models.Submission
	lc        *job.Lifecycle
	createdAt time.Time
	logger    zerolog.Logger
	canonical audio.Canonical
}

// Run processes one submission. It never returns an error: every outcome
// is recorded in the store as a completed or failed status. The uploaded
// file and any converted audio are removed before Run returns.
func (o *Orchestrator) Run(ctx context.Context, sub models.Submission) {
	r := &run{
		sub:       sub,
		lc:        job.NewLifecycle(sub.JobID),
		createdAt: o.now(),
		logger:    o.logger.With().Str("jobId", sub.JobID).Logger(),
	}
	if prev, err := o.store.GetStatus(ctx, sub.JobID); err == nil && !prev.CreatedAt.IsZero() {
		r.createdAt = prev.CreatedAt
	}

	start := time.Now()
	o.metrics.RecordJobStart()
	r.logger.Info().Str("modelSize", sub.ModelSize).Msg("Pipeline started")

	defer o.cleanup(r)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Msg("Pipeline panicked")
			o.fail(ctx, r, start, fmt.Errorf("%s: panic: %v", stageInternal, p))
		}
	}()

	segments, err := o.process(ctx, r)
	if err != nil {
		o.fail(ctx, r, start, err)
		return
	}
	o.complete(ctx, r, start, segments)
}

// process runs stages 1-5 and returns the number of protocol segments.
func (o *Orchestrator) process(ctx context.Context, r *run) (int, error) {
	o.advance(ctx, r, 10, MessageConverting)
	canonical, err := timed(o, r, models.StageConversion, func() (audio.Canonical, error) {
		return o.normalizer.Normalize(ctx, r.sub.AudioPath)
	})
	if err != nil {
		return 0, asStage(models.StageConversion, err)
	}
	r.canonical = canonical

	o.advance(ctx, r, 30, MessageDiarizing)
	turns, err := timed(o, r, models.StageDiarization, func() ([]models.SpeakerTurn, error) {
		return o.diarizer.Diarize(ctx, canonical.Path)
	})
	if err != nil {
		return 0, asStage(models.StageDiarization, err)
	}

	o.advance(ctx, r, 60, MessageTranscribing)
	tr, err := timed(o, r, models.StageTranscription, func() (models.Transcription, error) {
		return o.transcriber.Transcribe(ctx, canonical.Path, r.sub.ModelSize)
	})
	if err != nil {
		return 0, asStage(models.StageTranscription, err)
	}

	o.advance(ctx, r, 90, MessageAligning)
	protocol := alignment.Combine(turns, tr)
	if err := o.validator.ValidateProtocol(protocol); err != nil {
		return 0, models.AlignmentError(err)
	}
	if !tr.HasWordTimestamps() {
		r.logger.Warn().Int("turns", len(turns)).Msg("No word timestamps, whole transcript assigned to the first speaker")
	}

	result := models.JobResult{
		JobID:          r.sub.JobID,
		Status:         models.JobStatusCompleted,
		Protocol:       protocol,
		WordTimestamps: tr.HasWordTimestamps(),
	}
	if err := o.store.SaveResult(ctx, result); err != nil {
		return 0, &models.StageError{Stage: models.StagePersistence, Err: fmt.Errorf("save result: %w", err)}
	}

	return len(protocol), nil
}

// complete writes the completed status. If that write fails the result is
// removed again so no completed protocol exists without its status.
func (o *Orchestrator) complete(ctx context.Context, r *run, start time.Time, segments int) {
	rec := r.lc.Snapshot()
	rec.Status = models.JobStatusCompleted
	rec.Progress = 100
	rec.Message = MessageCompleted
	if err := o.saveStatus(ctx, r, rec); err != nil {
		if derr := o.store.DeleteResult(ctx, r.sub.JobID); derr != nil {
			r.logger.Error().Err(derr).Msg("Failed to remove result after status write failure")
		}
		o.fail(ctx, r, start, &models.StageError{Stage: models.StagePersistence, Err: fmt.Errorf("save status: %w", err)})
		return
	}
	if err := r.lc.Complete(MessageCompleted); err != nil {
		r.logger.Error().Err(err).Msg("Lifecycle rejected completion")
		return
	}

	o.metrics.RecordJobEnd("", time.Since(start).Seconds())
	o.metrics.RecordProtocol(segments)
	o.publish(ctx, r, segments)

	r.logger.Info().
		Int("segments", segments).
		Dur("duration", time.Since(start)).
		Msg("Pipeline completed")
}

// fail records the single failed transition of a job. Later calls are
// ignored by the lifecycle.
func (o *Orchestrator) fail(ctx context.Context, r *run, start time.Time, cause error) {
	if err := r.lc.Fail(messageFailedPrefix + cause.Error()); err != nil {
		r.logger.Warn().Err(cause).Msg("Ignoring failure after terminal state")
		return
	}

	stage := stageInternal
	var se *models.StageError
	if errors.As(cause, &se) {
		stage = string(se.Stage)
	}

	// Best effort: a persistence failure may also prevent these writes.
	if err := o.store.DeleteResult(ctx, r.sub.JobID); err != nil {
		r.logger.Error().Err(err).Msg("Failed to remove partial result")
	}
	if err := o.saveStatus(ctx, r, r.lc.Snapshot()); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist failed status")
	}

	o.metrics.RecordJobEnd(stage, time.Since(start).Seconds())
	o.publish(ctx, r, 0)

	r.logger.Error().
		Err(cause).
		Str("stage", stage).
		Dur("duration", time.Since(start)).
		Msg("Pipeline failed")
}

// advance writes an advisory progress record. Write failures are logged
// and do not stop the job.
func (o *Orchestrator) advance(ctx context.Context, r *run, progress int, message string) {
	if err := r.lc.Advance(progress, message); err != nil {
		r.logger.Warn().Err(err).Int("progress", progress).Msg("Progress update rejected")
		return
	}
	if err := o.saveStatus(ctx, r, r.lc.Snapshot()); err != nil {
		r.logger.Warn().Err(err).Int("progress", progress).Msg("Failed to persist progress")
	}
	r.logger.Debug().Int("progress", progress).Str("message", message).Msg("Progress")
}

func (o *Orchestrator) saveStatus(ctx context.Context, r *run, rec models.Job) error {
	rec.CreatedAt = r.createdAt
	rec.UpdatedAt = o.now()
	// Status writes survive a cancelled job context so the terminal
	// record always lands.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultStatusTimeout)
	defer cancel()
	return o.store.SaveStatus(wctx, rec)
}

func (o *Orchestrator) publish(ctx context.Context, r *run, segments int) {
	if o.events == nil {
		return
	}
	rec := r.lc.Snapshot()
	rec.CreatedAt = r.createdAt
	if err := o.events.PublishStatus(context.WithoutCancel(ctx), rec, segments); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to publish job status event")
	}
}

// cleanup removes the upload and the converted audio.
func (o *Orchestrator) cleanup(r *run) {
	if err := r.canonical.Cleanup(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to remove converted audio")
	}
	if r.sub.AudioPath == "" {
		return
	}
	if err := os.Remove(r.sub.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn().Err(err).Str("path", r.sub.AudioPath).Msg("Failed to remove upload")
	}
}

// timed runs one stage, records its latency and logs the outcome.
func timed[T any](o *Orchestrator, r *run, stage models.Stage, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	elapsed := time.Since(start)
	o.metrics.RecordStage(string(stage), elapsed.Seconds())

	stageLogger := logging.WithStage(r.sub.JobID, string(stage))
	if err != nil {
		stageLogger.Warn().Err(err).Dur("duration", elapsed).Msg("Stage failed")
	} else {
		stageLogger.Debug().Dur("duration", elapsed).Msg("Stage finished")
	}
	return v, err
}

// asStage keeps collaborator StageErrors and wraps anything else so the
// failure message always names the stage.
func asStage(stage models.Stage, err error) error {
	var se *models.StageError
	if errors.As(err, &se) {
		return err
	}
	return &models.StageError{Stage: stage, Err: err}
}
