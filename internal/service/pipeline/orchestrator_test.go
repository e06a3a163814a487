package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/service/audio"
	"meeting-protocol-service/internal/service/diarize"
	sttmock "meeting-protocol-service/internal/service/stt/mock"
	"meeting-protocol-service/internal/store"
)

// convertingNormalizer writes a sibling WAV file like ffmpeg would.
type convertingNormalizer struct {
	err       error
	converted string
}

func (n *convertingNormalizer) Normalize(ctx context.Context, path string) (audio.Canonical, error) {
	if n.err != nil {
		return audio.Canonical{}, n.err
	}
	n.converted = path + ".16k.wav"
	if err := os.WriteFile(n.converted, []byte("RIFF"), 0o644); err != nil {
		return audio.Canonical{}, err
	}
	return audio.Canonical{Path: n.converted, Converted: true}, nil
}

type panickingTranscriber struct{}

func (panickingTranscriber) Transcribe(ctx context.Context, wavPath, modelSize string) (models.Transcription, error) {
	panic("index out of range")
}

// recordingStore records every status write and can fail completed writes.
type recordingStore struct {
	store.Store
	mu             sync.Mutex
	statuses       []models.Job
	failCompletion bool
}

func (s *recordingStore) SaveStatus(ctx context.Context, job models.Job) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, job)
	s.mu.Unlock()
	if s.failCompletion && job.Status == models.JobStatusCompleted {
		return errors.New("disk full")
	}
	return s.Store.SaveStatus(ctx, job)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.Job
}

func (e *recordingEvents) PublishStatus(ctx context.Context, job models.Job, segments int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, job)
	return nil
}

type fixture struct {
	orch       *Orchestrator
	store      *recordingStore
	events     *recordingEvents
	normalizer *convertingNormalizer
	diarizer   *diarize.Mock
	stt        *sttmock.Transcriber
	upload     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	upload := filepath.Join(t.TempDir(), "meeting.mp3")
	require.NoError(t, os.WriteFile(upload, []byte("ID3"), 0o644))

	f := &fixture{
		store:      &recordingStore{Store: fs},
		events:     &recordingEvents{},
		normalizer: &convertingNormalizer{},
		diarizer:   diarize.NewMock(),
		stt:        sttmock.New(),
		upload:     upload,
	}
	f.orch = f.build(f.stt)
	return f
}

func (f *fixture) build(tr interface {
	Transcribe(context.Context, string, string) (models.Transcription, error)
}) *Orchestrator {
	return New(Deps{
		Normalizer:  f.normalizer,
		Diarizer:    f.diarizer,
		Transcriber: tr,
		Store:       f.store,
		Events:      f.events,
		Metrics:     metrics.NewUnregistered(),
		Logger:      zerolog.Nop(),
	})
}

func (f *fixture) run(t *testing.T, jobID string) {
	t.Helper()
	f.orch.Run(context.Background(), models.Submission{JobID: jobID, AudioPath: f.upload, ModelSize: "base"})
}

func (f *fixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	_, err := os.Stat(f.upload)
	assert.True(t, errors.Is(err, os.ErrNotExist), "upload must be removed")
	if f.normalizer.converted != "" {
		_, err = os.Stat(f.normalizer.converted)
		assert.True(t, errors.Is(err, os.ErrNotExist), "converted audio must be removed")
	}
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)
	f.run(t, "job-ok")
	ctx := context.Background()

	status, err := f.store.GetStatus(ctx, "job-ok")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, MessageCompleted, status.Message)

	result, err := f.store.GetResult(ctx, "job-ok")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Nil(t, result.Summary)
	assert.True(t, result.WordTimestamps)
	require.Len(t, result.Protocol, 2)
	assert.Equal(t, "SPEAKER_00", result.Protocol[0].Speaker)
	assert.Equal(t, "Good morning everyone. Let's start with the budget.", result.Protocol[0].Transcript)
	assert.Equal(t, "Thanks, I have the numbers here.", result.Protocol[1].Transcript)

	f.assertCleanedUp(t)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.JobStatusCompleted, f.events.events[0].Status)
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	f := newFixture(t)
	f.run(t, "job-progress")

	var progress []int
	for _, s := range f.store.statuses {
		progress = append(progress, s.Progress)
		assert.False(t, s.UpdatedAt.IsZero())
		assert.Equal(t, f.store.statuses[0].CreatedAt, s.CreatedAt)
	}
	assert.Equal(t, []int{10, 30, 60, 90, 100}, progress)
	for _, s := range f.store.statuses[:4] {
		assert.Equal(t, models.JobStatusProcessing, s.Status)
	}
}

func TestRun_PreservesCreatedAt(t *testing.T) {
	f := newFixture(t)
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	initial := models.Job{JobID: "job-created", Status: models.JobStatusProcessing, Message: "Upload successful", CreatedAt: created, UpdatedAt: created}
	require.NoError(t, f.store.Store.SaveStatus(context.Background(), initial))

	f.run(t, "job-created")

	status, err := f.store.GetStatus(context.Background(), "job-created")
	require.NoError(t, err)
	assert.True(t, status.CreatedAt.Equal(initial.CreatedAt))
}

func TestRun_StageFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		prefix string
	}{
		{
			name:   "conversion",
			setup:  func(f *fixture) { f.normalizer.err = models.ConversionError(errors.New("invalid data")) },
			prefix: "Processing failed: conversion: invalid data",
		},
		{
			name:   "diarization",
			setup:  func(f *fixture) { f.diarizer.Err = errors.New("HUGGINGFACE_API_KEY is not set") },
			prefix: "Processing failed: diarization: HUGGINGFACE_API_KEY",
		},
		{
			name:   "transcription",
			setup:  func(f *fixture) { f.stt.Err = errors.New("model crashed") },
			prefix: "Processing failed: transcription: model crashed",
		},
		{
			name: "alignment",
			setup: func(f *fixture) {
				f.diarizer.Turns = []models.SpeakerTurn{{Speaker: "SPEAKER_00", Start: 2, End: 1}}
			},
			prefix: "Processing failed: alignment:",
		},
		{
			name:   "unwrapped collaborator error",
			setup:  func(f *fixture) { f.normalizer.err = errors.New("plain") },
			prefix: "Processing failed: conversion: plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			f.run(t, "job-fail")
			ctx := context.Background()

			status, err := f.store.GetStatus(ctx, "job-fail")
			require.NoError(t, err)
			assert.Equal(t, models.JobStatusFailed, status.Status)
			assert.True(t, strings.HasPrefix(status.Message, tt.prefix), "message %q", status.Message)
			assert.Less(t, status.Progress, 100)

			_, err = f.store.GetResult(ctx, "job-fail")
			assert.ErrorIs(t, err, models.ErrNotFound)

			f.assertCleanedUp(t)
			require.Len(t, f.events.events, 1)
			assert.Equal(t, models.JobStatusFailed, f.events.events[0].Status)
		})
	}
}

func TestRun_StageFailureLogsStage(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	f := newFixture(t)
	f.diarizer.Err = errors.New("token rejected")
	f.run(t, "job-stage-log")

	out := buf.String()
	assert.Contains(t, out, `"stage":"diarization"`)
	assert.Contains(t, out, `"jobId":"job-stage-log"`)
	assert.Contains(t, out, "Stage failed")
	assert.NotContains(t, out, `"stage":"transcription"`)
}

func TestRun_PanicIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.orch = f.build(panickingTranscriber{})
	f.run(t, "job-panic")

	status, err := f.store.GetStatus(context.Background(), "job-panic")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status.Status)
	assert.Contains(t, status.Message, "panic: index out of range")
	f.assertCleanedUp(t)
}

func TestRun_WholeTextFallback(t *testing.T) {
	f := newFixture(t)
	f.stt.WholeText = true
	f.run(t, "job-text")

	result, err := f.store.GetResult(context.Background(), "job-text")
	require.NoError(t, err)
	assert.False(t, result.WordTimestamps)
	require.Len(t, result.Protocol, 2)
	assert.NotEmpty(t, result.Protocol[0].Transcript)
	assert.Empty(t, result.Protocol[1].Transcript)
}

func TestRun_CompletedStatusWriteFailureRemovesResult(t *testing.T) {
	f := newFixture(t)
	f.store.failCompletion = true
	f.run(t, "job-disk")
	ctx := context.Background()

	_, err := f.store.GetResult(ctx, "job-disk")
	assert.ErrorIs(t, err, models.ErrNotFound)

	status, err := f.store.GetStatus(ctx, "job-disk")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, status.Status)
	assert.Contains(t, status.Message, "persistence: save status: disk full")
}

func TestRun_ConcurrentJobsAreIndependent(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	orch := New(Deps{
		Normalizer:  audio.NewFFmpegNormalizer(nil, audio.Config{}, zerolog.Nop()),
		Diarizer:    diarize.NewMock(),
		Transcriber: sttmock.New(),
		Store:       fs,
		Metrics:     metrics.NewUnregistered(),
		Logger:      zerolog.Nop(),
	})

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := "job-" + string(rune('a'+i))
		path := filepath.Join(dir, id+".wav")
		require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
		wg.Add(1)
		go func() {
			defer wg.Done()
			orch.Run(context.Background(), models.Submission{JobID: id, AudioPath: path, ModelSize: "base"})
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		id := "job-" + string(rune('a'+i))
		status, err := fs.GetStatus(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, status.Status, id)
	}
}
