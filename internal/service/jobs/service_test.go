package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-protocol-service/internal/models"
	"meeting-protocol-service/internal/observability/metrics"
	"meeting-protocol-service/internal/service/summarize"
	"meeting-protocol-service/internal/service/worker"
	"meeting-protocol-service/internal/store"
)

type fakeQueue struct {
	mu   sync.Mutex
	subs []models.Submission
	err  error
}

func (q *fakeQueue) Submit(sub models.Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.subs = append(q.subs, sub)
	return nil
}

type fakeSummarizer struct {
	summary string
	err     error
	calls   int
	backend string
	opts    summarize.Options
}

func (f *fakeSummarizer) Summarize(ctx context.Context, protocol []models.TranscriptSegment, backendID string, opts summarize.Options) (string, error) {
	f.calls++
	f.backend = backendID
	f.opts = opts
	return f.summary, f.err
}

type fakeEvents struct {
	mu        sync.Mutex
	statuses  []models.Job
	summaries []string
}

func (e *fakeEvents) PublishStatus(ctx context.Context, job models.Job, segments int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, job)
	return nil
}

func (e *fakeEvents) PublishSummary(ctx context.Context, jobID, backend, summary string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summaries = append(e.summaries, backend+":"+summary)
	return nil
}

type fixture struct {
	svc        *Service
	store      store.Store
	queue      *fakeQueue
	summarizer *fakeSummarizer
	events     *fakeEvents
	metrics    *metrics.Metrics
	workDir    string
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{
		store:      st,
		queue:      &fakeQueue{},
		summarizer: &fakeSummarizer{summary: "Short summary."},
		events:     &fakeEvents{},
		metrics:    metrics.NewUnregistered(),
		workDir:    t.TempDir(),
	}
	f.svc = New(Config{WorkDir: f.workDir, MaxUploadBytes: maxUpload}, Deps{
		Store:      st,
		Queue:      f.queue,
		Summarizer: f.summarizer,
		Events:     f.events,
		Metrics:    f.metrics,
	})
	return f
}

// completeJob writes the records a finished pipeline run leaves behind.
func (f *fixture) completeJob(t *testing.T, jobID string, protocol []models.TranscriptSegment) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SaveResult(ctx, models.JobResult{
		JobID:          jobID,
		Status:         models.JobStatusCompleted,
		Protocol:       protocol,
		WordTimestamps: true,
	}))
	require.NoError(t, f.store.SaveStatus(ctx, models.Job{
		JobID:     jobID,
		Status:    models.JobStatusCompleted,
		Progress:  100,
		Message:   "Processing completed",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))
}

var sampleProtocol = []models.TranscriptSegment{
	{Speaker: "SPEAKER_00", Start: 0, End: 3.2, Transcript: "Hello everyone."},
	{Speaker: "SPEAKER_01", Start: 3.2, End: 5.5, Transcript: "Thanks for joining."},
}

func TestSubmit_StoresUploadAndQueuesJob(t *testing.T) {
	f := newFixture(t, 0)

	id, err := f.svc.Submit(context.Background(), strings.NewReader("RIFF-data"), "meeting.MP3", "small")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, st.Status)
	assert.Equal(t, 0, st.Progress)
	assert.Equal(t, MessageUploaded, st.Message)
	assert.False(t, st.CreatedAt.IsZero())

	require.Len(t, f.queue.subs, 1)
	sub := f.queue.subs[0]
	assert.Equal(t, id, sub.JobID)
	assert.Equal(t, "small", sub.ModelSize)
	assert.Equal(t, filepath.Join(f.workDir, id+".mp3"), sub.AudioPath)

	data, err := os.ReadFile(sub.AudioPath)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", string(data))

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JobsSubmitted))
	require.Len(t, f.events.statuses, 1)
	assert.Equal(t, models.JobStatusProcessing, f.events.statuses[0].Status)
}

func TestSubmit_DefaultModelSize(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Submit(context.Background(), strings.NewReader("x"), "a.wav", "")
	require.NoError(t, err)
	require.Len(t, f.queue.subs, 1)
	assert.Equal(t, "base", f.queue.subs[0].ModelSize)
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		modelSize string
		maxUpload int64
		want      error
		reason    string
	}{
		{"invalid model size", "x", "gigantic", 0, ErrInvalidModelSize, "model_size"},
		{"empty upload", "", "base", 0, ErrEmptyUpload, "upload"},
		{"too large", "0123456789", "base", 4, ErrUploadTooLarge, "upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.maxUpload)

			id, err := f.svc.Submit(context.Background(), strings.NewReader(tt.body), "a.wav", tt.modelSize)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, id)
			assert.Empty(t, f.queue.subs)
			assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JobsRejected.WithLabelValues(tt.reason)))

			entries, err := os.ReadDir(f.workDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "rejected uploads must not stay on disk")
		})
	}
}

func TestSubmit_QueueFullMarksJobFailed(t *testing.T) {
	f := newFixture(t, 0)
	f.queue.err = worker.ErrQueueFull

	id, err := f.svc.Submit(context.Background(), strings.NewReader("x"), "a.wav", "base")
	require.ErrorIs(t, err, ErrQueueFull)
	require.NotEmpty(t, id)

	st, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, st.Status)
	assert.True(t, strings.HasPrefix(st.Message, "Processing failed: "))

	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, testutil.ToFloat64(f.metrics.JobsQueued))
}

func TestSubmit_QueuedGaugeTracksAcceptedJobs(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Submit(context.Background(), strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobsQueued))

	f.queue.err = worker.ErrQueueFull
	_, err = f.svc.Submit(context.Background(), strings.NewReader("x"), "b.wav", "base")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JobsQueued))

	f.svc.Dropped(f.queue.subs[0])
	assert.Zero(t, testutil.ToFloat64(f.metrics.JobsQueued))
}

func TestDropped_MarksJobFailed(t *testing.T) {
	f := newFixture(t, 0)

	id, err := f.svc.Submit(context.Background(), strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	sub := f.queue.subs[0]

	f.svc.Dropped(sub)

	st, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, st.Status)
	assert.Contains(t, st.Message, "shutting down")
	assert.NoFileExists(t, sub.AudioPath)
}

func TestStatus_UnknownAndMalformedIDs(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.svc.Status(context.Background(), "00000000-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Status(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResult(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)

	_, err = f.svc.Result(ctx, id)
	assert.ErrorIs(t, err, ErrNotCompleted)

	f.completeJob(t, id, sampleProtocol)
	res, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sampleProtocol, res.Protocol)
	assert.Nil(t, res.Summary)
}

func TestResult_CompletedWithoutRecord(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	st, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	st.Status = models.JobStatusCompleted
	require.NoError(t, f.store.SaveStatus(ctx, st))

	_, err = f.svc.Result(ctx, id)
	assert.ErrorIs(t, err, ErrResultUnavailable)
}

func TestSummarize_StoresSummaryWithoutChangingStatus(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	f.completeJob(t, id, sampleProtocol)
	before, err := f.svc.Status(ctx, id)
	require.NoError(t, err)

	summary, err := f.svc.Summarize(ctx, id, "gpt-4o", summarize.Options{})
	require.NoError(t, err)
	assert.Equal(t, "Short summary.", summary)
	assert.Equal(t, "gpt-4o", f.summarizer.backend)

	res, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Short summary.", *res.Summary)
	assert.Equal(t, "gpt-4o", res.SummaryBackend)
	assert.Equal(t, sampleProtocol, res.Protocol)

	after, err := f.svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, []string{"gpt-4o:Short summary."}, f.events.summaries)
}

func TestSummarize_SelfHostedLabel(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	f.completeJob(t, id, sampleProtocol)

	opts := summarize.Options{URL: "http://localhost:11434", Model: "mistral"}
	_, err = f.svc.Summarize(ctx, id, "custom", opts)
	require.NoError(t, err)
	assert.Equal(t, opts, f.summarizer.opts)

	res, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ollama", res.SummaryBackend)
}

func TestSummarize_LastWriteWins(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
	require.NoError(t, err)
	f.completeJob(t, id, sampleProtocol)

	_, err = f.svc.Summarize(ctx, id, "gpt-4o", summarize.Options{})
	require.NoError(t, err)
	f.summarizer.summary = "Second summary."
	_, err = f.svc.Summarize(ctx, id, "bart-large-cnn", summarize.Options{})
	require.NoError(t, err)

	res, err := f.svc.Result(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Second summary.", *res.Summary)
	assert.Equal(t, "bart-large-cnn", res.SummaryBackend)
}

func TestSummarize_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("not completed", func(t *testing.T) {
		f := newFixture(t, 0)
		id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
		require.NoError(t, err)

		_, err = f.svc.Summarize(ctx, id, "gpt-4o", summarize.Options{})
		assert.ErrorIs(t, err, ErrNotCompleted)
		assert.Zero(t, f.summarizer.calls)
	})

	t.Run("empty protocol", func(t *testing.T) {
		f := newFixture(t, 0)
		id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
		require.NoError(t, err)
		f.completeJob(t, id, []models.TranscriptSegment{})

		_, err = f.svc.Summarize(ctx, id, "gpt-4o", summarize.Options{})
		assert.ErrorIs(t, err, ErrResultUnavailable)
		assert.Zero(t, f.summarizer.calls)
	})

	t.Run("backend failure keeps result untouched", func(t *testing.T) {
		f := newFixture(t, 0)
		id, err := f.svc.Submit(ctx, strings.NewReader("x"), "a.wav", "base")
		require.NoError(t, err)
		f.completeJob(t, id, sampleProtocol)
		f.summarizer.err = &models.SummarizationError{Backend: "openai", Err: errors.New("status 500")}

		_, err = f.svc.Summarize(ctx, id, "gpt-4o", summarize.Options{})
		var se *models.SummarizationError
		assert.ErrorAs(t, err, &se)

		res, err := f.svc.Result(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, res.Summary)

		st, err := f.svc.Status(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, st.Status)
	})
}

func TestUploadExt(t *testing.T) {
	tests := map[string]string{
		"meeting.wav":        ".wav",
		"Meeting.M4A":        ".m4a",
		"noext":              "",
		"../../evil.sh;rm":   "",
		"archive.toolongext": "",
		"dir/clip.ogg":       ".ogg",
	}
	for in, want := range tests {
		assert.Equal(t, want, uploadExt(in), in)
	}
}
