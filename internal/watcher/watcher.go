// Package watcher submits audio files dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultSettle is how long a file must stay unchanged before it is submitted.
const DefaultSettle = 500 * time.Millisecond

var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".flac": true, ".ogg": true,
	".opus": true, ".aac": true, ".wma": true, ".webm": true, ".mp4": true,
	".mkv": true, ".mov": true,
}

// Submitter starts a job for an uploaded recording.
type Submitter interface {
	Submit(ctx context.Context, audio io.Reader, filename, modelSize string) (string, error)
}

// Config holds watcher settings.
type Config struct {
	Dir       string
	ModelSize string
	Settle    time.Duration
}

// Watcher turns new audio files in Dir into jobs. Files are left in place.
type Watcher struct {
	cfg       Config
	submitter Submitter
	logger    zerolog.Logger
	watcher   *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	// submitted maps a path to the modification time it was submitted with.
	submitted map[string]time.Time
	ready     chan string
	done      chan struct{}
}

// New creates a Watcher on cfg.Dir, creating the directory if needed.
func New(cfg Config, submitter Submitter, logger zerolog.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("inbox dir is empty")
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(cfg.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}

	return &Watcher{
		cfg:       cfg,
		submitter: submitter,
		logger:    logger.With().Str("component", "watcher").Str("dir", cfg.Dir).Logger(),
		watcher:   fw,
		pending:   make(map[string]*time.Timer),
		submitted: make(map[string]time.Time),
		ready:     make(chan string, 16),
		done:      make(chan struct{}),
	}, nil
}

// Run watches until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	w.logger.Info().Msg("Inbox watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Inbox watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isAudioFile(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case path := <-w.ready:
			w.submit(ctx, path)
		}
	}
}

// schedule (re)starts the settle timer of path; writes keep pushing it back.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.cfg.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.cfg.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) submit(ctx context.Context, path string) {
	logger := w.logger.With().Str("file", filepath.Base(path)).Logger()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		logger.Debug().Err(err).Msg("Skipping inbox entry")
		return
	}
	if mod, ok := w.submitted[path]; ok && mod.Equal(info.ModTime()) {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open inbox file")
		return
	}
	defer f.Close()

	jobID, err := w.submitter.Submit(ctx, f, filepath.Base(path), w.cfg.ModelSize)
	if err != nil {
		logger.Error().Err(err).Str("jobId", jobID).Msg("Failed to submit inbox file")
		return
	}
	w.submitted[path] = info.ModTime()
	logger.Info().Str("jobId", jobID).Msg("Inbox file submitted")
}

func (w *Watcher) stop() {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("Failed to close watcher")
	}
}

func isAudioFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(base))]
}
