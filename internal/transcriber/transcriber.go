// Package transcriber drives a transcription run end to end: probe the
// recording, plan overlapping chunk windows, slice them with the media
// tool, transcribe each chunk against the backend, and merge the
// per-chunk transcripts into a single Markdown document.
//
// A run moves through PLANNED, SLICING, TRANSCRIBING, MERGING and DONE,
// with FAILED absorbing any unrecoverable error. Every step checks for
// its artifacts before doing work, so rerunning after a failure resumes
// where the previous invocation stopped instead of redoing finished
// chunks.
package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/gemini-transcribe/internal/audio"
	"github.com/maauso/gemini-transcribe/internal/chunk"
	"github.com/maauso/gemini-transcribe/internal/merge"
	"github.com/maauso/gemini-transcribe/internal/storage"
	"github.com/maauso/gemini-transcribe/internal/transcribe"
	"github.com/maauso/gemini-transcribe/internal/transcriber/id"
)

// Transcriber coordinates the slicer, the transcription backend, and
// the chunk store for complete runs.
type Transcriber struct {
	slicer    audio.Slicer
	backend   transcribe.Backend
	store     storage.Store
	logger    *slog.Logger
	validate  *validator.Validate
	workers   int
	mergeOpts merge.Options
}

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithWorkers bounds how many chunks are transcribed concurrently.
// Values below one are ignored.
func WithWorkers(n int) Option {
	return func(t *Transcriber) {
		if n > 0 {
			t.workers = n
		}
	}
}

// WithMergeOptions replaces the merge defaults for all runs. Per-run
// header settings on Input still take precedence.
func WithMergeOptions(opts merge.Options) Option {
	return func(t *Transcriber) {
		t.mergeOpts = opts
	}
}

// New creates a Transcriber. If logger is nil, slog.Default() is used.
func New(slicer audio.Slicer, backend transcribe.Backend, store storage.Store, logger *slog.Logger, opts ...Option) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transcriber{
		slicer:   slicer,
		backend:  backend,
		store:    store,
		logger:   logger,
		validate: validator.New(),
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes one transcription run and blocks until it reaches a
// terminal state. On failure the returned error is a *StepError naming
// the stage and chunk, and artifacts written so far stay on disk.
func (t *Transcriber) Run(ctx context.Context, in Input) (Result, error) {
	in = in.withDefaults()
	if err := in.check(t.validate); err != nil {
		return Result{}, err
	}

	r := &run{id: id.Generate(), state: StatePlanned}
	logger := t.logger.With(slog.String("run_id", r.id))
	r.logger = logger

	logger.Info("starting transcription run",
		slog.String("audio", in.AudioPath),
		slog.String("output", in.OutputPath),
		slog.String("model", in.Model),
	)

	total, err := t.slicer.Duration(ctx, in.AudioPath)
	if err != nil {
		return r.fail(&StepError{State: StatePlanned, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrSliceFailed, err)})
	}
	windows, err := chunk.Plan(total, in.ChunkDuration, in.Overlap)
	if err != nil {
		return r.fail(&StepError{State: StatePlanned, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrInvalidConfig, err)})
	}
	logger.Info("planned chunk windows",
		slog.Int("windows", len(windows)),
		slog.Duration("audio_length", total),
		slog.Duration("chunk_duration", in.ChunkDuration),
		slog.Duration("overlap", in.Overlap),
	)

	// Artifacts already on disk decide how much of the pipeline runs.
	next := StateSlicing
	switch {
	case t.allTranscriptsPresent(windows):
		logger.Info("all transcripts on disk, skipping to merge")
		next = StateMerging
	case t.allAudioPresent(windows):
		logger.Info("all audio chunks on disk, skipping slicing")
		next = StateTranscribing
	}
	if err := r.to(next); err != nil {
		return r.fail(&StepError{State: r.state, Chunk: -1, Err: err})
	}

	if r.state == StateSlicing {
		if step := t.slice(ctx, in, windows, logger); step != nil {
			return r.fail(step)
		}
		if err := r.to(StateTranscribing); err != nil {
			return r.fail(&StepError{State: r.state, Chunk: -1, Err: err})
		}
	}

	if r.state == StateTranscribing {
		if step := t.transcribeAll(ctx, in, windows, logger); step != nil {
			return r.fail(step)
		}
		if err := r.to(StateMerging); err != nil {
			return r.fail(&StepError{State: r.state, Chunk: -1, Err: err})
		}
	}

	doc, publishedURL, step := t.mergeAndWrite(ctx, in, windows, logger)
	if step != nil {
		return r.fail(step)
	}
	if err := r.to(StateDone); err != nil {
		return r.fail(&StepError{State: r.state, Chunk: -1, Err: err})
	}

	logger.Info("run complete",
		slog.String("output", in.OutputPath),
		slog.Int("characters", len(doc)),
	)
	return Result{
		RunID:        r.id,
		State:        r.state,
		OutputPath:   in.OutputPath,
		PublishedURL: publishedURL,
		Windows:      windows,
		Merged:       len(doc),
	}, nil
}

func (t *Transcriber) allAudioPresent(windows []chunk.Window) bool {
	for _, w := range windows {
		if !t.store.AudioExists(w.Index) {
			return false
		}
	}
	return true
}

func (t *Transcriber) allTranscriptsPresent(windows []chunk.Window) bool {
	for _, w := range windows {
		if !t.store.TranscriptExists(w.Index) {
			return false
		}
	}
	return true
}

// slice extracts the audio for every window that does not already have
// a chunk on disk. Extraction is sequential: the media tool saturates
// the disk on its own, and window order keeps failures easy to resume.
func (t *Transcriber) slice(ctx context.Context, in Input, windows []chunk.Window, logger *slog.Logger) *StepError {
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return &StepError{State: StateSlicing, Chunk: w.Index, Err: fmt.Errorf("%w: %w", ErrSliceFailed, err)}
		}
		if t.store.AudioExists(w.Index) {
			logger.Info("audio chunk already sliced", slog.Int("chunk", w.Index))
			continue
		}
		dst := t.store.AudioPath(w.Index)
		if err := t.slicer.Extract(ctx, in.AudioPath, dst, w); err != nil {
			return &StepError{State: StateSlicing, Chunk: w.Index, Err: fmt.Errorf("%w: %w", ErrSliceFailed, err)}
		}
		logger.Info("sliced audio chunk",
			slog.Int("chunk", w.Index),
			slog.String("path", dst),
			slog.Duration("length", w.Duration()),
		)
	}
	return nil
}

// transcribeAll sends every window without a transcript to the backend,
// at most t.workers at a time. Workers write to disjoint chunk indexes,
// so the only shared state is the first error and the context that
// cancels the rest of the pool.
func (t *Transcriber) transcribeAll(ctx context.Context, in Input, windows []chunk.Window, logger *slog.Logger) *StepError {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := transcribe.Request{
		Model:        in.Model,
		Instructions: transcribe.ChunkPrompt(in.Speakers, in.Instructions),
	}

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, t.workers)
		mu       sync.Mutex
		firstErr *StepError
	)
	for _, w := range windows {
		if t.store.TranscriptExists(w.Index) {
			logger.Info("transcript already present", slog.Int("chunk", w.Index))
			continue
		}
		wg.Add(1)
		go func(w chunk.Window) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			if err := t.transcribeOne(ctx, req, w, logger); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &StepError{State: StateTranscribing, Chunk: w.Index, Err: err}
					cancel()
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	// Workers that saw the parent context cancel return without
	// recording an error; surface the cancellation here instead of
	// letting the merge step trip over missing transcripts.
	if err := ctx.Err(); err != nil {
		return &StepError{State: StateTranscribing, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)}
	}
	return nil
}

func (t *Transcriber) transcribeOne(ctx context.Context, req transcribe.Request, w chunk.Window, logger *slog.Logger) error {
	started := time.Now()
	text, err := t.backend.Transcribe(ctx, t.store.AudioPath(w.Index), req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if err := t.store.SaveTranscript(w.Index, text); err != nil {
		return fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	logger.Info("transcribed chunk",
		slog.Int("chunk", w.Index),
		slog.Int("characters", len(text)),
		slog.Duration("took", time.Since(started).Round(time.Millisecond)),
	)
	return nil
}

// mergeAndWrite re-reads every transcript from the store in window
// order. Workers may finish out of order; the store is the authority on
// content, and index order restores document order. A missing
// transcript aborts the merge, partial documents are never written.
func (t *Transcriber) mergeAndWrite(ctx context.Context, in Input, windows []chunk.Window, logger *slog.Logger) (doc, publishedURL string, step *StepError) {
	chunks := make([]merge.Chunk, 0, len(windows))
	for _, w := range windows {
		text, err := t.store.LoadTranscript(w.Index)
		if err != nil {
			return "", "", &StepError{State: StateMerging, Chunk: w.Index, Err: fmt.Errorf("%w: %w", ErrMergeFailed, err)}
		}
		chunks = append(chunks, merge.Chunk{Window: w, Text: text})
	}

	opts := t.mergeOpts
	if in.HeaderText != "" {
		opts.HeaderText = in.HeaderText
	}
	if in.HeaderEvery > 0 {
		opts.HeaderEvery = in.HeaderEvery
	}

	doc, err := merge.Merge(chunks, opts)
	if err != nil {
		return "", "", &StepError{State: StateMerging, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrMergeFailed, err)}
	}
	if err := t.store.WriteDocument(in.OutputPath, doc); err != nil {
		return "", "", &StepError{State: StateMerging, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrMergeFailed, err)}
	}
	logger.Info("wrote merged document",
		slog.String("path", in.OutputPath),
		slog.Int("chunks", len(chunks)),
		slog.Int("characters", len(doc)),
	)

	if in.Publish {
		key := filepath.Base(in.OutputPath)
		url, err := t.store.Publish(ctx, key, strings.NewReader(doc))
		if err != nil {
			return "", "", &StepError{State: StateMerging, Chunk: -1, Err: fmt.Errorf("%w: %w", ErrPublishFailed, err)}
		}
		publishedURL = url
		logger.Info("published merged document", slog.String("url", url))
	}
	return doc, publishedURL, nil
}
