package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maauso/gemini-transcribe/internal/chunk"
	"github.com/maauso/gemini-transcribe/internal/merge"
	"github.com/maauso/gemini-transcribe/internal/storage"
	"github.com/maauso/gemini-transcribe/internal/transcribe"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore keeps artifacts in maps. Workers save transcripts
// concurrently, so every accessor locks.
type fakeStore struct {
	mu          sync.Mutex
	audio       map[int]bool
	transcripts map[int]string
	documents   map[string]string
	published   map[string]string
	publishErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		audio:       make(map[int]bool),
		transcripts: make(map[int]string),
		documents:   make(map[string]string),
		published:   make(map[string]string),
	}
}

func (s *fakeStore) AudioPath(index int) string      { return fmt.Sprintf("chunk_%d.wav", index) }
func (s *fakeStore) TranscriptPath(index int) string { return fmt.Sprintf("transcript_%d.md", index) }

func (s *fakeStore) AudioExists(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio[index]
}

func (s *fakeStore) TranscriptExists(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transcripts[index]
	return ok
}

func (s *fakeStore) SaveTranscript(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[index] = text
	return nil
}

func (s *fakeStore) LoadTranscript(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.transcripts[index]
	if !ok {
		return "", fmt.Errorf("no transcript for chunk %d", index)
	}
	return text, nil
}

func (s *fakeStore) WriteDocument(path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[path] = text
	return nil
}

func (s *fakeStore) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	if s.publishErr != nil {
		return "", s.publishErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[key] = string(b)
	return "https://archive.example.com/" + key, nil
}

func (s *fakeStore) setAudio(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio[index] = true
}

func (s *fakeStore) document(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[path]
	return doc, ok
}

var _ storage.Store = (*fakeStore)(nil)

// fakeSlicer reports a fixed duration and marks extracted chunks as
// present in the store, the way ffmpeg leaves files on disk.
type fakeSlicer struct {
	mu         sync.Mutex
	duration   time.Duration
	probeErr   error
	extractErr map[int]error
	extracted  []int
	probes     int
	store      *fakeStore
}

func (s *fakeSlicer) Duration(ctx context.Context, path string) (time.Duration, error) {
	s.mu.Lock()
	s.probes++
	s.mu.Unlock()
	if s.probeErr != nil {
		return 0, s.probeErr
	}
	return s.duration, nil
}

func (s *fakeSlicer) Extract(ctx context.Context, src, dst string, w chunk.Window) error {
	if err := s.extractErr[w.Index]; err != nil {
		return err
	}
	s.mu.Lock()
	s.extracted = append(s.extracted, w.Index)
	s.mu.Unlock()
	s.store.setAudio(w.Index)
	return nil
}

// fakeBackend returns canned texts per chunk index and tracks how many
// requests were in flight at once.
type fakeBackend struct {
	mu          sync.Mutex
	texts       map[int]string
	errs        map[int]error
	delays      map[int]time.Duration
	delay       time.Duration
	calls       []int
	lastReq     transcribe.Request
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (b *fakeBackend) Transcribe(ctx context.Context, audioPath string, req transcribe.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var index int
	if _, err := fmt.Sscanf(audioPath, "chunk_%d.wav", &index); err != nil {
		return "", fmt.Errorf("unexpected audio path %q: %w", audioPath, err)
	}

	cur := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		seen := b.maxInFlight.Load()
		if cur <= seen || b.maxInFlight.CompareAndSwap(seen, cur) {
			break
		}
	}

	delay := b.delay
	if d, ok := b.delays[index]; ok {
		delay = d
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	b.mu.Lock()
	b.calls = append(b.calls, index)
	b.lastReq = req
	b.mu.Unlock()

	if err := b.errs[index]; err != nil {
		return "", err
	}
	if text, ok := b.texts[index]; ok {
		return text, nil
	}
	return fmt.Sprintf("Chunk %d body text.", index), nil
}

func (b *fakeBackend) sortedCalls() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	calls := append([]int(nil), b.calls...)
	sort.Ints(calls)
	return calls
}

func testInput() Input {
	return Input{
		AudioPath:     "interview.wav",
		OutputPath:    "transcript.md",
		ChunkDuration: 1200 * time.Second,
		Overlap:       10 * time.Second,
	}
}

func TestNew(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{store: store}
	backend := &fakeBackend{}

	tr := New(slicer, backend, store, nil)
	if tr.logger == nil {
		t.Error("expected default logger when nil is passed")
	}
	if tr.workers != DefaultWorkers {
		t.Errorf("expected %d workers, got %d", DefaultWorkers, tr.workers)
	}

	tr = New(slicer, backend, store, discardLogger(),
		WithWorkers(8),
		WithMergeOptions(merge.Options{HeaderEvery: 15 * time.Minute}),
	)
	if tr.workers != 8 {
		t.Errorf("expected 8 workers, got %d", tr.workers)
	}
	if tr.mergeOpts.HeaderEvery != 15*time.Minute {
		t.Errorf("expected merge cadence 15m, got %s", tr.mergeOpts.HeaderEvery)
	}

	tr = New(slicer, backend, store, discardLogger(), WithWorkers(0))
	if tr.workers != DefaultWorkers {
		t.Errorf("expected worker count %d to be unchanged, got %d", DefaultWorkers, tr.workers)
	}
}

func TestRun_HappyPath(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
	backend := &fakeBackend{texts: map[int]string{
		0: "**Ana:** We started the digitization in spring.",
		1: "**Ben:** The scanner ran day and night.",
	}}
	tr := New(slicer, backend, store, discardLogger())

	in := testInput()
	in.Model = "custom-model"
	in.Instructions = "Focus on place names."
	in.Speakers = []string{"Ana", "Ben"}

	result, err := tr.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.State != StateDone {
		t.Errorf("expected state %s, got %s", StateDone, result.State)
	}
	if !strings.HasPrefix(result.RunID, "run-") {
		t.Errorf("expected run ID with run- prefix, got %q", result.RunID)
	}
	if len(result.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(result.Windows))
	}
	if result.OutputPath != "transcript.md" {
		t.Errorf("expected output path transcript.md, got %q", result.OutputPath)
	}

	doc, ok := store.document("transcript.md")
	if !ok {
		t.Fatal("expected merged document to be written")
	}
	if result.Merged != len(doc) {
		t.Errorf("expected merged size %d, got %d", len(doc), result.Merged)
	}
	if !strings.Contains(doc, "digitization in spring") {
		t.Error("expected first chunk text in document")
	}
	if !strings.Contains(doc, "scanner ran day and night") {
		t.Error("expected second chunk text in document")
	}

	if got := slicer.extracted; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected chunks 0 and 1 extracted in order, got %v", got)
	}
	if got := backend.sortedCalls(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("expected backend calls for chunks 0 and 1, got %v", got)
	}

	if backend.lastReq.Model != "custom-model" {
		t.Errorf("expected model forwarded, got %q", backend.lastReq.Model)
	}
	if !strings.Contains(backend.lastReq.Instructions, "**Ana:**, **Ben:**") {
		t.Error("expected speaker labels in the prompt")
	}
	if !strings.Contains(backend.lastReq.Instructions, "ADDITIONAL INSTRUCTIONS:\nFocus on place names.") {
		t.Error("expected extra instructions appended to the prompt")
	}
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing audio path", func(in *Input) { in.AudioPath = "" }},
		{"missing output path", func(in *Input) { in.OutputPath = "" }},
		{"overlap equals chunk duration", func(in *Input) { in.Overlap = in.ChunkDuration }},
		{"overlap exceeds chunk duration", func(in *Input) { in.Overlap = in.ChunkDuration + time.Second }},
		{"negative overlap", func(in *Input) { in.Overlap = -time.Second }},
		{"header cadence too short", func(in *Input) { in.HeaderEvery = 10 * time.Minute }},
		{"header cadence too long", func(in *Input) { in.HeaderEvery = 21 * time.Minute }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
			backend := &fakeBackend{}
			tr := New(slicer, backend, store, discardLogger())

			in := testInput()
			tt.mutate(&in)

			_, err := tr.Run(context.Background(), in)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			if slicer.probes != 0 {
				t.Error("expected no probe before validation passes")
			}
			if len(backend.sortedCalls()) != 0 {
				t.Error("expected no backend calls for invalid input")
			}
		})
	}
}

func TestRun_HeaderCadenceWithinRangeAccepted(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	in := testInput()
	in.HeaderEvery = 18 * time.Minute

	result, err := tr.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateDone {
		t.Errorf("expected state %s, got %s", StateDone, result.State)
	}
}

func TestRun_ResumesFromExistingArtifacts(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 3; i++ {
		store.audio[i] = true
	}
	store.transcripts[0] = "**Ana:** Resumed opening segment stays intact."

	slicer := &fakeSlicer{duration: 3000 * time.Second, store: store}
	backend := &fakeBackend{texts: map[int]string{
		1: "**Ben:** Second segment came from the backend.",
		2: "**Cara:** Third segment arrived last.",
	}}
	tr := New(slicer, backend, store, discardLogger())

	result, err := tr.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != StateDone {
		t.Errorf("expected state %s, got %s", StateDone, result.State)
	}

	if len(slicer.extracted) != 0 {
		t.Errorf("expected no extraction with audio on disk, got %v", slicer.extracted)
	}
	if got := backend.sortedCalls(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected backend calls only for chunks 1 and 2, got %v", got)
	}

	doc, _ := store.document("transcript.md")
	if !strings.Contains(doc, "Resumed opening segment stays intact.") {
		t.Error("expected existing transcript content in the merged document")
	}
	if !strings.Contains(doc, "Third segment arrived last.") {
		t.Error("expected freshly transcribed content in the merged document")
	}
}

func TestRun_SkipsToMergeWhenAllTranscriptsExist(t *testing.T) {
	store := newFakeStore()
	store.transcripts[0] = "**Ana:** First part of the session."
	store.transcripts[1] = "**Ben:** Middle portion with details."
	store.transcripts[2] = "**Cara:** Closing remarks and thanks."

	slicer := &fakeSlicer{duration: 3000 * time.Second, store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	result, err := tr.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.State != StateDone {
		t.Errorf("expected state %s, got %s", StateDone, result.State)
	}
	if len(slicer.extracted) != 0 {
		t.Errorf("expected no extraction, got %v", slicer.extracted)
	}
	if got := backend.sortedCalls(); len(got) != 0 {
		t.Errorf("expected no backend calls, got %v", got)
	}

	doc, ok := store.document("transcript.md")
	if !ok {
		t.Fatal("expected merged document to be written")
	}
	for _, want := range []string{"First part", "Middle portion", "Closing remarks"} {
		if !strings.Contains(doc, want) {
			t.Errorf("expected %q in merged document", want)
		}
	}
}

func TestRun_SliceFailureReportsChunkAndStage(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{
		duration:   2000 * time.Second,
		store:      store,
		extractErr: map[int]error{1: errors.New("ffmpeg exited with status 1")},
	}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	result, err := tr.Run(context.Background(), testInput())
	if !errors.Is(err, ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed, got %v", err)
	}

	var step *StepError
	if !errors.As(err, &step) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if step.State != StateSlicing {
		t.Errorf("expected failing state %s, got %s", StateSlicing, step.State)
	}
	if step.Chunk != 1 {
		t.Errorf("expected failing chunk 1, got %d", step.Chunk)
	}

	if result.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, result.State)
	}
	// The chunk sliced before the failure stays on disk for the next run.
	if got := slicer.extracted; len(got) != 1 || got[0] != 0 {
		t.Errorf("expected only chunk 0 extracted, got %v", got)
	}
	if !store.AudioExists(0) {
		t.Error("expected chunk 0 audio to survive the failure")
	}
	if len(backend.sortedCalls()) != 0 {
		t.Error("expected no transcription after a slice failure")
	}
}

func TestRun_TranscriptionFailureAbortsBeforeMerge(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 3000 * time.Second, store: store}
	backend := &fakeBackend{
		errs: map[int]error{1: errors.New("model overloaded")},
	}
	tr := New(slicer, backend, store, discardLogger())

	result, err := tr.Run(context.Background(), testInput())
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}

	var step *StepError
	if !errors.As(err, &step) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if step.State != StateTranscribing {
		t.Errorf("expected failing state %s, got %s", StateTranscribing, step.State)
	}
	if step.Chunk != 1 {
		t.Errorf("expected failing chunk 1, got %d", step.Chunk)
	}

	if result.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, result.State)
	}
	if store.TranscriptExists(1) {
		t.Error("expected no transcript for the failed chunk")
	}
	if _, ok := store.document("transcript.md"); ok {
		t.Error("expected no merged document after a failed chunk")
	}
}

func TestRun_ConcurrencyBounded(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 5900 * time.Second, store: store}
	backend := &fakeBackend{delay: 10 * time.Millisecond}
	tr := New(slicer, backend, store, discardLogger(), WithWorkers(2))

	in := testInput()
	in.ChunkDuration = 1000 * time.Second
	in.Overlap = 0

	result, err := tr.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Windows) != 6 {
		t.Fatalf("expected 6 windows, got %d", len(result.Windows))
	}

	if got := backend.maxInFlight.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent transcriptions, saw %d", got)
	}
	if got := backend.sortedCalls(); len(got) != 6 {
		t.Errorf("expected 6 backend calls, got %v", got)
	}
	if _, ok := store.document("transcript.md"); !ok {
		t.Error("expected merged document to be written")
	}
}

func TestRun_MergeFollowsWindowOrder(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 3000 * time.Second, store: store}
	backend := &fakeBackend{
		texts: map[int]string{
			0: "**Ana:** The first reel covers the farm years.",
			1: "**Ben:** Archive boxes arrived by train in March.",
			2: "**Cara:** Nothing survived the flood except microfilm.",
		},
		// Later chunks finish first; index order must still win.
		delays: map[int]time.Duration{0: 30 * time.Millisecond, 1: 15 * time.Millisecond, 2: 0},
	}
	tr := New(slicer, backend, store, discardLogger())

	_, err := tr.Run(context.Background(), testInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := store.document("transcript.md")
	first := strings.Index(doc, "farm years")
	second := strings.Index(doc, "Archive boxes")
	third := strings.Index(doc, "microfilm")
	if first < 0 || second < 0 || third < 0 {
		t.Fatalf("expected all chunk texts in document:\n%s", doc)
	}
	if !(first < second && second < third) {
		t.Errorf("expected chunk texts in window order, got positions %d, %d, %d", first, second, third)
	}
}

func TestRun_PublishesWhenRequested(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	in := testInput()
	in.OutputPath = "out/final.md"
	in.Publish = true

	result, err := tr.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantURL := "https://archive.example.com/final.md"
	if result.PublishedURL != wantURL {
		t.Errorf("expected published URL %q, got %q", wantURL, result.PublishedURL)
	}
	doc, _ := store.document("out/final.md")
	if store.published["final.md"] != doc {
		t.Error("expected published content to match the written document")
	}
}

func TestRun_PublishFailureKeepsLocalDocument(t *testing.T) {
	store := newFakeStore()
	store.publishErr = errors.New("bucket unreachable")
	slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	in := testInput()
	in.Publish = true

	result, err := tr.Run(context.Background(), in)
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if result.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, result.State)
	}
	// The local document was already written and must survive.
	if _, ok := store.document("transcript.md"); !ok {
		t.Error("expected local document to remain after publish failure")
	}
}

func TestRun_ProbeFailure(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{probeErr: errors.New("ffprobe: no such file"), store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	result, err := tr.Run(context.Background(), testInput())
	if !errors.Is(err, ErrSliceFailed) {
		t.Fatalf("expected ErrSliceFailed, got %v", err)
	}

	var step *StepError
	if !errors.As(err, &step) {
		t.Fatalf("expected *StepError, got %T", err)
	}
	if step.State != StatePlanned {
		t.Errorf("expected failing state %s, got %s", StatePlanned, step.State)
	}
	if step.Chunk != -1 {
		t.Errorf("expected chunk -1 for a run-level failure, got %d", step.Chunk)
	}
	if result.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, result.State)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	store := newFakeStore()
	slicer := &fakeSlicer{duration: 2000 * time.Second, store: store}
	backend := &fakeBackend{}
	tr := New(slicer, backend, store, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tr.Run(ctx, testInput())
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if result.State != StateFailed {
		t.Errorf("expected state %s, got %s", StateFailed, result.State)
	}
	if _, ok := store.document("transcript.md"); ok {
		t.Error("expected no document for a cancelled run")
	}
}
