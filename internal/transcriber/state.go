package transcriber

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// State represents the current stage of a transcription run.
type State string

const (
	// StatePlanned indicates windows are computed but no work has started.
	StatePlanned State = "PLANNED"
	// StateSlicing indicates audio chunks are being extracted.
	StateSlicing State = "SLICING"
	// StateTranscribing indicates chunks are being sent to the backend.
	StateTranscribing State = "TRANSCRIBING"
	// StateMerging indicates per-chunk transcripts are being combined.
	StateMerging State = "MERGING"
	// StateDone indicates the merged document was written.
	StateDone State = "DONE"
	// StateFailed indicates the run stopped on an unrecoverable error.
	StateFailed State = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// Run error taxonomy. Each step wraps its sentinel around the cause, so
// callers can classify with errors.Is and still reach the root error.
var (
	// ErrInvalidConfig is returned for bad parameters, before any work starts.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrSliceFailed is returned when the media tool cannot produce a chunk.
	ErrSliceFailed = errors.New("audio slicing failed")
	// ErrTranscriptionFailed is returned when a chunk transcription fails
	// after the backend exhausted its retries.
	ErrTranscriptionFailed = errors.New("chunk transcription failed")
	// ErrMergeFailed is returned when transcripts cannot be combined or written.
	ErrMergeFailed = errors.New("transcript merge failed")
	// ErrPublishFailed is returned when the merged document cannot be uploaded.
	ErrPublishFailed = errors.New("document publishing failed")
)

// validTransitions defines which state transitions are allowed. FAILED
// absorbs from every non-terminal state. PLANNED can jump forward when
// the artifacts a step would produce already exist on disk.
var validTransitions = map[State][]State{
	StatePlanned:      {StateSlicing, StateTranscribing, StateMerging, StateFailed},
	StateSlicing:      {StateTranscribing, StateFailed},
	StateTranscribing: {StateMerging, StateFailed},
	StateMerging:      {StateDone, StateFailed},
	StateDone:         {},
	StateFailed:       {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// StepError reports the stage and chunk a run failed in.
type StepError struct {
	// State is the stage that was executing when the run failed.
	State State
	// Chunk is the failing chunk index, or -1 when the failure is not
	// tied to a single chunk.
	Chunk int
	// Err is the underlying cause, wrapped around its taxonomy sentinel.
	Err error
}

func (e *StepError) Error() string {
	stage := strings.ToLower(string(e.State))
	if e.Chunk >= 0 {
		return fmt.Sprintf("%s: chunk %d: %v", stage, e.Chunk, e.Err)
	}
	return fmt.Sprintf("%s: %v", stage, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// run tracks the state of a single invocation. The control flow is
// single-threaded, so no locking is needed; workers never touch it.
type run struct {
	id     string
	state  State
	logger *slog.Logger
}

// to attempts to move the run to the next state.
func (r *run) to(next State) error {
	if !canTransition(r.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, next)
	}
	r.logger.Info("state transition",
		slog.String("from", string(r.state)),
		slog.String("to", string(next)),
	)
	r.state = next
	return nil
}

// fail moves the run to FAILED and returns the step error. Artifacts
// already written stay on disk for the next invocation to resume from.
func (r *run) fail(step *StepError) (Result, error) {
	r.state = StateFailed
	r.logger.Error("run failed",
		slog.String("state", string(step.State)),
		slog.Int("chunk", step.Chunk),
		slog.String("error", step.Err.Error()),
	)
	return Result{RunID: r.id, State: StateFailed}, step
}
