package transcriber

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/gemini-transcribe/internal/chunk"
)

// Defaults for a run. Callers that expose flags should use these as
// flag defaults so the two surfaces agree.
const (
	// DefaultChunkDuration is the nominal window length.
	DefaultChunkDuration = 20 * time.Minute
	// DefaultOverlap is how much consecutive windows share.
	DefaultOverlap = 10 * time.Second
	// DefaultWorkers bounds concurrent chunk transcriptions.
	DefaultWorkers = 3
)

// Section header cadence must stay within this range; outside it the
// elapsed-time labels drift too far from the text they anchor.
const (
	MinHeaderEvery = 15 * time.Minute
	MaxHeaderEvery = 20 * time.Minute
)

// Input describes a single transcription run.
type Input struct {
	// AudioPath is the source recording on local disk.
	AudioPath string `validate:"required"`
	// OutputPath is where the merged Markdown document is written.
	OutputPath string `validate:"required"`
	// Model names the speech-to-text model. Empty selects the backend default.
	Model string
	// ChunkDuration is the nominal window length. Zero means DefaultChunkDuration.
	ChunkDuration time.Duration `validate:"gt=0"`
	// Overlap is shared audio between consecutive windows. Must be
	// shorter than ChunkDuration; zero disables overlap.
	Overlap time.Duration `validate:"min=0,ltfield=ChunkDuration"`
	// Instructions is extra prompt text appended to every chunk request.
	Instructions string
	// HeaderText is prepended verbatim above the merged document.
	HeaderText string
	// HeaderEvery overrides the section header cadence. Zero keeps the
	// merge default; non-zero values must fall in [MinHeaderEvery, MaxHeaderEvery].
	HeaderEvery time.Duration
	// Speakers are names the model should label turns with.
	Speakers []string
	// Publish uploads the merged document after it is written locally.
	Publish bool
}

// withDefaults fills zero values that have a meaningful default. Paths
// are left alone; an empty path is a caller mistake worth reporting.
func (in Input) withDefaults() Input {
	if in.ChunkDuration == 0 {
		in.ChunkDuration = DefaultChunkDuration
	}
	return in
}

// check validates the input. It runs before any probe, slice, or
// network call, so a bad configuration never leaves artifacts behind.
func (in Input) check(v *validator.Validate) error {
	if err := v.Struct(in); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if in.HeaderEvery != 0 && (in.HeaderEvery < MinHeaderEvery || in.HeaderEvery > MaxHeaderEvery) {
		return fmt.Errorf("%w: header cadence %s outside [%s, %s]",
			ErrInvalidConfig, in.HeaderEvery, MinHeaderEvery, MaxHeaderEvery)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	// RunID identifies the run in logs.
	RunID string
	// State is the terminal state, DONE or FAILED.
	State State
	// OutputPath is where the merged document was written.
	OutputPath string
	// PublishedURL is set when the document was uploaded.
	PublishedURL string
	// Windows are the planned chunk windows.
	Windows []chunk.Window
	// Merged is the merged document length in bytes.
	Merged int
}
