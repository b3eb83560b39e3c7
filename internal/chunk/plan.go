// Package chunk plans the time windows a long recording is split into
// before transcription. Planning is pure: the same durations always
// produce the same windows, which is what lets an interrupted run match
// its on-disk artifacts by index when it resumes.
package chunk

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for plan validation.
var (
	// ErrInvalidDuration is returned when the total duration is not positive.
	ErrInvalidDuration = errors.New("chunk: total duration must be positive")
	// ErrInvalidOverlap is returned when the overlap is negative or not
	// shorter than the chunk duration.
	ErrInvalidOverlap = errors.New("chunk: overlap must be >= 0 and < chunk duration")
)

// Window is one planned slice of the source audio. Consecutive windows
// share exactly the configured overlap so the merge step can reconcile
// duplicated speech at the boundary.
type Window struct {
	// Index is the zero-based position of the window in the plan.
	Index int
	// Start is the offset of the window in the source audio.
	Start time.Duration
	// End is the exclusive end offset of the window in the source audio.
	End time.Duration
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End - w.Start
}

// String returns a human-readable representation for logging.
func (w Window) String() string {
	return fmt.Sprintf("window %d: %s-%s", w.Index, w.Start, w.End)
}

// Plan computes the ordered window sequence covering [0, total].
// Windows are chunkDuration long and step forward by
// chunkDuration-overlap. The final window is clamped to total; a
// trailing fragment that would be shorter than the overlap (and so
// repeat only audio its predecessor already covers) is absorbed into
// the predecessor by that clamp rather than emitted on its own.
func Plan(total, chunkDuration, overlap time.Duration) ([]Window, error) {
	if total <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDuration, total)
	}
	if overlap < 0 || overlap >= chunkDuration {
		return nil, fmt.Errorf("%w: overlap %v, chunk %v", ErrInvalidOverlap, overlap, chunkDuration)
	}

	var windows []Window
	for start := time.Duration(0); ; {
		end := start + chunkDuration
		if end >= total {
			end = total
		}
		windows = append(windows, Window{Index: len(windows), Start: start, End: end})
		if end == total {
			break
		}
		start = end - overlap
	}
	return windows, nil
}
