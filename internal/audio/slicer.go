// Package audio provides interfaces and implementations for probing and
// slicing audio files.
package audio

import (
	"context"
	"time"

	"github.com/maauso/gemini-transcribe/internal/chunk"
)

// Slicer defines the interface for audio probing and window extraction.
// Implementations should use ffmpeg or similar tools.
type Slicer interface {
	// Duration returns the total duration of the audio file at path.
	Duration(ctx context.Context, path string) (time.Duration, error)

	// Extract cuts window w out of src and writes it to dst.
	// The audio stream is copied without re-encoding, so the chunk
	// keeps the source codec and extraction stays fast.
	Extract(ctx context.Context, src, dst string, w chunk.Window) error
}
