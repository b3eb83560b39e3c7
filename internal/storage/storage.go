// Package storage persists per-chunk artifacts and the final merged
// document. It defines the Store interface (port) for hexagonal
// architecture, a local filesystem implementation, and an S3-publishing
// wrapper for final document delivery.
package storage

import (
	"context"
	"io"
)

// Store defines the interface for chunk artifact persistence.
// Artifact existence on disk is the source of truth for resumability:
// implementations must report existence accurately and return stable
// paths across runs for the same chunk index.
type Store interface {
	// AudioPath returns the path of the sliced audio for a chunk index.
	AudioPath(index int) string

	// TranscriptPath returns the path of the transcript for a chunk index.
	TranscriptPath(index int) string

	// AudioExists reports whether the sliced audio for index is present.
	AudioExists(index int) bool

	// TranscriptExists reports whether the transcript for index is present.
	TranscriptExists(index int) bool

	// SaveTranscript persists the transcript text for a chunk index.
	SaveTranscript(index int, text string) error

	// LoadTranscript reads the transcript previously saved for a chunk index.
	LoadTranscript(index int) (string, error)

	// WriteDocument writes the final merged document to path.
	WriteDocument(path string, text string) error

	// Publish uploads data under key and returns the public URL.
	// Returns ErrPublishNotConfigured if publishing is not configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
