package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrPublishNotConfigured is returned when Publish is attempted
// without an upload target configured.
var ErrPublishNotConfigured = errors.New("publishing is not configured")

// FSStore implements the Store interface on the local filesystem.
// All chunk artifacts live in a single work directory so interrupted
// runs can resume from whatever files are already there.
type FSStore struct {
	dir string
}

// NewFSStore creates a new FSStore rooted at dir.
// If dir is empty, "audio_chunks" is used.
// The directory is created if it doesn't exist.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		dir = "audio_chunks"
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create chunks directory: %w", err)
	}

	return &FSStore{dir: dir}, nil
}

// Dir returns the work directory path.
func (s *FSStore) Dir() string {
	return s.dir
}

// AudioPath returns the path of the sliced audio for a chunk index.
func (s *FSStore) AudioPath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("chunk_%03d.wav", index))
}

// TranscriptPath returns the path of the transcript for a chunk index.
func (s *FSStore) TranscriptPath(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("transcript_%03d.md", index))
}

// AudioExists reports whether the sliced audio for index is present.
func (s *FSStore) AudioExists(index int) bool {
	return fileExists(s.AudioPath(index))
}

// TranscriptExists reports whether the transcript for index is present.
func (s *FSStore) TranscriptExists(index int) bool {
	return fileExists(s.TranscriptPath(index))
}

// SaveTranscript persists the transcript text for a chunk index.
func (s *FSStore) SaveTranscript(index int, text string) error {
	path := s.TranscriptPath(index)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil { // #nosec G306 - transcripts are user documents
		return fmt.Errorf("write transcript %s: %w", path, err)
	}
	return nil
}

// LoadTranscript reads the transcript previously saved for a chunk index.
func (s *FSStore) LoadTranscript(index int) (string, error) {
	path := s.TranscriptPath(index)
	data, err := os.ReadFile(path) // #nosec G304 - path derives from the work dir
	if err != nil {
		return "", fmt.Errorf("read transcript %s: %w", path, err)
	}
	return string(data), nil
}

// WriteDocument writes the final merged document to path.
func (s *FSStore) WriteDocument(path string, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil { // #nosec G306 - transcripts are user documents
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return nil
}

// Publish is not supported by FSStore and returns ErrPublishNotConfigured.
func (s *FSStore) Publish(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrPublishNotConfigured
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
