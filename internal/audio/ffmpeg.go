package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/gemini-transcribe/internal/chunk"
)

// Static errors for audio operations.
var (
	// ErrProbeFailed is returned when ffprobe cannot determine the duration.
	ErrProbeFailed = errors.New("audio probe failed")
	// ErrExtractFailed is returned when ffmpeg cannot extract a window.
	ErrExtractFailed = errors.New("audio extraction failed")
)

// FFmpegSlicer implements Slicer using the ffmpeg and ffprobe CLIs.
type FFmpegSlicer struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegSlicer creates a new FFmpegSlicer.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegSlicer(ffmpegPath, ffprobePath string) *FFmpegSlicer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegSlicer{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Duration returns the duration of an audio file.
// It uses ffprobe to read the container format metadata.
func (s *FFmpegSlicer) Duration(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrProbeFailed, err, stderr.String())
	}

	d, err := parseProbeDuration(stdout.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return d, nil
}

// parseProbeDuration parses ffprobe "format=duration" output, a float
// in seconds, into a time.Duration.
func parseProbeDuration(out string) (time.Duration, error) {
	trimmed := strings.TrimSpace(out)
	seconds, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", trimmed, err)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", trimmed)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Extract cuts window w out of src and writes it to dst.
func (s *FFmpegSlicer) Extract(ctx context.Context, src, dst string, w chunk.Window) error {
	args := []string{
		"-y", // Overwrite output
		"-i", src,
		"-ss", formatSeconds(w.Start),
		"-t", formatSeconds(w.Duration()),
		"-acodec", "copy", // Copy without re-encoding
		dst,
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("%w: %w, stderr: %s", ErrExtractFailed, err, stderr.String())
	}

	return nil
}

// formatSeconds renders a duration as seconds for ffmpeg arguments.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Verify interface implementation at compile time.
var _ Slicer = (*FFmpegSlicer)(nil)
