// Package merge assembles per-chunk transcripts into one document.
//
// Chunks arrive in window order carrying the text the speech-to-text
// backend returned for their slice of audio. Merging runs in four
// steps: duplicated text from the audio overlap between adjacent
// chunks is removed, elapsed-time section headers are inserted at a
// fixed cadence, residual speech artifacts the model let through are
// cleaned up, and an optional title block is prepended.
package merge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maauso/gemini-transcribe/internal/chunk"
)

// ErrChunkMismatch is returned when the chunk list is empty, out of
// order, or contains duplicate windows.
var ErrChunkMismatch = errors.New("merge: chunk windows out of order")

const (
	// DefaultHeaderEvery is the spacing between section headers.
	DefaultHeaderEvery = 20 * time.Minute

	// DefaultTailWindow and DefaultHeadWindow bound, in bytes, how much
	// text on each side of a chunk boundary is scanned for overlap.
	DefaultTailWindow = 1600
	DefaultHeadWindow = 1600

	// DefaultMinMatch is the shortest normalized match accepted as real
	// overlap rather than a coincidental repetition.
	DefaultMinMatch = 16
)

// Chunk pairs a transcript with the audio window it was sliced from.
type Chunk struct {
	Window chunk.Window
	Text   string
}

// Options tunes the merge. The zero value selects the defaults.
type Options struct {
	// HeaderEvery is the elapsed-time spacing between section headers.
	HeaderEvery time.Duration

	// HeaderText, when set, is prepended verbatim as a title block. It
	// is never deduplicated, cleaned, or given headers.
	HeaderText string

	// TailWindow is the number of bytes at the end of the accumulated
	// document scanned for overlap with the next chunk.
	TailWindow int

	// HeadWindow is the number of bytes at the start of the next chunk
	// scanned for overlap.
	HeadWindow int

	// MinMatch is the minimum match length, in normalized characters,
	// for two chunks to be considered overlapping. Shorter matches are
	// ignored and the chunks concatenate whole; a few duplicated words
	// read better than a hole in the conversation.
	MinMatch int

	// MaxHeadOffset is how far into the next chunk, in bytes, a match
	// may start and still count as overlap. Zero selects HeadWindow/2.
	MaxHeadOffset int

	// Fillers and Backchannels are the word lists for the cleanup pass.
	// Nil selects the defaults; an empty slice disables that pass.
	Fillers      []string
	Backchannels []string
}

// DefaultFillers mirrors the filler list in the transcription prompt's
// cleaning instructions.
func DefaultFillers() []string {
	return []string{"um", "uh", "like", "you know", "sort of", "kind of"}
}

// DefaultBackchannels mirrors the backchannel list in the transcription
// prompt's cleaning instructions.
func DefaultBackchannels() []string {
	return []string{"right", "yeah", "uh-huh", "mm-hmm", "okay", "sure", "interesting"}
}

func (o Options) withDefaults() Options {
	if o.HeaderEvery <= 0 {
		o.HeaderEvery = DefaultHeaderEvery
	}
	if o.TailWindow <= 0 {
		o.TailWindow = DefaultTailWindow
	}
	if o.HeadWindow <= 0 {
		o.HeadWindow = DefaultHeadWindow
	}
	if o.MinMatch <= 0 {
		o.MinMatch = DefaultMinMatch
	}
	if o.MaxHeadOffset <= 0 {
		o.MaxHeadOffset = o.HeadWindow / 2
	}
	if o.Fillers == nil {
		o.Fillers = DefaultFillers()
	}
	if o.Backchannels == nil {
		o.Backchannels = DefaultBackchannels()
	}
	return o
}

// segment records which byte span of the stitched body came from one
// chunk and the stretch of audio that text covers. Everything before a
// chunk's predecessor window end was already on the page, so a chunk's
// own contribution covers [previous window end, its window end].
type segment struct {
	start, end int
	from, to   time.Duration
}

// Merge combines ordered per-chunk transcripts into a single document.
// The returned document ends with a newline unless it is empty.
func Merge(chunks []Chunk, opts Options) (string, error) {
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: empty chunk list", ErrChunkMismatch)
	}
	opts = opts.withDefaults()
	if err := checkOrder(chunks); err != nil {
		return "", err
	}

	body, segs := stitch(chunks, opts)
	doc := insertHeaders(body, segs, opts.HeaderEvery)
	doc = cleanup(doc, opts)
	if opts.HeaderText != "" {
		doc = opts.HeaderText + "\n\n---\n\n" + doc
	}
	if doc != "" && !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	return doc, nil
}

func checkOrder(chunks []Chunk) error {
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1].Window, chunks[i].Window
		if cur.Index <= prev.Index || cur.Start <= prev.Start || cur.End <= prev.End {
			return fmt.Errorf("%w: %v after %v", ErrChunkMismatch, cur, prev)
		}
	}
	return nil
}

// stitch concatenates the chunk texts, deduplicating the overlap between
// each adjacent pair, and records the byte and time span each chunk
// contributed. An empty transcript contributes nothing but still
// advances the covered timeline so header timing stays put.
func stitch(chunks []Chunk, opts Options) (string, []segment) {
	var b strings.Builder
	segs := make([]segment, 0, len(chunks))

	covered := time.Duration(0)
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		start := b.Len()
		switch {
		case text == "":
		case b.Len() == 0:
			b.WriteString(text)
		default:
			appendDeduped(&b, text, opts)
		}
		segs = append(segs, segment{start: start, end: b.Len(), from: covered, to: c.Window.End})
		covered = c.Window.End
	}
	return b.String(), segs
}
