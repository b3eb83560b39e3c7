package merge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// overlap locates a duplicated run of speech in the head of an incoming
// chunk. Offsets are bytes into the incoming text.
type overlap struct {
	headStart int
	headEnd   int
	length    int
}

// appendDeduped appends text to the document, dropping the part of its
// head that repeats the end of what is already there. Adjacent chunks
// are sliced with overlapping audio, so both transcripts usually carry
// the same run of speech at the boundary. When no confident match is
// found the text is appended unchanged.
func appendDeduped(b *strings.Builder, text string, opts Options) {
	doc := b.String()
	tail := doc[tailStart(doc, opts.TailWindow):]
	head := text[:headEnd(text, opts.HeadWindow)]

	m, ok := findOverlap(tail, head, opts.MinMatch, opts.MaxHeadOffset)
	if !ok {
		b.WriteString("\n\n")
		b.WriteString(text)
		return
	}

	rest, brokePara := trimMatched(text, m.headEnd)
	if rest == "" {
		return
	}
	if brokePara {
		b.WriteString("\n\n")
	} else {
		b.WriteString(" ")
	}
	b.WriteString(rest)
}

// findOverlap compares the normalized tail and head and returns the
// longest common run. A match is accepted only when it is at least
// minMatch normalized characters long and starts within maxHeadOffset
// bytes of the head, where the duplicated audio lives.
func findOverlap(tail, head string, minMatch, maxHeadOffset int) (overlap, bool) {
	normTail, _ := normalizeMatch(tail)
	normHead, headSpans := normalizeMatch(head)
	if len(normTail) == 0 || len(normHead) == 0 {
		return overlap{}, false
	}

	length, end := longestCommonRun(normTail, normHead)
	if length < minMatch {
		return overlap{}, false
	}
	start := headSpans[end-length].start
	if start > maxHeadOffset {
		return overlap{}, false
	}
	return overlap{headStart: start, headEnd: headSpans[end-1].end, length: length}, true
}

// span maps one normalized character back to the byte range in the
// original text it came from.
type span struct {
	start, end int
}

// normalizeMatch lowercases s and squeezes every run of non-alphanumeric
// characters to a single space, returning the normalized text together
// with the source span of each normalized character. Matching on this
// form makes the comparison insensitive to case, punctuation, and
// whitespace differences between the two transcripts.
func normalizeMatch(s string) ([]rune, []span) {
	norm := make([]rune, 0, len(s)/2)
	spans := make([]span, 0, len(s)/2)
	gap := false
	for i, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			gap = true
			continue
		}
		if gap && len(norm) > 0 {
			norm = append(norm, ' ')
			spans = append(spans, span{start: i, end: i})
		}
		gap = false
		norm = append(norm, unicode.ToLower(r))
		spans = append(spans, span{start: i, end: i + utf8.RuneLen(r)})
	}
	return norm, spans
}

// longestCommonRun returns the length of the longest substring common to
// a and b and the position in b just past it. Standard dynamic program
// over a rolling pair of rows.
func longestCommonRun(a, b []rune) (length, bEnd int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				cur[j] = 0
				continue
			}
			cur[j] = prev[j-1] + 1
			if cur[j] > length {
				length = cur[j]
				bEnd = j
			}
		}
		prev, cur = cur, prev
	}
	return length, bEnd
}

// trimMatched drops everything in text up to cut and tidies the seam: a
// word the match only partially covered is kept whole, and punctuation
// orphaned by the removal is discarded. The flag reports whether the
// dropped region ended at a paragraph break so the caller can restore
// it.
func trimMatched(text string, cut int) (rest string, brokePara bool) {
	for cut > 0 && cut < len(text) && isWordByte(text[cut]) && isWordByte(text[cut-1]) {
		cut--
	}
	rest = strings.TrimLeft(text[cut:], ".,!?;: ")
	i := strings.IndexFunc(rest, func(r rune) bool { return r != '\n' && r != ' ' && r != '\t' })
	if i < 0 {
		return "", false
	}
	brokePara = strings.Contains(rest[:i], "\n")
	return rest[i:], brokePara
}

func isWordByte(c byte) bool {
	return c == '\'' || c == '-' ||
		(c >= '0' && c <= '9') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		c >= utf8.RuneSelf
}

// tailStart returns the offset where the last n bytes of s begin, nudged
// forward to a rune boundary.
func tailStart(s string, n int) int {
	if len(s) <= n {
		return 0
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

// headEnd returns the offset just past the first n bytes of s, nudged
// forward to a rune boundary.
func headEnd(s string, n int) int {
	if len(s) <= n {
		return len(s)
	}
	i := n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
