package merge

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var sentenceEndRe = regexp.MustCompile(`[.!?]["')]*\s`)

// insertHeaders splits the document with elapsed-time section headers
// every cadence interval. Each target time is mapped to a byte position
// by interpolating within the stretch of text covering it, then snapped
// to the nearest paragraph break, sentence end, or word boundary, in
// that order of preference. Targets that snap to the very start or end
// of the document, or on top of an earlier header, are dropped.
func insertHeaders(body string, segs []segment, every time.Duration) string {
	if body == "" || every <= 0 {
		return body
	}
	total := segs[len(segs)-1].to

	type insertion struct {
		pos   int
		label string
	}
	var ins []insertion
	for t := every; t < total; t += every {
		pos := snapBoundary(body, interpolate(segs, t))
		if pos <= 0 || pos >= len(body) {
			continue
		}
		if n := len(ins); n > 0 && pos <= ins[n-1].pos {
			continue
		}
		ins = append(ins, insertion{pos: pos, label: timeLabel(t)})
	}

	// Splice back to front so earlier offsets stay valid.
	for i := len(ins) - 1; i >= 0; i-- {
		left := strings.TrimRight(body[:ins[i].pos], " \t\n")
		right := strings.TrimLeft(body[ins[i].pos:], " \t\n")
		body = left + "\n\n## [" + ins[i].label + "]\n\n" + right
	}
	return body
}

// interpolate maps an elapsed time to a byte position, assuming text
// within one segment accrues evenly over the audio it covers.
func interpolate(segs []segment, t time.Duration) int {
	for _, s := range segs {
		if t > s.to {
			continue
		}
		if s.to == s.from || s.end == s.start {
			return s.end
		}
		frac := float64(t-s.from) / float64(s.to-s.from)
		return s.start + int(frac*float64(s.end-s.start))
	}
	return segs[len(segs)-1].end
}

func snapBoundary(body string, pos int) int {
	if pos <= 0 || pos >= len(body) {
		return pos
	}
	if p, ok := nearestParagraph(body, pos); ok {
		return p
	}
	if p, ok := nearestSentenceEnd(body, pos); ok {
		return p
	}
	return nearestSpace(body, pos)
}

// nearestParagraph returns the start of the paragraph closest to pos.
func nearestParagraph(body string, pos int) (int, bool) {
	left := strings.LastIndex(body[:pos], "\n\n")
	right := strings.Index(body[pos:], "\n\n")
	switch {
	case left < 0 && right < 0:
		return 0, false
	case right < 0:
		return paragraphStart(body, left), true
	case left < 0:
		return paragraphStart(body, pos+right), true
	}
	lp := paragraphStart(body, left)
	rp := paragraphStart(body, pos+right)
	if pos-lp <= rp-pos {
		return lp, true
	}
	return rp, true
}

// paragraphStart walks from a newline run to the first character of the
// paragraph that follows it.
func paragraphStart(body string, i int) int {
	for i < len(body) && body[i] == '\n' {
		i++
	}
	return i
}

// nearestSentenceEnd returns the position right after the sentence
// terminator closest to pos.
func nearestSentenceEnd(body string, pos int) (int, bool) {
	best, bestDist := -1, 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(body, -1) {
		d := loc[1] - pos
		if d < 0 {
			d = -d
		}
		if best >= 0 && d > bestDist {
			break
		}
		best, bestDist = loc[1], d
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// nearestSpace returns the whitespace boundary closest to pos, so a
// header never lands inside a word.
func nearestSpace(body string, pos int) int {
	left := strings.LastIndexFunc(body[:pos], unicode.IsSpace)
	right := strings.IndexFunc(body[pos:], unicode.IsSpace)
	switch {
	case left < 0 && right < 0:
		return 0
	case right < 0:
		return left + 1
	case left < 0:
		return pos + right + 1
	}
	if pos-(left+1) <= right+1 {
		return left + 1
	}
	return pos + right + 1
}

// timeLabel renders elapsed time the way players display it, MM:SS
// under an hour and HH:MM:SS beyond.
func timeLabel(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
