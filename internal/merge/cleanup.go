package merge

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	labelRe     = regexp.MustCompile(`^\*\*([^*\n]+?)\s*:?\s*\*\*\s*:?\s*`)
	bareLabelRe = regexp.MustCompile(`^([A-Za-z][A-Za-z .'-]{0,40}?):\s+`)
	wordRe      = regexp.MustCompile(`[A-Za-z][A-Za-z']*`)
	blankRunRe  = regexp.MustCompile(`\n{3,}`)
)

// cleaner holds the compiled patterns for one cleanup pass. The word
// lists come from Options so callers can extend or disable them.
type cleaner struct {
	leadFiller *regexp.Regexp
	loneFiller *regexp.Regexp
	midFiller  *regexp.Regexp
	tailFiller *regexp.Regexp
	pureTurn   *regexp.Regexp
}

func newCleaner(opts Options) *cleaner {
	c := &cleaner{}
	if f := alternation(opts.Fillers); f != "" {
		c.leadFiller = regexp.MustCompile(`(?i)(^|[.!?]\s+|:\*\*\s+)(?:` + f + `),\s*`)
		c.loneFiller = regexp.MustCompile(`(?i)(^|[.!?]\s+|:\*\*\s+)(?:` + f + `)[.!?]\s*`)
		c.midFiller = regexp.MustCompile(`(?i),\s*(?:` + f + `),\s*`)
		c.tailFiller = regexp.MustCompile(`(?i),\s*(?:` + f + `)([.!?])`)
	}
	if b := alternation(opts.Backchannels); b != "" {
		c.pureTurn = regexp.MustCompile(`(?i)^\*\*[^*\n]+:\*\*\s*(?:(?:` + b + `)[,.!?\s]*)+$`)
	}
	return c
}

// alternation joins words into a regexp alternation, longest first so
// multiword phrases win over their prefixes.
func alternation(words []string) string {
	if len(words) == 0 {
		return ""
	}
	sorted := make([]string, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

// cleanup applies the prompt's cleaning directives to the assembled
// document. Each chunk already went through the model with the same
// instructions; this pass catches what slipped through so the result
// reads uniformly across chunk boundaries. Section header lines pass
// through untouched.
func cleanup(doc string, opts Options) string {
	c := newCleaner(opts)
	lines := strings.Split(doc, "\n")
	speakers := knownSpeakers(lines)

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "## [") {
			kept = append(kept, line)
			continue
		}
		line = boldBareLabel(line, speakers)
		line = normalizeLabel(line)
		if c.pureTurn != nil && c.pureTurn.MatchString(strings.TrimSpace(line)) {
			continue
		}
		line = c.stripFillers(line)
		line = collapseFalseStarts(line)
		kept = append(kept, strings.TrimRight(line, " \t"))
	}

	out := strings.Join(kept, "\n")
	out = blankRunRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// stripFillers removes filler interjections set off by commas and
// recapitalizes any sentence opener the removal exposes.
func (c *cleaner) stripFillers(line string) string {
	if c.leadFiller == nil {
		return line
	}
	for {
		loc := c.leadFiller.FindStringSubmatchIndex(line)
		if loc == nil {
			break
		}
		line = line[:loc[3]] + capitalize(line[loc[1]:])
	}
	line = c.loneFiller.ReplaceAllString(line, "$1")
	line = c.midFiller.ReplaceAllString(line, " ")
	line = c.tailFiller.ReplaceAllString(line, "$1")
	return line
}

// collapseFalseStarts removes stutter repetitions such as "I, I think"
// and "we- we should". Only comma or dash separated repeats collapse;
// doubled words with plain spacing ("had had") are legitimate.
func collapseFalseStarts(line string) string {
	for {
		locs := wordRe.FindAllStringIndex(line, -1)
		collapsed := false
		for i := 0; i+1 < len(locs); i++ {
			w1 := line[locs[i][0]:locs[i][1]]
			w2 := line[locs[i+1][0]:locs[i+1][1]]
			if !strings.EqualFold(w1, w2) {
				continue
			}
			sep := strings.TrimSpace(line[locs[i][1]:locs[i+1][0]])
			if sep != "," && sep != "-" && sep != "--" && sep != "—" {
				continue
			}
			line = line[:locs[i][0]] + line[locs[i+1][0]:]
			collapsed = true
			break
		}
		if !collapsed {
			return line
		}
	}
}

// parseLabel splits a leading bold speaker label from the rest of the
// line. Bold used for plain emphasis has no colon and is left alone.
func parseLabel(line string) (name, rest string, ok bool) {
	m := labelRe.FindStringSubmatchIndex(line)
	if m == nil {
		return "", "", false
	}
	if !strings.Contains(line[m[0]:m[1]], ":") {
		return "", "", false
	}
	name = strings.TrimSpace(line[m[2]:m[3]])
	if name == "" {
		return "", "", false
	}
	return name, line[m[1]:], true
}

// normalizeLabel rewrites a leading speaker label to the **Name:** form
// the prompt asks for, tolerating the colon drifting outside the bold.
func normalizeLabel(line string) string {
	name, rest, ok := parseLabel(line)
	if !ok {
		return line
	}
	if rest == "" {
		return "**" + name + ":**"
	}
	return "**" + name + ":** " + rest
}

// boldBareLabel restores bold markup on a speaker label the model
// emitted as plain text, but only for names already seen in bold form
// somewhere in the document.
func boldBareLabel(line string, speakers map[string]bool) string {
	if strings.HasPrefix(line, "**") {
		return line
	}
	m := bareLabelRe.FindStringSubmatch(line)
	if m == nil || !speakers[strings.ToLower(m[1])] {
		return line
	}
	return "**" + m[1] + ":** " + line[len(m[0]):]
}

func knownSpeakers(lines []string) map[string]bool {
	speakers := make(map[string]bool)
	for _, line := range lines {
		if name, _, ok := parseLabel(line); ok {
			speakers[strings.ToLower(name)] = true
		}
	}
	return speakers
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
