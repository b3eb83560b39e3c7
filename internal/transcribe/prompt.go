package transcribe

import (
	"fmt"
	"strings"
)

// defaultSpeakerFormat labels turns when no speaker names are supplied.
const defaultSpeakerFormat = "**Speaker 1:** and **Speaker 2:** (or use actual names if identifiable)"

// ChunkPrompt builds the transcription prompt for a single audio segment.
// When at least two speaker names are given they become the label format,
// otherwise generic speaker labels are requested. Extra text is appended
// verbatim as an ADDITIONAL INSTRUCTIONS section when not empty.
func ChunkPrompt(speakers []string, extra string) string {
	speakerFormat := defaultSpeakerFormat
	if len(speakers) >= 2 {
		labels := make([]string, len(speakers))
		for i, name := range speakers {
			labels[i] = fmt.Sprintf("**%s:**", name)
		}
		speakerFormat = strings.Join(labels, ", ")
	}

	prompt := fmt.Sprintf(`Please transcribe this audio interview/conversation segment.

FORMAT:
- Speaker names in bold: %s
- Use proper paragraphing for longer responses

CLEANING INSTRUCTIONS:
1. Remove filler words: "um", "uh", "like", "you know", "sort of", "kind of" (when used as fillers)
2. Remove pure backchanneling: "right", "yeah", "uh-huh", "mm-hmm", "okay", "sure", "interesting" when they're just acknowledgments (not substantive responses)
3. Keep "right" or "yeah" only when part of making a substantive point
4. Clean up false starts, stutters, and repetitions for readability
5. Preserve all intellectual content and nuance
6. Keep substantive questions and responses only

Provide the complete transcript for this segment.`, speakerFormat)

	if extra != "" {
		prompt += "\n\nADDITIONAL INSTRUCTIONS:\n" + extra
	}

	return prompt
}
