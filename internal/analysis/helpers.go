package analysis

import (
	"regexp"
	"strings"
)

// maxExtractedActions caps the result of ExtractActionItems.
const maxExtractedActions = 10

var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`need to \w+`),
	regexp.MustCompile(`\bwill \w+`),
	regexp.MustCompile(`should \w+`),
	regexp.MustCompile(`action item`),
	regexp.MustCompile(`follow up`),
	regexp.MustCompile(`todo`),
	regexp.MustCompile(`task`),
}

// ExtractActionItems returns the sentences of transcript that read like
// commitments or assignments, in document order, capped at ten.
func ExtractActionItems(transcript string) []string {
	out := []string{}
	for _, p := range strings.Split(transcript, ".") {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		for _, re := range actionPatterns {
			if re.MatchString(lower) {
				out = append(out, s)
				break
			}
		}
		if len(out) == maxExtractedActions {
			break
		}
	}
	return out
}

// SimpleSummary shortens transcript to at most maxWords words. When the cut
// text has a sentence end in its last 30 % it is trimmed there; otherwise
// "..." marks the truncation. Transcripts within the limit are returned as is.
func SimpleSummary(transcript string, maxWords int) string {
	words := strings.Fields(transcript)
	if maxWords <= 0 || len(words) <= maxWords {
		return transcript
	}
	text := strings.Join(words[:maxWords], " ")
	if i := strings.LastIndexByte(text, '.'); float64(i) > float64(len(text))*0.7 {
		return text[:i+1]
	}
	return text + "..."
}
