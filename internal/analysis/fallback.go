package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/privanote/pkg/types"
)

// FallbackConfidence is the fixed confidence of rule-based results.
const FallbackConfidence = 0.3

// maxFallbackItems caps the action items and decisions of a fallback result.
const maxFallbackItems = 5

var (
	actionKeywords   = []string{"todo", "action", "task", "will do", "should", "need to", "follow up"}
	decisionKeywords = []string{"decided", "agreed", "conclusion", "resolved", "determined"}

	// willPattern catches commitments phrased as "X will ..." without
	// matching words such as "goodwill".
	willPattern = regexp.MustCompile(`\bwill\b`)
)

// Fallback analyses transcript with keyword rules. It needs no network and
// is a pure function: the same transcript always yields the same result.
func Fallback(transcript string) types.AnalysisResult {
	words := len(strings.Fields(transcript))
	parts := strings.Split(transcript, ".")

	summary := fmt.Sprintf("Meeting transcript contains %d words.", words)
	if len(parts) > 2 {
		summary += " " + strings.TrimSpace(parts[0]) + ". " + strings.TrimSpace(parts[len(parts)-2]) + "."
	}

	var actions, decisions []string
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)
		if len(actions) < maxFallbackItems && isActionSentence(lower) {
			actions = append(actions, s)
		}
		if len(decisions) < maxFallbackItems && containsAny(lower, decisionKeywords) {
			decisions = append(decisions, s)
		}
	}

	r := types.AnalysisResult{
		Summary:       summary,
		ActionItems:   actions,
		KeyDecisions:  decisions,
		Confidence:    FallbackConfidence,
		ProviderLabel: types.ProviderFallback.DisplayName(),
		Provider:      types.ProviderFallback,
	}
	r.Normalize()
	return r
}

func isActionSentence(lower string) bool {
	return containsAny(lower, actionKeywords) || willPattern.MatchString(lower)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
