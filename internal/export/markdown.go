package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/privanote/internal/meeting"
)

// Markdown renders m as a Markdown report with the sections Title, Date,
// Notes, Summary, Action Items, Key Decisions and Transcript. Topics,
// participants and next steps are included when present.
func Markdown(m meeting.Meeting) (string, error) {
	if err := m.Validate(); err != nil {
		return "", errors.Join(ErrSerialization, err)
	}
	a := m.Analysis

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(m.Title))
	if m.Date != "" {
		fmt.Fprintf(&b, "- Date: %s\n", m.Date)
	}
	if m.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %.1f minutes\n", m.Duration)
	}
	if a.ProviderLabel != "" {
		fmt.Fprintf(&b, "- Analysis: %s (confidence %.0f%%)\n", a.ProviderLabel, a.Confidence*100)
	}
	if a.Warning != "" {
		fmt.Fprintf(&b, "- Note: %s\n", a.Warning)
	}
	b.WriteString("\n")

	if notes := strings.TrimSpace(m.Notes); notes != "" {
		section(&b, "Notes", notes)
	}
	summary := strings.TrimSpace(a.Summary)
	if summary == "" {
		summary = "_No summary available._"
	}
	section(&b, "Summary", summary)
	numbered(&b, "Action Items", a.ActionItems, "_No action items identified._")
	numbered(&b, "Key Decisions", a.KeyDecisions, "_No key decisions identified._")
	if len(a.TopicsDiscussed) > 0 {
		bullets(&b, "Topics Discussed", a.TopicsDiscussed)
	}
	if len(a.Participants) > 0 {
		bullets(&b, "Participants", a.Participants)
	}
	if len(a.NextSteps) > 0 {
		numbered(&b, "Next Steps", a.NextSteps, "")
	}
	section(&b, "Transcript", strings.TrimSpace(m.Transcript))

	return strings.TrimSuffix(b.String(), "\n"), nil
}

func section(b *strings.Builder, title, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", title, body)
}

func numbered(b *strings.Builder, title string, items []string, empty string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(items) == 0 {
		fmt.Fprintf(b, "%s\n\n", empty)
		return
	}
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
	b.WriteString("\n")
}

func bullets(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
