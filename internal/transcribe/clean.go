package transcribe

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var spaceBeforePunct = regexp.MustCompile(`\s+([.,?!])`)

// Clean normalizes recognizer output: runs of whitespace collapse to one
// space, spaces before . , ? and ! are removed, every sentence starts with a
// capital letter and the text ends with terminal punctuation.
func Clean(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	text = spaceBeforePunct.ReplaceAllString(text, "$1")

	var b strings.Builder
	b.Grow(len(text) + 1)
	// A sentence ends at . ? or ! followed by a space, so "example.com" and
	// "v2.x" keep their case.
	capNext, sawTerminal := true, false
	for _, r := range text {
		if sawTerminal {
			capNext = r == ' '
			sawTerminal = false
		}
		if capNext && unicode.IsLetter(r) {
			r = unicode.ToUpper(r)
			capNext = false
		}
		switch {
		case r == '.' || r == '?' || r == '!':
			sawTerminal = true
		case capNext && unicode.IsDigit(r):
			capNext = false
		}
		b.WriteRune(r)
	}
	out := b.String()

	last, _ := utf8.DecodeLastRuneInString(out)
	if last != '.' && last != '?' && last != '!' {
		out += "."
	}
	return out
}
