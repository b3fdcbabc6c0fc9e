// Package voice connects live capture and playback to real devices and
// speech vendors.
package voice

import "strings"

var abbreviations = []string{
	"Dr.", "Mr.", "Mrs.", "Ms.", "Jr.", "Sr.",
	"Prof.", "Rev.", "Gen.", "Col.", "Lt.", "Sgt.",
	"Inc.", "Ltd.", "Corp.", "Co.", "vs.", "etc.",
	"i.e.", "e.g.", "a.m.", "p.m.", "U.S.", "U.K.",
}

// SplitSentences breaks text at sentence-ending punctuation followed by
// whitespace, keeping abbreviations and initials intact. The trailing
// fragment is returned as its own element.
func SplitSentences(text string) []string {
	var out []string
	last := 0
	for i := 0; i < len(text); i++ {
		if !isSentenceEnd(text, i) {
			continue
		}
		if s := strings.TrimSpace(text[last : i+1]); s != "" {
			out = append(out, s)
		}
		last = i + 1
	}
	if rest := strings.TrimSpace(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isSentenceEnd(s string, i int) bool {
	c := s[i]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	if c == '.' && isAbbreviation(s, i) {
		return false
	}
	if i+1 < len(s) {
		switch s[i+1] {
		case ' ', '\n', '\r', '\t':
		default:
			return false
		}
	}
	return true
}

func isAbbreviation(s string, i int) bool {
	if i < 1 {
		return false
	}
	start := i
	for start > 0 && s[start-1] != ' ' && s[start-1] != '\n' {
		start--
	}
	word := s[start : i+1]
	for _, abbr := range abbreviations {
		if strings.EqualFold(word, abbr) {
			return true
		}
	}
	// Single capital initial, as in "J. Smith".
	return s[i-1] >= 'A' && s[i-1] <= 'Z' && (i < 2 || s[i-2] == ' ' || s[i-2] == '\n')
}
