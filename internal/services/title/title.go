package title

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTitle = "New task"
	maxWords     = 8
	maxRunes     = 60
)

// Deriver turns free text into a short label.
type Deriver struct{}

func (Deriver) Derive(text string) string { return Derive(text) }

// Derive takes the first non-empty line of text and caps it at a few words.
func Derive(text string) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if line == "" {
		return DefaultTitle
	}

	words := strings.Fields(line)
	truncated := false
	if len(words) > maxWords {
		words = words[:maxWords]
		truncated = true
	}
	out := strings.Join(words, " ")
	if utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
		truncated = true
	}
	out = strings.TrimRight(out, ".,;:!?-")
	if truncated {
		out += "…"
	}
	return out
}
