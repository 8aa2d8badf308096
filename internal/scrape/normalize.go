package scrape

import (
	"regexp"
	"strings"
)

// chromeLabels are UI control captions that leak into message node text
// on hover-revealed toolbars. Matched case-insensitively, whole line.
var chromeLabels = map[string]bool{
	"copy":       true,
	"share":      true,
	"reply":      true,
	"regenerate": true,
	"retry":      true,
	"report":     true,
	"edit":       true,
	"delete":     true,
	"more":       true,
	"see more":   true,
	"show more":  true,
	"options":    true,
	"translate":  true,
	"pin":        true,
}

var (
	clockLineRe = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?\s*([AaPp][Mm])?$`)
	dayLineRe   = regexp.MustCompile(`^(Today|Yesterday)(\s+at\s+\d{1,2}:\d{2}.*)?$`)
	dateLineRe  = regexp.MustCompile(`^\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4}$`)
	spaceRunRe  = regexp.MustCompile(`[ \t]+`)
)

// Normalizer cleans raw message text: line-ending normalization,
// whitespace collapse, noise-line removal, and length clipping.
type Normalizer struct {
	// MaxRunes clips cleaned text; 0 disables clipping.
	MaxRunes int
}

// NewNormalizer returns a Normalizer with the default clip length.
func NewNormalizer() *Normalizer {
	return &Normalizer{MaxRunes: 10000}
}

// Clean normalizes line endings, collapses space runs, trims each line,
// reduces blank-line runs to one, trims the result, and clips it.
func (n *Normalizer) Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	cleaned := strings.TrimSpace(strings.Join(out, "\n"))
	return n.clip(cleaned)
}

func (n *Normalizer) clip(s string) string {
	if n.MaxRunes <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n.MaxRunes {
		return s
	}
	return string(runes[:n.MaxRunes])
}

// StripNoise removes known noise lines from raw node text: chrome
// labels, timestamp lines, a line exactly equal to the character-name
// hint, and a leading "You" label. It reports whether a name-hint line
// or a leading "You" was seen, which the DOM path uses as role evidence.
func (n *Normalizer) StripNoise(raw, nameHint string) (text string, sawName, sawYou bool) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	first := true
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		if first && trimmed == "You" {
			sawYou = true
			first = false
			continue
		}
		first = false
		if nameHint != "" && trimmed == nameHint {
			sawName = true
			continue
		}
		if isNoiseLine(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return n.Clean(strings.Join(kept, "\n")), sawName, sawYou
}

func isNoiseLine(trimmed string) bool {
	if chromeLabels[strings.ToLower(trimmed)] {
		return true
	}
	if clockLineRe.MatchString(trimmed) {
		return true
	}
	if dayLineRe.MatchString(trimmed) {
		return true
	}
	if dateLineRe.MatchString(trimmed) {
		return true
	}
	return false
}
