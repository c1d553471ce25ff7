package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<(script|style|noscript)\b[^>]*>.*?</\s*(script|style|noscript)\s*>`)
	htmlTag     = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
)

// htmlText strips markup down to readable text: script and style
// blocks removed, tags dropped, entities decoded, whitespace collapsed.
func htmlText(data []byte) string {
	text := scriptBlock.ReplaceAllString(string(data), " ")
	text = htmlTag.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
