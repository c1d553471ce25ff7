// Package export converts Markdown report artifacts into office
// formats: a DOCX rendition of the prose and an XLSX workbook with the
// reference list and session metrics.
package export

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Reference is one cited source pulled from the artifact.
type Reference struct {
	Title string
	URL   string
}

// Artifact is the parsed form of a report Markdown file.
type Artifact struct {
	Title       string
	Lines       []string
	References  []Reference
	SessionID   string
	GeneratedAt string
	Sources     int
	Iterations  int
	Quality     float64
	Sections    int
	Words       int
}

var (
	mdLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)

	// The provenance blockquote the assembler writes under the title.
	provenance = regexp.MustCompile("> Generated (.+?) · session `([^`]*)` · (\\d+) sources · (\\d+) iterations · quality ([0-9.]+)")
)

// ParseFile reads and parses a Markdown artifact.
func ParseFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return Parse(data), nil
}

// Parse extracts structure from artifact Markdown. Unknown layouts
// degrade gracefully: the prose still converts, the metrics stay zero.
func Parse(data []byte) *Artifact {
	text := strings.TrimPrefix(string(data), "\ufeff")
	a := &Artifact{Lines: strings.Split(text, "\n")}

	seen := make(map[string]struct{})
	for _, line := range a.Lines {
		trimmed := strings.TrimSpace(line)

		if a.Title == "" && strings.HasPrefix(trimmed, "# ") {
			a.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			continue
		}
		if m := provenance.FindStringSubmatch(trimmed); m != nil {
			a.GeneratedAt = m[1]
			a.SessionID = m[2]
			a.Sources, _ = strconv.Atoi(m[3])
			a.Iterations, _ = strconv.Atoi(m[4])
			a.Quality, _ = strconv.ParseFloat(m[5], 64)
			continue
		}
		if strings.HasPrefix(trimmed, "## ") {
			a.Sections++
		}
		for _, m := range mdLink.FindAllStringSubmatch(trimmed, -1) {
			title, url := strings.TrimSpace(m[1]), m[2]
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			if title == "" {
				title = url
			}
			a.References = append(a.References, Reference{Title: title, URL: url})
		}
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			a.Words += len(strings.Fields(trimmed))
		}
	}

	// Table of contents and references are navigation, not sections.
	for _, aux := range []string{"Table of Contents", "References"} {
		if strings.Contains(text, "## "+aux) {
			a.Sections--
		}
	}
	if a.Sections < 0 {
		a.Sections = 0
	}
	return a
}

// headingLevel returns the level of a Markdown heading line, or 0.
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n == 0 || n > 6 || n >= len(line) || line[n] != ' ' {
		return 0
	}
	return n
}

// plainText flattens inline Markdown: links become "title (url)", bold
// and italic markers drop.
func plainText(line string) string {
	out := mdLink.ReplaceAllString(line, "$1 ($2)")
	out = strings.ReplaceAll(out, "**", "")
	out = strings.ReplaceAll(out, "`", "")
	return strings.TrimSpace(out)
}
