// Package report composes written sections into the final Markdown
// artifact and persists it. Assembly is pure composition: no model
// calls, deterministic layout.
package report

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/writer"
)

// Reference is one consolidated bibliography entry.
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Report is the assembled artifact plus its provenance.
type Report struct {
	Topic            string             `json:"topic"`
	GeneratedAt      time.Time          `json:"generated_at"`
	Outline          *outline.Outline   `json:"outline"`
	Sections         []*writer.Section  `json:"sections"`
	ExecutiveSummary string             `json:"executive_summary"`
	References       []Reference        `json:"references"`
	QualityScore     float64            `json:"quality_score"`
	Metadata         map[string]any     `json:"metadata,omitempty"`
	Content          string             `json:"content"`
}

// Meta carries session facts for the metadata block.
type Meta struct {
	SessionID    string
	Iterations   int
	SourceCount  int
	QualityScore float64
	Extra        map[string]any
}

// Assemble composes the report. Sections must arrive in outline-leaf
// order; missing sections are skipped so a partial report on
// cancellation still assembles.
func Assemble(topic string, o *outline.Outline, sections []*writer.Section, executiveSummary string, meta Meta, now time.Time) *Report {
	bySection := make(map[int]*writer.Section, len(sections))
	for _, s := range sections {
		if s != nil {
			bySection[s.OutlineID] = s
		}
	}

	ordered := make([]*writer.Section, 0, len(sections))
	for _, leaf := range o.Leaves() {
		if s, ok := bySection[leaf.ID]; ok {
			ordered = append(ordered, s)
		}
	}

	refs := collectReferences(ordered)

	r := &Report{
		Topic:            topic,
		GeneratedAt:      now.UTC(),
		Outline:          o,
		Sections:         ordered,
		ExecutiveSummary: executiveSummary,
		References:       refs,
		QualityScore:     meta.QualityScore,
		Metadata:         buildMetadata(meta),
	}
	r.Content = render(r, meta)
	return r
}

// collectReferences unions section citations, deduplicated by URL and
// ordered by first appearance. Every entry is cited by construction.
func collectReferences(sections []*writer.Section) []Reference {
	seen := make(map[string]struct{})
	var refs []Reference
	for _, s := range sections {
		for _, c := range s.Citations {
			if _, dup := seen[c.URL]; dup {
				continue
			}
			seen[c.URL] = struct{}{}
			title := c.Title
			if title == "" {
				title = c.URL
			}
			refs = append(refs, Reference{Title: title, URL: c.URL})
		}
	}
	return refs
}

func buildMetadata(meta Meta) map[string]any {
	md := map[string]any{
		"session_id": meta.SessionID,
		"iterations": meta.Iterations,
		"sources":    meta.SourceCount,
		"quality":    meta.QualityScore,
	}
	for k, v := range meta.Extra {
		md[k] = v
	}
	return md
}

func render(r *Report, meta Meta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Topic)
	fmt.Fprintf(&b, "> Generated %s · session `%s` · %d sources · %d iterations · quality %.2f\n\n",
		r.GeneratedAt.Format("2006-01-02 15:04 MST"), meta.SessionID, meta.SourceCount, meta.Iterations, meta.QualityScore)

	if r.ExecutiveSummary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(strings.TrimSpace(r.ExecutiveSummary))
		b.WriteString("\n\n")
	}

	b.WriteString("## Table of Contents\n\n")
	written := make(map[int]bool, len(r.Sections))
	for _, s := range r.Sections {
		written[s.OutlineID] = true
	}
	r.Outline.Walk(func(n *outline.Node, depth int) {
		if !subtreeWritten(n, written) {
			return
		}
		fmt.Fprintf(&b, "%s- [%s](#%s)\n", strings.Repeat("  ", depth-1), n.Title, anchor(n.Title))
	})
	b.WriteString("\n")

	depthOf := make(map[int]int)
	r.Outline.Walk(func(n *outline.Node, depth int) {
		depthOf[n.ID] = depth
	})

	// Non-leaf headings print when their subtree has content.
	printed := make(map[int]bool)
	for _, s := range r.Sections {
		printParents(&b, r.Outline, s.OutlineID, printed)
		level := headingLevel(depthOf[s.OutlineID])
		fmt.Fprintf(&b, "%s %s\n\n%s\n\n", strings.Repeat("#", level), s.Title, strings.TrimSpace(s.Content))
	}

	if len(r.References) > 0 {
		b.WriteString("## References\n\n")
		for i, ref := range r.References {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, ref.Title, ref.URL)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// subtreeWritten reports whether the node or any descendant has a
// written section.
func subtreeWritten(n *outline.Node, written map[int]bool) bool {
	if written[n.ID] {
		return true
	}
	for _, c := range n.Children {
		if subtreeWritten(c, written) {
			return true
		}
	}
	return false
}

// printParents emits headings for the ancestors of a leaf that have
// not been printed yet.
func printParents(b *strings.Builder, o *outline.Outline, leafID int, printed map[int]bool) {
	var chain []*outline.Node
	var find func(ns []*outline.Node, trail []*outline.Node) bool
	find = func(ns []*outline.Node, trail []*outline.Node) bool {
		for _, n := range ns {
			if n.ID == leafID {
				chain = trail
				return true
			}
			if find(n.Children, append(trail, n)) {
				return true
			}
		}
		return false
	}
	find(o.Nodes, nil)

	for i, parent := range chain {
		if printed[parent.ID] {
			continue
		}
		printed[parent.ID] = true
		fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", headingLevel(i+1)), parent.Title)
		if parent.Description != "" {
			fmt.Fprintf(b, "%s\n\n", parent.Description)
		}
	}
}

// headingLevel maps outline depth to Markdown heading level; the H1 is
// the report title, so sections start at H2.
func headingLevel(depth int) int {
	level := depth + 1
	if level > 6 {
		level = 6
	}
	return level
}

var anchorStrip = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)

// anchor builds a GitHub-style heading anchor.
func anchor(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = anchorStrip.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
