// Package outline builds and validates the typed section tree that
// drives section writing. Report types select structural templates;
// the model fills them with topic-specific sections when available.
package outline

import (
	"fmt"
	"strings"
)

// MaxDepth bounds outline nesting.
const MaxDepth = 4

// Report types understood by the builder.
const (
	TypeComprehensive = "comprehensive"
	TypeInsight       = "insight"
	TypeIndustry      = "industry"
	TypeResearch      = "research"
	TypeNewsReport    = "news_report"
)

// Types lists the recognized report types.
func Types() []string {
	return []string{TypeComprehensive, TypeInsight, TypeIndustry, TypeResearch, TypeNewsReport}
}

// KnownType reports whether t is a recognized report type.
func KnownType(t string) bool {
	switch t {
	case TypeComprehensive, TypeInsight, TypeIndustry, TypeResearch, TypeNewsReport:
		return true
	}
	return false
}

// Node is one outline entry. Leaves carry the key points that drive
// section writing.
type Node struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	KeyPoints   []string `json:"key_points,omitempty"`
	Children    []*Node  `json:"children,omitempty"`
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Outline is the full section tree for one report.
type Outline struct {
	Topic      string  `json:"topic"`
	ReportType string  `json:"report_type"`
	Nodes      []*Node `json:"nodes"`
}

// Leaves returns the writable sections in document order.
func (o *Outline) Leaves() []*Node {
	var out []*Node
	var walk func(ns []*Node)
	walk = func(ns []*Node) {
		for _, n := range ns {
			if n.IsLeaf() {
				out = append(out, n)
				continue
			}
			walk(n.Children)
		}
	}
	walk(o.Nodes)
	return out
}

// Walk visits every node in document order.
func (o *Outline) Walk(fn func(n *Node, depth int)) {
	var walk func(ns []*Node, depth int)
	walk = func(ns []*Node, depth int) {
		for _, n := range ns {
			fn(n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(o.Nodes, 1)
}

// Validate enforces the structural invariants: non-empty unique ids,
// non-empty titles unique among siblings, depth within MaxDepth, and
// at least one key point on every leaf.
func (o *Outline) Validate() error {
	if len(o.Nodes) == 0 {
		return fmt.Errorf("outline has no sections")
	}

	ids := make(map[int]bool)
	var validate func(ns []*Node, depth int) error
	validate = func(ns []*Node, depth int) error {
		if depth > MaxDepth {
			return fmt.Errorf("outline exceeds depth %d", MaxDepth)
		}
		titles := make(map[string]bool, len(ns))
		for _, n := range ns {
			title := strings.TrimSpace(n.Title)
			if title == "" {
				return fmt.Errorf("node %d has an empty title", n.ID)
			}
			key := strings.ToLower(title)
			if titles[key] {
				return fmt.Errorf("duplicate sibling title %q", title)
			}
			titles[key] = true

			if ids[n.ID] {
				return fmt.Errorf("duplicate outline id %d", n.ID)
			}
			ids[n.ID] = true

			if n.IsLeaf() && len(n.KeyPoints) == 0 {
				return fmt.Errorf("leaf %q has no key points", title)
			}
			if err := validate(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return validate(o.Nodes, 1)
}

// assignIDs numbers nodes in document order starting at 1.
func (o *Outline) assignIDs() {
	next := 1
	o.Walk(func(n *Node, _ int) {
		n.ID = next
		next++
	})
}

// maxID returns the highest id in use.
func (o *Outline) maxID() int {
	max := 0
	o.Walk(func(n *Node, _ int) {
		if n.ID > max {
			max = n.ID
		}
	})
	return max
}
