package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
)

// utf8BOM prefixes artifacts so legacy spreadsheet and editor tooling
// detects the encoding; CJK report content is unreadable without it in
// several common tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// maxTopicSlug bounds the topic portion of a filename.
const maxTopicSlug = 60

// Sink writes report artifacts to the output directory.
type Sink struct {
	cfg config.OutputConfig
	now func() time.Time
}

// NewSink creates a sink.
func NewSink(cfg config.OutputConfig) *Sink {
	return &Sink{cfg: cfg, now: time.Now}
}

// Write persists the report as Markdown and returns the file path.
func (s *Sink) Write(r *Report, reportType string) (string, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.md", SafeTopic(r.Topic), reportType, s.now().Format("20060102_150405"))
	path := filepath.Join(s.cfg.Dir, name)

	data := []byte(r.Content)
	if s.cfg.WriteBOM == nil || *s.cfg.WriteBOM {
		data = append(append([]byte{}, utf8BOM...), data...)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// SafeTopic sanitizes a topic for use in a filename: runs of anything
// outside letters and digits collapse to one underscore.
func SafeTopic(topic string) string {
	s := unsafeFilename.ReplaceAllString(strings.TrimSpace(topic), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "report"
	}
	runes := []rune(s)
	if len(runes) > maxTopicSlug {
		s = string(runes[:maxTopicSlug])
	}
	return s
}
