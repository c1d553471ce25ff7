package research

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/outline"
)

// ReportTypeAuto lets the classifier pick the report type.
const ReportTypeAuto = "auto"

// Task types that short-circuit the pipeline before outline planning.
const (
	TaskSearch   = "search"   // retrieval only, final payload lists ranked documents
	TaskAnalysis = "analysis" // retrieval + scoring, final payload is the quality digest
)

// Request describes one research session as submitted by a caller.
type Request struct {
	Topic      string `yaml:"topic" json:"topic"`
	ReportType string `yaml:"report_type,omitempty" json:"report_type,omitempty"`

	// DaysBack overrides the configured recency window.
	DaysBack int `yaml:"days,omitempty" json:"days,omitempty"`

	// Language overrides the configured report language.
	Language string `yaml:"language,omitempty" json:"language,omitempty"`

	// MaxIterations and QualityThreshold override the research loop
	// budgets; zero keeps the configured value.
	MaxIterations    int     `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	QualityThreshold float64 `yaml:"quality_threshold,omitempty" json:"quality_threshold,omitempty"`

	// Companies biases query generation toward the named organizations.
	Companies []string `yaml:"companies,omitempty" json:"companies,omitempty"`

	// IncludeCitations overrides the writer's citation setting; nil
	// keeps the configured value.
	IncludeCitations *bool `yaml:"include_citations,omitempty" json:"include_citations,omitempty"`

	// AutoConfirmOutline skips the outline approval gate.
	AutoConfirmOutline bool `yaml:"auto_confirm,omitempty" json:"auto_confirm,omitempty"`
}

// DecodeRequest builds a Request from loosely typed tool-call
// arguments ("5" for 5 and so on are accepted).
func DecodeRequest(args map[string]any) (Request, error) {
	var req Request
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return req, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return req, &ValidationError{Field: "arguments", Msg: err.Error()}
	}
	return req, nil
}

// Validate checks the request and applies defaults.
func (r *Request) Validate() error {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Topic == "" {
		return &ValidationError{Field: "topic", Msg: "must not be empty"}
	}
	if r.ReportType == "" {
		r.ReportType = ReportTypeAuto
	}
	switch r.ReportType {
	case ReportTypeAuto, TaskSearch, TaskAnalysis:
	default:
		if !outline.KnownType(r.ReportType) {
			return &ValidationError{Field: "report_type", Msg: fmt.Sprintf("unknown type %q", r.ReportType)}
		}
	}
	if r.DaysBack < 0 || r.DaysBack > config.MaxDaysBack {
		return &ValidationError{Field: "days_back", Msg: fmt.Sprintf("must be in [0, %d]", config.MaxDaysBack)}
	}
	if r.MaxIterations < 0 || r.MaxIterations > config.MaxIterationsCeiling {
		return &ValidationError{Field: "max_iterations", Msg: fmt.Sprintf("must be in [0, %d]", config.MaxIterationsCeiling)}
	}
	if r.QualityThreshold < 0 || r.QualityThreshold > 1 {
		return &ValidationError{Field: "quality_threshold", Msg: "must be in [0, 1]"}
	}
	return nil
}

// applyTo folds request overrides into a copy of the research config.
func (r *Request) applyTo(cfg config.ResearchConfig) config.ResearchConfig {
	if r.DaysBack > 0 {
		cfg.DaysBack = r.DaysBack
	}
	if r.Language != "" {
		cfg.Language = r.Language
	}
	if r.MaxIterations > 0 {
		cfg.MaxIterations = r.MaxIterations
	}
	if r.QualityThreshold > 0 {
		cfg.QualityThreshold = r.QualityThreshold
	}
	return cfg
}
