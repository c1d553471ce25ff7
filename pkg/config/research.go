package config

import (
	"fmt"
)

// Hard ceilings on caller-supplied research knobs.
const (
	MaxIterationsCeiling = 10
	MaxDaysBack          = 365
)

// ResearchConfig configures the iterative quality-gated loop.
type ResearchConfig struct {
	// MaxIterations bounds the reflect→search→re-score loop.
	MaxIterations int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty" jsonschema:"title=Max Iterations,description=Iteration ceiling,minimum=1,maximum=10,default=3"`

	// QualityThreshold is the aggregate score at which the loop accepts.
	QualityThreshold float64 `yaml:"quality_threshold,omitempty" json:"quality_threshold,omitempty" jsonschema:"title=Quality Threshold,description=Accept threshold in [0 1],default=0.7"`

	// SessionBudget bounds a whole session, in seconds.
	SessionBudget int `yaml:"session_budget,omitempty" json:"session_budget,omitempty" jsonschema:"title=Session Budget,description=Whole-session wall time in seconds,default=600"`

	// IterationBudget bounds one iteration, in seconds.
	IterationBudget int `yaml:"iteration_budget,omitempty" json:"iteration_budget,omitempty" jsonschema:"title=Iteration Budget,description=Per-iteration wall time in seconds,default=120"`

	// DaysBack is the default retrieval recency window.
	DaysBack int `yaml:"days_back,omitempty" json:"days_back,omitempty" jsonschema:"title=Days Back,description=Default recency window in days,default=7"`

	// Language is the default report language tag.
	Language string `yaml:"language,omitempty" json:"language,omitempty" jsonschema:"title=Language,description=Default report language,default=zh-CN"`

	// EmitPartialOnCancel assembles a partial report from completed
	// sections when a session is cancelled mid-flight.
	EmitPartialOnCancel bool `yaml:"emit_partial_on_cancel,omitempty" json:"emit_partial_on_cancel,omitempty" jsonschema:"title=Emit Partial On Cancel,description=Emit a partial report on cancellation,default=false"`
}

// SetDefaults applies research defaults.
func (c *ResearchConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	if c.QualityThreshold == 0 {
		c.QualityThreshold = 0.7
	}
	if c.SessionBudget == 0 {
		c.SessionBudget = 600
	}
	if c.IterationBudget == 0 {
		c.IterationBudget = 120
	}
	if c.DaysBack == 0 {
		c.DaysBack = 7
	}
	if c.Language == "" {
		c.Language = "zh-CN"
	}
}

// Validate checks the research configuration.
func (c *ResearchConfig) Validate() error {
	if c.MaxIterations < 1 || c.MaxIterations > MaxIterationsCeiling {
		return fmt.Errorf("max_iterations must be in [1, %d]", MaxIterationsCeiling)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be in [0, 1]")
	}
	if c.SessionBudget < 1 {
		return fmt.Errorf("session_budget must be positive")
	}
	if c.IterationBudget < 1 {
		return fmt.Errorf("iteration_budget must be positive")
	}
	if c.DaysBack < 1 || c.DaysBack > MaxDaysBack {
		return fmt.Errorf("days_back must be in [1, %d]", MaxDaysBack)
	}
	return nil
}

// AnalysisConfig tunes document scoring.
type AnalysisConfig struct {
	// DiversityPenalty scales the aggregate-quality deduction applied
	// when sources concentrate on few providers.
	DiversityPenalty float64 `yaml:"diversity_penalty,omitempty" json:"diversity_penalty,omitempty" jsonschema:"title=Diversity Penalty,description=Source concentration penalty coefficient,default=0.15"`

	// StalenessHorizonDays marks documents older than this as stale for
	// the gap report.
	StalenessHorizonDays int `yaml:"staleness_horizon_days,omitempty" json:"staleness_horizon_days,omitempty" jsonschema:"title=Staleness Horizon,description=Staleness horizon in days,default=365"`
}

// SetDefaults applies analysis defaults.
func (c *AnalysisConfig) SetDefaults() {
	if c.DiversityPenalty == 0 {
		c.DiversityPenalty = 0.15
	}
	if c.StalenessHorizonDays == 0 {
		c.StalenessHorizonDays = 365
	}
}

// Validate checks the analysis configuration.
func (c *AnalysisConfig) Validate() error {
	if c.DiversityPenalty < 0 || c.DiversityPenalty > 1 {
		return fmt.Errorf("diversity_penalty must be in [0, 1]")
	}
	if c.StalenessHorizonDays < 1 {
		return fmt.Errorf("staleness_horizon_days must be positive")
	}
	return nil
}

// WriterConfig holds section writer defaults; per-task kwargs override.
type WriterConfig struct {
	// Style of section prose (professional, academic, casual, technical).
	Style string `yaml:"style,omitempty" json:"style,omitempty" jsonschema:"title=Style,description=Prose style,enum=professional,enum=academic,enum=casual,enum=technical,default=professional"`

	// Tone of section prose (objective, persuasive, analytical).
	Tone string `yaml:"tone,omitempty" json:"tone,omitempty" jsonschema:"title=Tone,description=Prose tone,enum=objective,enum=persuasive,enum=analytical,default=objective"`

	// Depth of section coverage (brief, detailed, comprehensive).
	Depth string `yaml:"depth,omitempty" json:"depth,omitempty" jsonschema:"title=Depth,description=Coverage depth,enum=brief,enum=detailed,enum=comprehensive,default=detailed"`

	// Audience the report addresses.
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty" jsonschema:"title=Audience,description=Target audience,default=industry analysts"`

	// MinSectionChars and MaxSectionChars bound section length.
	MinSectionChars int `yaml:"min_section_chars,omitempty" json:"min_section_chars,omitempty" jsonschema:"title=Min Section Chars,description=Section length floor,default=800"`
	MaxSectionChars int `yaml:"max_section_chars,omitempty" json:"max_section_chars,omitempty" jsonschema:"title=Max Section Chars,description=Section length ceiling,default=4000"`

	// SectionWorkers caps the bounded section-writing pool.
	SectionWorkers int `yaml:"section_workers,omitempty" json:"section_workers,omitempty" jsonschema:"title=Section Workers,description=Section pool cap,maximum=6,default=6"`

	// IncludeExamples asks the writer to work concrete examples in.
	IncludeExamples bool `yaml:"include_examples,omitempty" json:"include_examples,omitempty" jsonschema:"title=Include Examples,description=Include concrete examples,default=true"`

	// IncludeCitations renders inline Markdown citations and collects
	// them for the reference list.
	IncludeCitations *bool `yaml:"include_citations,omitempty" json:"include_citations,omitempty" jsonschema:"title=Include Citations,description=Render inline citations,default=true"`
}

// SetDefaults applies writer defaults.
func (c *WriterConfig) SetDefaults() {
	if c.Style == "" {
		c.Style = "professional"
	}
	if c.Tone == "" {
		c.Tone = "objective"
	}
	if c.Depth == "" {
		c.Depth = "detailed"
	}
	if c.Audience == "" {
		c.Audience = "industry analysts"
	}
	if c.MinSectionChars == 0 {
		c.MinSectionChars = 800
	}
	if c.MaxSectionChars == 0 {
		c.MaxSectionChars = 4000
	}
	if c.SectionWorkers == 0 {
		c.SectionWorkers = 6
	}
	if c.IncludeCitations == nil {
		c.IncludeCitations = BoolPtr(true)
	}
}

// Validate checks the writer configuration.
func (c *WriterConfig) Validate() error {
	switch c.Style {
	case "professional", "academic", "casual", "technical":
	default:
		return fmt.Errorf("invalid style %q", c.Style)
	}
	switch c.Tone {
	case "objective", "persuasive", "analytical":
	default:
		return fmt.Errorf("invalid tone %q", c.Tone)
	}
	switch c.Depth {
	case "brief", "detailed", "comprehensive":
	default:
		return fmt.Errorf("invalid depth %q", c.Depth)
	}
	if c.MinSectionChars < 0 || c.MaxSectionChars < c.MinSectionChars {
		return fmt.Errorf("section length band is inverted")
	}
	if c.SectionWorkers < 1 || c.SectionWorkers > 6 {
		return fmt.Errorf("section_workers must be in [1, 6]")
	}
	return nil
}

// ExtractConfig configures optional full-text enrichment of academic
// results between the research loop and section writing.
type ExtractConfig struct {
	// Enabled turns full-text fetching on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty" jsonschema:"title=Enabled,description=Fetch full text for academic results,default=false"`

	// MaxBytes caps the size of a fetched body.
	MaxBytes int64 `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty" jsonschema:"title=Max Bytes,description=Fetched body size cap,default=10485760"`

	// MaxDocs caps full-text fetches per session.
	MaxDocs int `yaml:"max_docs,omitempty" json:"max_docs,omitempty" jsonschema:"title=Max Docs,description=Full-text fetches per session,default=5"`

	// MaxChars caps the extracted text carried into a document.
	MaxChars int `yaml:"max_chars,omitempty" json:"max_chars,omitempty" jsonschema:"title=Max Chars,description=Extracted text length cap,default=20000"`

	// Timeout bounds one fetch, in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"title=Timeout,description=Per-fetch timeout in seconds,default=30"`
}

// SetDefaults applies extraction defaults.
func (c *ExtractConfig) SetDefaults() {
	if c.MaxBytes == 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxDocs == 0 {
		c.MaxDocs = 5
	}
	if c.MaxChars == 0 {
		c.MaxChars = 20000
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
}

// Validate checks the extraction configuration.
func (c *ExtractConfig) Validate() error {
	if c.MaxBytes < 1 {
		return fmt.Errorf("max_bytes must be positive")
	}
	if c.MaxDocs < 1 {
		return fmt.Errorf("max_docs must be positive")
	}
	if c.MaxChars < 1 {
		return fmt.Errorf("max_chars must be positive")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// OutputConfig configures the report artifact sink.
type OutputConfig struct {
	// Dir receives report artifacts.
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty" jsonschema:"title=Dir,description=Artifact output directory,default=reports"`

	// WriteBOM prefixes artifacts with a UTF-8 byte order mark so
	// legacy spreadsheet and editor tooling detects the encoding.
	WriteBOM *bool `yaml:"write_bom,omitempty" json:"write_bom,omitempty" jsonschema:"title=Write BOM,description=Prefix artifacts with a UTF-8 BOM,default=true"`
}

// SetDefaults applies output defaults.
func (c *OutputConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "reports"
	}
	if c.WriteBOM == nil {
		c.WriteBOM = BoolPtr(true)
	}
}
