// Package events provides the per-session typed event stream that every
// pipeline component publishes progress to and the transport layer renders
// as server-sent events.
package events

import (
	"time"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindSessionStarted   Kind = "session_started"
	KindStepStarted      Kind = "step_started"
	KindStepProgress     Kind = "step_progress"
	KindStepCompleted    Kind = "step_completed"
	KindModelUsage       Kind = "model_usage"
	KindAnalysisResult   Kind = "analysis_result"
	KindSectionGenerated Kind = "section_generated"
	KindError            Kind = "error"
	KindFinal            Kind = "final"
)

// Terminal reports whether this kind ends a session stream.
func (k Kind) Terminal() bool {
	return k == KindError || k == KindFinal
}

// Event is one record on a session stream. Seq is strictly monotone within
// a session; Step and Iteration attribute the event to its origin.
type Event struct {
	Seq       uint64    `json:"seq"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Step      string    `json:"step,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// SessionPayload accompanies SessionStarted.
type SessionPayload struct {
	Topic      string `json:"topic"`
	ReportType string `json:"report_type"`
	Replayed   bool   `json:"replayed,omitempty"`
}

// ProgressPayload accompanies StepStarted, StepProgress, and StepCompleted.
type ProgressPayload struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// UsageRecord accompanies ModelUsage. Counters are monotone per session.
type UsageRecord struct {
	Provider     string `json:"model_provider"`
	Model        string `json:"model_name"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	WallTimeMS   int64  `json:"wall_time_ms"`
}

// AnalysisPayload accompanies AnalysisResult with the dimensional breakdown.
type AnalysisPayload struct {
	Total          float64            `json:"total"`
	Dimensions     map[string]float64 `json:"dimensions"`
	DocumentCount  int                `json:"document_count"`
	MissingAspects []string           `json:"missing_aspects,omitempty"`
	WeakSources    []string           `json:"weak_sources,omitempty"`
	Staleness      float64            `json:"staleness,omitempty"`
}

// SectionPayload accompanies SectionGenerated.
type SectionPayload struct {
	OutlineID int    `json:"outline_id"`
	Title     string `json:"title"`
	WordCount int    `json:"word_count"`
	Citations int    `json:"citations"`
}

// ErrorPayload accompanies Error and carries the taxonomy type.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FinalPayload accompanies Final with the assembled artifact.
type FinalPayload struct {
	Content  string         `json:"content"`
	FilePath string         `json:"file_path,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UsageTotals aggregates ModelUsage records for report metadata.
type UsageTotals struct {
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Calls        int            `json:"calls"`
	ByModel      map[string]int `json:"by_model,omitempty"`
}
