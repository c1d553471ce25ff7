// Package cli renders session event streams on a terminal and hosts
// the interactive prompts: outline approval and topic entry.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/kadirpekel/dossier/pkg/events"
)

// Display renders one session's event stream as colored status lines.
// It keeps a running model-usage tally and prints the totals with the
// final artifact path.
type Display struct {
	out io.Writer

	calls        int
	inputTokens  int
	outputTokens int

	step    *color.Color
	done    *color.Color
	detail  *color.Color
	failure *color.Color
	accent  *color.Color
}

// NewDisplay creates a display writing to out.
func NewDisplay(out io.Writer) *Display {
	return &Display{
		out:     out,
		step:    color.New(color.FgCyan),
		done:    color.New(color.FgGreen),
		detail:  color.New(color.Faint),
		failure: color.New(color.FgRed, color.Bold),
		accent:  color.New(color.Bold),
	}
}

// Render prints one event. Unknown payload shapes fall back to the
// status line without details.
func (d *Display) Render(ev events.Event) {
	switch ev.Kind {
	case events.KindSessionStarted:
		p, _ := ev.Payload.(events.SessionPayload)
		d.accent.Fprintf(d.out, "▸ %s", p.Topic)
		d.detail.Fprintf(d.out, "  (%s, session %s)\n", p.ReportType, ev.SessionID)

	case events.KindStepStarted:
		p, _ := ev.Payload.(events.ProgressPayload)
		d.step.Fprintf(d.out, "  → %s", ev.Step)
		if p.Message != "" {
			d.detail.Fprintf(d.out, "  %s", p.Message)
		}
		fmt.Fprintln(d.out)

	case events.KindStepProgress:
		p, _ := ev.Payload.(events.ProgressPayload)
		d.detail.Fprintf(d.out, "    … %s\n", p.Message)

	case events.KindStepCompleted:
		p, _ := ev.Payload.(events.ProgressPayload)
		d.done.Fprintf(d.out, "  ✓ %s", ev.Step)
		if p.Message != "" {
			d.detail.Fprintf(d.out, "  %s", p.Message)
		}
		fmt.Fprintln(d.out)

	case events.KindModelUsage:
		rec, ok := ev.Payload.(events.UsageRecord)
		if !ok {
			return
		}
		d.calls++
		d.inputTokens += rec.InputTokens
		d.outputTokens += rec.OutputTokens
		d.detail.Fprintf(d.out, "    ⋮ %s/%s %d→%d tokens (%dms)\n",
			rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.WallTimeMS)

	case events.KindAnalysisResult:
		p, ok := ev.Payload.(events.AnalysisPayload)
		if !ok {
			return
		}
		d.step.Fprintf(d.out, "  ◆ quality %.2f", p.Total)
		d.detail.Fprintf(d.out, "  (%d documents", p.DocumentCount)
		if len(p.MissingAspects) > 0 {
			d.detail.Fprintf(d.out, ", gaps: %s", strings.Join(p.MissingAspects, ", "))
		}
		d.detail.Fprintln(d.out, ")")

	case events.KindSectionGenerated:
		p, ok := ev.Payload.(events.SectionPayload)
		if !ok {
			return
		}
		d.done.Fprintf(d.out, "  ✓ section %q", p.Title)
		d.detail.Fprintf(d.out, "  %d words, %d citations\n", p.WordCount, p.Citations)

	case events.KindError:
		p, _ := ev.Payload.(events.ErrorPayload)
		d.failure.Fprintf(d.out, "✗ %s", p.Message)
		d.detail.Fprintf(d.out, "  (%s)\n", p.Type)

	case events.KindFinal:
		p, _ := ev.Payload.(events.FinalPayload)
		d.done.Fprint(d.out, "✓ report ready")
		if p.FilePath != "" {
			d.accent.Fprintf(d.out, "  %s", p.FilePath)
		}
		fmt.Fprintln(d.out)
		if d.calls > 0 {
			d.detail.Fprintf(d.out, "  %d model calls, %d input / %d output tokens\n",
				d.calls, d.inputTokens, d.outputTokens)
		}
	}
}
