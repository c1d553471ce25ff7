package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/kadirpekel/dossier/pkg/outline"
	"github.com/kadirpekel/dossier/pkg/research"
)

// Gate builds the interactive outline review gate: the planned outline
// prints, then the user approves, supplies refinement feedback, or
// aborts the session. When in is not a terminal the gate auto-approves
// so piped invocations never hang.
func Gate(in io.Reader, out io.Writer) research.OutlineGate {
	reader := bufio.NewReader(in)

	return func(ctx context.Context, o *outline.Outline) (bool, string, error) {
		if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return true, "", nil
		}

		printOutline(out, o)

		for {
			if err := ctx.Err(); err != nil {
				return false, "", err
			}
			fmt.Fprint(out, "Approve outline? [y]es / [f]eedback / [a]bort: ")

			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					return true, "", nil
				}
				return false, "", err
			}

			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes", "":
				return true, "", nil
			case "a", "abort":
				return false, "", fmt.Errorf("outline rejected: %w", research.ErrCancelled)
			case "f", "feedback":
				fmt.Fprint(out, "Feedback: ")
				feedback, err := reader.ReadString('\n')
				if err != nil {
					return false, "", err
				}
				return false, strings.TrimSpace(feedback), nil
			default:
				fmt.Fprintln(out, "Please answer y, f, or a.")
			}
		}
	}
}

// printOutline renders the section tree with key points.
func printOutline(out io.Writer, o *outline.Outline) {
	header := color.New(color.Bold)
	faint := color.New(color.Faint)

	header.Fprintf(out, "\nPlanned outline for %q (%s):\n", o.Topic, o.ReportType)
	o.Walk(func(n *outline.Node, depth int) {
		indent := strings.Repeat("  ", depth)
		fmt.Fprintf(out, "%s- %s\n", indent, n.Title)
		for _, kp := range n.KeyPoints {
			faint.Fprintf(out, "%s  · %s\n", indent, kp)
		}
	})
	fmt.Fprintln(out)
}
