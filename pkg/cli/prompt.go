package cli

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
)

// PromptTopic interactively asks for a research topic when none was
// given on the command line. Empty input re-prompts; Ctrl-C and
// Ctrl-D cancel.
func PromptTopic() (string, error) {
	rl, err := readline.New("topic> ")
	if err != nil {
		return "", fmt.Errorf("failed to open prompt: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			// readline.ErrInterrupt for Ctrl-C, io.EOF for Ctrl-D.
			return "", fmt.Errorf("topic entry cancelled: %w", err)
		}
		if topic := strings.TrimSpace(line); topic != "" {
			return topic, nil
		}
	}
}
