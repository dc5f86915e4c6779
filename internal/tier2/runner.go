package tier2

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one reasoning turn: prompt in, reply out. Each call is a
// fresh invocation; the conversation transcript is carried in the prompt.
type Runner interface {
	Run(ctx context.Context, prompt string) (string, error)
}

// ExecRunner spawns a short-lived LLM CLI session per turn, the same way a
// human would run `claude -p "<prompt>"`.
type ExecRunner struct {
	Command string
}

// Run invokes the configured command with the prompt as its -p argument.
func (r *ExecRunner) Run(ctx context.Context, prompt string) (string, error) {
	name := r.Command
	if name == "" {
		name = "claude"
	}
	parts := strings.Fields(name)
	args := append(parts[1:], "-p", prompt)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tier2: run %s: %w", parts[0], err)
	}
	return string(output), nil
}
