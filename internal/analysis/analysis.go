// Package analysis invokes the external transcript analyzer. The
// analyzer is any program that accepts a JSONL transcript path as its
// final argument, writes summary.md next to the input, and exits zero.
// An empty command disables analysis entirely.
package analysis

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scrollback/internal/logging"
)

// SummaryName is the file the analyzer writes next to its input.
const SummaryName = "summary.md"

// Runner executes the configured analyzer against exported transcripts.
type Runner struct {
	// Command is the analyzer binary; empty disables analysis.
	Command string
	// Args is the argv prefix inserted before the transcript path, e.g.
	// a script path when Command is an interpreter.
	Args []string
	// Timeout bounds one analyzer run.
	Timeout time.Duration
}

// New returns a Runner. A zero timeout falls back to one minute.
func New(command string, args []string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Runner{Command: command, Args: args, Timeout: timeout}
}

// Enabled reports whether an analyzer command is configured.
func (r *Runner) Enabled() bool {
	return r.Command != ""
}

// SummaryPath returns where the analyzer writes its summary for the
// given transcript.
func SummaryPath(transcriptPath string) string {
	return filepath.Join(filepath.Dir(transcriptPath), SummaryName)
}

// Analyze runs the analyzer on the transcript and returns the summary
// text it wrote. The caller is expected to skip analysis for empty
// transcripts; this only enforces that the input exists.
func (r *Runner) Analyze(ctx context.Context, transcriptPath string) (string, error) {
	if !r.Enabled() {
		return "", fmt.Errorf("no analyzer command configured")
	}
	if _, err := os.Stat(transcriptPath); err != nil {
		return "", fmt.Errorf("transcript missing: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	argv := append(append([]string{}, r.Args...), transcriptPath)
	logging.Analysis("running analyzer: %s %s", r.Command, strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, r.Command, argv...)
	cmd.Dir = filepath.Dir(transcriptPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logging.AnalysisWarn("analyzer failed: %v", err)
		return "", fmt.Errorf("analyzer failed: %w, output: %s", err, string(output))
	}

	summary, err := os.ReadFile(SummaryPath(transcriptPath))
	if err != nil {
		return "", fmt.Errorf("analyzer exited cleanly but wrote no summary: %w", err)
	}
	logging.Analysis("analyzer wrote %d bytes of summary", len(summary))
	return string(summary), nil
}
