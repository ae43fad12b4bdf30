package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// GitHubOutputEnv names the file GitHub Actions reads step outputs from.
const GitHubOutputEnv = "GITHUB_OUTPUT"

// Output writes the id and URL of finished runs to w and, when configured,
// appends workflow_id/workflow_url step outputs to the GitHub output file.
type Output struct {
	mu         sync.Mutex
	w          io.Writer
	outputFile string
}

// NewOutput writes to w and to the file named by GITHUB_OUTPUT, if any.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w, outputFile: os.Getenv(GitHubOutputEnv)}
}

// NewFileOutput writes to w and appends step outputs to path.
func NewFileOutput(w io.Writer, path string) *Output {
	return &Output{w: w, outputFile: path}
}

// RunFinished emits the run identifier and URL.
func (o *Output) RunFinished(rec types.RunRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := fmt.Fprintf(o.w, "workflow_id=%s\nworkflow_url=%s\nconclusion=%s\n", rec.ID, rec.HTMLURL, rec.Conclusion); err != nil {
		return fmt.Errorf("writing run output: %w", err)
	}
	if o.outputFile == "" {
		return nil
	}

	f, err := os.OpenFile(o.outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", o.outputFile, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "workflow_id=%s\nworkflow_url=%s\n", rec.ID, rec.HTMLURL); err != nil {
		return fmt.Errorf("writing %s: %w", o.outputFile, err)
	}
	return nil
}
