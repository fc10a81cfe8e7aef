package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/shadowscore/internal/model"
)

// Renderer writes audit runs as JSON and prints human summaries
type Renderer struct {
	pretty bool
}

// NewRenderer creates a renderer; pretty indents JSON output
func NewRenderer(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// WriteJSON encodes run to w
func (r *Renderer) WriteJSON(w io.Writer, run *model.AuditRun) error {
	enc := json.NewEncoder(w)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encode audit run: %w", err)
	}
	return nil
}

// RenderJSON writes run to path, or to stdout when path is "" or "-"
func (r *Renderer) RenderJSON(run *model.AuditRun, path string) error {
	if path == "" || path == "-" {
		return r.WriteJSON(os.Stdout, run)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.WriteJSON(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RenderSummary prints a short status block for run to w
func (r *Renderer) RenderSummary(w io.Writer, run *model.AuditRun) {
	m := run.Metrics
	fmt.Fprintf(w, "✓ Scored %s on %s (run %s)\n", run.AgentID, run.ContestID, run.ID)
	fmt.Fprintf(w, "  Predicted: %d  Actual: %d\n", m.PredictedCount, m.ActualCount)
	fmt.Fprintf(w, "  Exact: %d  Partial: %d  FP: %d  FN: %d\n", m.Exact, m.Partial, m.FalsePositives, m.FalseNegatives)
	fmt.Fprintf(w, "  Precision: %s  Recall: %s  F1: %s\n", FormatMetric(m.Precision), FormatMetric(m.Recall), FormatMetric(m.F1))
	if n := len(run.Warnings); n > 0 {
		fmt.Fprintf(w, "  Warnings: %d (use --verbose to list)\n", n)
	}
}

// FormatMetric renders an optional metric; undefined values print as "n/a"
func FormatMetric(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
