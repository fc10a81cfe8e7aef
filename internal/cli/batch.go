package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/shadowscore/internal/ledger"
	"github.com/ppiankov/shadowscore/internal/pipeline"
	"github.com/ppiankov/shadowscore/internal/worker"
)

var (
	outputDir    string
	batchTimeout time.Duration
	batchNoLedge bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Score many independent runs from a manifest in parallel",
	Long: `Batch scores every (contest, agent) job listed in a manifest:
- Jobs are scored concurrently with a bounded worker pool
- Successful runs are appended to the ledger in manifest order
- Each AuditRun is written to the output directory when one is given

Manifest:
  jobs:
    - contest: c4-2026-01
      agent: persona-a
      predicted: persona-a.json
      actual: published.yaml

Example:
  shadowscore batch jobs.yaml
  shadowscore batch jobs.yaml --concurrency 8 --output-dir ./runs`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Int("concurrency", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write each AuditRun as JSON into this directory")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchNoLedge, "no-ledger", false, "do not append runs to the ledger")

	_ = viper.BindPFlag("concurrency.workers", batchCmd.Flags().Lookup("concurrency"))
}

func runBatch(cmd *cobra.Command, args []string) error {
	manifest := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  shadowscore batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Manifest:     %s\n", manifest)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Similarity:   %s\n", cfg.Similarity.Backend)
	if !batchNoLedge {
		fmt.Fprintf(os.Stderr, "  Ledger:       %s\n", cfg.Ledger.Backend)
	}
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "\n")

	jobs, err := worker.ReadJobsFromManifest(manifest)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d jobs\n\n", len(jobs))

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	var appender worker.Appender
	if !batchNoLedge {
		store, err := ledger.Open(ctx, cfg.Ledger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer func() { _ = store.Close() }()
		appender = store
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	processor := worker.NewBatchProcessor(engineScorer{engine: engine}, appender, cfg.Concurrency.Workers)
	results := processor.Process(ctx, jobs)

	renderer := pipeline.NewRenderer(cfg.Output.Pretty)
	successCount := 0
	failureCount := 0

	for _, result := range results {
		label := result.Job.ContestID + "/" + result.Job.AgentID
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", label, result.Error)
			continue
		}
		successCount++

		if outputDir != "" {
			path := filepath.Join(outputDir, sanitizeFilename(label)+".json")
			if err := renderer.RenderJSON(result.Run, path); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", label, err)
				continue
			}
		}

		m := result.Run.Metrics
		fmt.Fprintf(os.Stderr, "✓ %s (P %s, R %s, F1 %s)\n", label,
			pipeline.FormatMetric(m.Precision), pipeline.FormatMetric(m.Recall), pipeline.FormatMetric(m.F1))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d jobs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d jobs failed", failureCount, len(results))
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		s = "run"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
