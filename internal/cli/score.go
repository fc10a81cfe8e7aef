package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/shadowscore/internal/input"
	"github.com/ppiankov/shadowscore/internal/ledger"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/pipeline"
)

var (
	predictedPath string
	actualPath    string
	contestID     string
	agentID       string
	outJSON       string
	supersedes    string
	noLedger      bool
	timeout       time.Duration
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one persona's findings against a contest's published findings",
	Long: `Score normalizes predicted and actual findings, matches them one-to-one,
classifies each pair and computes precision, recall and F1.

The AuditRun is written as JSON and one entry is appended to the
performance ledger. Re-scoring always creates a new run; use --supersedes
to mark it as a correction of an earlier run.

Example:
  shadowscore score --contest c4-2026-01 --agent persona-a \
      --predicted persona-a.json --actual published.yaml
  shadowscore score ... --json run.json --similarity edit
  shadowscore score ... --supersedes 0b7c... --no-ledger`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&predictedPath, "predicted", "", "predicted findings file (JSON or YAML)")
	scoreCmd.Flags().StringVar(&actualPath, "actual", "", "published findings file (JSON or YAML)")
	scoreCmd.Flags().StringVar(&contestID, "contest", "", "contest id")
	scoreCmd.Flags().StringVar(&agentID, "agent", "", "persona / agent id")
	scoreCmd.Flags().StringVar(&outJSON, "json", "-", "output JSON path (- for stdout)")
	scoreCmd.Flags().StringVar(&supersedes, "supersedes", "", "id of an earlier run this one corrects")
	scoreCmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not append the run to the ledger")
	scoreCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout (embedding lookups and ledger I/O)")
	scoreCmd.Flags().String("similarity", "", "text similarity backend (jaccard, edit, openai, ollama)")

	_ = viper.BindPFlag("similarity.backend", scoreCmd.Flags().Lookup("similarity"))

	for _, name := range []string{"predicted", "actual", "contest", "agent"} {
		_ = scoreCmd.MarkFlagRequired(name)
	}
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	predicted, err := input.LoadFindings(predictedPath)
	if err != nil {
		return fmt.Errorf("load predicted: %w", err)
	}
	actual, err := input.LoadFindings(actualPath)
	if err != nil {
		return fmt.Errorf("load actual: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Contest: %s\n", contestID)
		fmt.Fprintf(os.Stderr, "Agent: %s\n", agentID)
		fmt.Fprintf(os.Stderr, "Similarity: %s\n", cfg.Similarity.Backend)
		fmt.Fprintf(os.Stderr, "✓ Loaded %d predicted and %d actual findings\n\n", len(predicted), len(actual))
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}

	run, err := engine.ScoreRequest(ctx, pipeline.Request{
		ContestID:  contestID,
		AgentID:    agentID,
		Predicted:  predicted,
		Actual:     actual,
		Supersedes: supersedes,
	})
	if err != nil {
		return fmt.Errorf("score failed: %w", err)
	}

	if verbose {
		for _, w := range run.Warnings {
			fmt.Fprintf(os.Stderr, "⚠ %s\n", w)
		}
	}

	renderer := pipeline.NewRenderer(cfg.Output.Pretty)
	if err := renderer.RenderJSON(run, outJSON); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	if outJSON != "-" && outJSON != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", outJSON)
	}

	renderer.RenderSummary(os.Stderr, run)

	if noLedger {
		return nil
	}
	entry, err := recordRun(ctx, cfg.Ledger, run)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Recorded ledger entry #%d (%s)\n", entry.Seq, cfg.Ledger.Backend)

	return nil
}

// recordRun appends run to the configured ledger
func recordRun(ctx context.Context, cfg model.LedgerConfig, run *model.AuditRun) (model.LedgerEntry, error) {
	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Append(ctx, model.EntryFromRun(run, time.Now()))
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("record run: %w", err)
	}
	return entry, nil
}
