package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/shadowscore/internal/ledger"
	"github.com/ppiankov/shadowscore/internal/model"
	"github.com/ppiankov/shadowscore/internal/pipeline"
)

var (
	ledgerAgent  string
	ledgerJSON   bool
	ledgerAll    bool
	trendWindow  int
	trendByCateg bool
)

// ledgerCmd represents the ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the performance ledger",
	Long: `The performance ledger is an append-only, hash-chained record of every
scored run. Entries are never rewritten: a correction is a new entry that
supersedes an earlier run, and trend queries skip superseded runs.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, store ledger.Store) error {
			var entries []model.LedgerEntry
			var err error
			if ledgerAll {
				entries, err = store.Entries(ctx, ledgerAgent)
			} else {
				entries, err = ledger.Effective(ctx, store, ledgerAgent)
			}
			if err != nil {
				return err
			}

			if ledgerJSON {
				return printJSON(entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "Ledger is empty")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tTIME\tAGENT\tCONTEST\tRUN\tPRECISION\tRECALL\tF1\tSUPERSEDES")
			for _, e := range entries {
				m := e.Metrics
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Seq, e.Timestamp.Format(time.RFC3339), e.AgentID, e.ContestID, e.AuditRunID,
					pipeline.FormatMetric(m.Precision), pipeline.FormatMetric(m.Recall), pipeline.FormatMetric(m.F1),
					e.Supersedes)
			}
			return tw.Flush()
		})
	},
}

var ledgerTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show an agent's rolling precision/recall/F1",
	Long: `Trend prints the agent's runs in ledger order with the moving average
over the last --window runs (0 = all runs). Superseded runs are skipped and
undefined metrics are left out of averages rather than counted as zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, store ledger.Store) error {
			entries, err := ledger.Effective(ctx, store, ledgerAgent)
			if err != nil {
				return err
			}

			series := ledger.Series(entries, trendWindow)
			overall := ledger.MovingAverage(entries, trendWindow)
			overall.AgentID = ledgerAgent

			var categories map[model.Category]ledger.Average
			if trendByCateg {
				categories = ledger.CategoryAverages(entries, trendWindow)
			}

			if ledgerJSON {
				return printJSON(struct {
					Agent      string                            `json:"agent_id"`
					Window     int                               `json:"window"`
					Average    ledger.Average                    `json:"average"`
					Series     []ledger.Point                    `json:"series"`
					Categories map[model.Category]ledger.Average `json:"categories,omitempty"`
				}{ledgerAgent, trendWindow, overall, series, categories})
			}

			if len(entries) == 0 {
				fmt.Fprintf(os.Stderr, "No runs recorded for %s\n", ledgerAgent)
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tCONTEST\tP\tR\tF1\tAVG P\tAVG R\tAVG F1")
			for _, p := range series {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Seq, p.ContestID,
					pipeline.FormatMetric(p.Run.Precision), pipeline.FormatMetric(p.Run.Recall), pipeline.FormatMetric(p.Run.F1),
					pipeline.FormatMetric(p.Rolling.Precision), pipeline.FormatMetric(p.Rolling.Recall), pipeline.FormatMetric(p.Rolling.F1))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Printf("\n✓ %s over %d runs: precision %s, recall %s, F1 %s\n", ledgerAgent, overall.Entries,
				pipeline.FormatMetric(overall.Precision), pipeline.FormatMetric(overall.Recall), pipeline.FormatMetric(overall.F1))

			if len(categories) > 0 {
				cats := make([]string, 0, len(categories))
				for c := range categories {
					cats = append(cats, string(c))
				}
				sort.Strings(cats)

				fmt.Println()
				tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CATEGORY\tRUNS\tAVG P\tAVG R\tAVG F1")
				for _, c := range cats {
					a := categories[model.Category(c)]
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", c, a.Entries,
						pipeline.FormatMetric(a.Precision), pipeline.FormatMetric(a.Recall), pipeline.FormatMetric(a.F1))
				}
				return tw.Flush()
			}
			return nil
		})
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the ledger hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, store ledger.Store) error {
			n, err := ledger.Verify(ctx, store)
			if errors.Is(err, ledger.ErrChainBroken) {
				fmt.Fprintf(os.Stderr, "✗ %v\n", err)
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Verified %d ledger entries\n", n)

			line, torn, err := ledger.CheckTail(ctx, store)
			if err != nil {
				return err
			}
			if torn {
				fmt.Fprintf(os.Stderr, "⚠ Line %d is an incomplete record; it is dropped on the next append\n", line)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerTrendCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)

	ledgerListCmd.Flags().StringVar(&ledgerAgent, "agent", "", "only entries of this agent")
	ledgerListCmd.Flags().BoolVar(&ledgerAll, "all", false, "include superseded runs")
	ledgerListCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print JSON instead of a table")

	ledgerTrendCmd.Flags().StringVar(&ledgerAgent, "agent", "", "agent id")
	ledgerTrendCmd.Flags().IntVar(&trendWindow, "window", 5, "moving average window in runs (0 = all)")
	ledgerTrendCmd.Flags().BoolVar(&trendByCateg, "by-category", false, "also average per vulnerability category")
	ledgerTrendCmd.Flags().BoolVar(&ledgerJSON, "json", false, "print JSON instead of a table")
	_ = ledgerTrendCmd.MarkFlagRequired("agent")
}

// withLedger opens the configured ledger for the duration of fn
func withLedger(fn func(ctx context.Context, store ledger.Store) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, store)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
