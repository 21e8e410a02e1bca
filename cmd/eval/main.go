package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kirillkom/skincare-rag/internal/bootstrap"
	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/observability/logging"
)

type evalFlags struct {
	modes     []string
	questions string
	plan      string
	reportDir string
	persistDB bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags evalFlags
	cmd := &cobra.Command{
		Use:           "eval",
		Short:         "Evaluate retrieval modes against a labeled question set",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runEval(cmd.Context(), cmd.OutOrStdout(), flags)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "eval:", err)
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&flags.modes, "modes", nil, "comma-separated modes to evaluate (default: all)")
	cmd.Flags().StringVar(&flags.questions, "questions", "", "question set JSONL path (default: QUESTION_SET_PATH)")
	cmd.Flags().StringVar(&flags.plan, "plan", "", "YAML evaluation plan")
	cmd.Flags().StringVar(&flags.reportDir, "report-dir", "", "directory for evaluation_report_<mode>.json files")
	cmd.Flags().BoolVar(&flags.persistDB, "persist-db", false, "also store reports in Postgres")
	return cmd
}

// resolveRun merges env config, the optional plan and explicit flags, in
// increasing precedence.
func resolveRun(cfg config.Config, flags evalFlags) (config.Config, []string, error) {
	modes := flags.modes
	if flags.plan != "" {
		plan, err := config.LoadEvalPlan(flags.plan)
		if err != nil {
			return cfg, nil, err
		}
		cfg = plan.Apply(cfg)
		if len(modes) == 0 {
			modes = plan.Modes
		}
	}
	if flags.questions != "" {
		cfg.QuestionSetPath = flags.questions
	}
	if flags.reportDir != "" {
		cfg.ReportDir = flags.reportDir
	}
	return cfg, modes, nil
}

func runEval(ctx context.Context, out io.Writer, flags evalFlags) error {
	cfg, modes, err := resolveRun(config.Load(), flags)
	if err != nil {
		return err
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, "eval", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:       logger,
		WithDatabase: flags.persistDB,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	reports, runErr := app.Harness.Run(ctx, modes, cfg.QuestionSetPath)
	writeSummary(out, reports)
	return runErr
}

func writeSummary(out io.Writer, reports map[domain.ModeName]*domain.EvaluationReport) {
	if len(reports) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tQUESTIONS\tHIT@3\tHIT@5\tRECALL@3\tRECALL@5\tRULE@3\tPRODUCT@3\tMSS@3")
	for _, mode := range domain.AllModes() {
		r, ok := reports[mode.Name]
		if !ok || r == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			r.Mode, r.TotalQuestions, r.HitAt3, r.HitAt5, r.RecallAt3, r.RecallAt5,
			r.RulePresenceAt3, r.ProductPresenceAt3, r.MSSRecallAt3)
	}
	_ = tw.Flush()
}
