package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/skincare-rag/internal/bootstrap"
	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
	"github.com/kirillkom/skincare-rag/internal/observability/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:           "ask [question]",
		Short:         "Answer skincare questions from the knowledge base",
		Long:          "Answers the given question, or reads questions from stdin until 'exit' when none is given.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := logging.NewJSONLoggerTo(os.Stderr, "ask", cfg.LogLevel)
			slog.SetDefault(logger)

			app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
				Logger:           logger,
				WithLexicalIndex: domain.ResolveMode(mode).UsesHybrid,
			})
			if err != nil {
				logger.Error("bootstrap_failed", "error", err)
				return err
			}
			defer app.Close()

			if len(args) > 0 {
				return askOnce(cmd.Context(), cmd.OutOrStdout(), app.Answers, strings.Join(args, " "), mode)
			}
			return askLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), app.Answers, mode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeBaseline), "retrieval mode")
	return cmd
}

// askLoop answers one question per input line. Collaborator failures are
// reported and the loop continues.
func askLoop(ctx context.Context, in io.Reader, out io.Writer, answers ports.AnswerService, mode string) error {
	fmt.Fprintln(out, "Enter your skincare question (or 'exit' to quit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(question, "exit") {
			fmt.Fprintln(out, "Bye!")
			return nil
		}
		if question == "" {
			continue
		}
		if err := askOnce(ctx, out, answers, question, mode); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, "error:", err)
		}
	}
}

func askOnce(ctx context.Context, out io.Writer, answers ports.AnswerService, question, mode string) error {
	answer, err := answers.Answer(ctx, question, mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n--- answer (%s) ---\n%s\n", answer.Mode, answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Fprintf(out, "sources: %s\n", strings.Join(domain.DocIDs(answer.Sources), ", "))
	}
	fmt.Fprintln(out, "------------------")
	fmt.Fprintln(out)
	return nil
}
