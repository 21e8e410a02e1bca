package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
)

const defaultQuestionConcurrency = 4

type EvaluationOptions struct {
	TopK                int
	QuestionConcurrency int
}

// EvaluationObserver receives per-mode evaluation outcomes.
type EvaluationObserver interface {
	RecordEvaluation(mode domain.ModeName, questions int, duration time.Duration, err error)
}

type noopEvaluationObserver struct{}

func (noopEvaluationObserver) RecordEvaluation(domain.ModeName, int, time.Duration, error) {}

// EvaluationHarness scores retrieval modes against a labeled question set.
// Each mode runs as an isolated task with its own lexical index; a failing
// mode does not cancel the others.
type EvaluationHarness struct {
	retrieval      *RetrievalUseCase
	lexicalBuilder ports.LexicalIndexBuilder
	questions      ports.QuestionSource
	stores         []ports.ReportStore
	opts           EvaluationOptions
	observer       EvaluationObserver
	logger         *slog.Logger
	now            func() time.Time
}

func NewEvaluationHarness(
	retrieval *RetrievalUseCase,
	lexicalBuilder ports.LexicalIndexBuilder,
	questions ports.QuestionSource,
	stores []ports.ReportStore,
	opts EvaluationOptions,
	logger *slog.Logger,
) *EvaluationHarness {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.QuestionConcurrency <= 0 {
		opts.QuestionConcurrency = defaultQuestionConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluationHarness{
		retrieval:      retrieval,
		lexicalBuilder: lexicalBuilder,
		questions:      questions,
		stores:         stores,
		opts:           opts,
		observer:       noopEvaluationObserver{},
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (h *EvaluationHarness) SetObserver(observer EvaluationObserver) {
	if observer == nil {
		h.observer = noopEvaluationObserver{}
		return
	}
	h.observer = observer
}

// Run evaluates modes against the question set at path under a fresh run id.
func (h *EvaluationHarness) Run(ctx context.Context, modes []string, questionSetPath string) (map[domain.ModeName]*domain.EvaluationReport, error) {
	return h.RunRequest(ctx, domain.EvaluationRequest{
		RunID:           uuid.NewString(),
		Modes:           modes,
		QuestionSetPath: questionSetPath,
		RequestedAt:     h.now(),
	})
}

// RunRequest loads the question set, evaluates every requested mode and
// persists one report per successful mode. Reports of successful modes are
// returned even when other modes fail; the error joins all mode failures.
func (h *EvaluationHarness) RunRequest(ctx context.Context, req domain.EvaluationRequest) (map[domain.ModeName]*domain.EvaluationReport, error) {
	questions, err := h.questions.LoadQuestions(ctx, req.QuestionSetPath)
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	return h.evaluate(ctx, req.RunID, resolveModes(req.Modes), questions, true)
}

// Evaluate scores modes against in-memory questions without persisting reports.
func (h *EvaluationHarness) Evaluate(ctx context.Context, modes []string, questions []domain.EvalQuestion) (map[domain.ModeName]*domain.EvaluationReport, error) {
	return h.evaluate(ctx, "", resolveModes(modes), questions, false)
}

// resolveModes maps raw names to canonical modes, dropping duplicates. An
// empty list selects every mode.
func resolveModes(raw []string) []domain.Mode {
	if len(raw) == 0 {
		return domain.AllModes()
	}
	seen := make(map[domain.ModeName]struct{}, len(raw))
	out := make([]domain.Mode, 0, len(raw))
	for _, name := range raw {
		mode := domain.ResolveMode(name)
		if _, dup := seen[mode.Name]; dup {
			continue
		}
		seen[mode.Name] = struct{}{}
		out = append(out, mode)
	}
	return out
}

type modeOutcome struct {
	report *domain.EvaluationReport
	err    error
}

func (h *EvaluationHarness) evaluate(
	ctx context.Context,
	runID string,
	modes []domain.Mode,
	questions []domain.EvalQuestion,
	persist bool,
) (map[domain.ModeName]*domain.EvaluationReport, error) {
	outcomes := make([]modeOutcome, len(modes))

	var g errgroup.Group
	for i, mode := range modes {
		i, mode := i, mode
		g.Go(func() error {
			started := time.Now()
			report, err := h.evaluateMode(ctx, mode, questions)
			if err == nil {
				report.RunID = runID
				if persist {
					if err = h.saveReport(ctx, report); err != nil {
						report = nil
					}
				}
			}
			h.observer.RecordEvaluation(mode.Name, len(questions), time.Since(started), err)
			if err != nil {
				h.logger.Error("evaluation_mode_failed", "run_id", runID, "mode", mode.Name, "error", err)
				err = fmt.Errorf("mode %s: %w", mode.Name, err)
			}
			outcomes[i] = modeOutcome{report: report, err: err}
			return nil
		})
	}
	_ = g.Wait()

	reports := make(map[domain.ModeName]*domain.EvaluationReport, len(modes))
	var errs []error
	for _, outcome := range outcomes {
		if outcome.report != nil {
			reports[outcome.report.Mode] = outcome.report
		}
		if outcome.err != nil {
			errs = append(errs, outcome.err)
		}
	}
	return reports, errors.Join(errs...)
}

func (h *EvaluationHarness) evaluateMode(ctx context.Context, mode domain.Mode, questions []domain.EvalQuestion) (*domain.EvaluationReport, error) {
	startedAt := h.now()
	h.logger.Info("evaluation_mode_started", "mode", mode.Name, "questions", len(questions))

	retrieval := h.retrieval
	if mode.UsesHybrid && h.lexicalBuilder != nil {
		index, err := h.lexicalBuilder.Build(ctx)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCollaborator, "build lexical index", err)
		}
		retrieval = retrieval.WithLexical(index)
	}

	results := make([]domain.QuestionResult, len(questions))
	qg, qctx := errgroup.WithContext(ctx)
	qg.SetLimit(h.opts.QuestionConcurrency)
	for i, q := range questions {
		i, q := i, q
		qg.Go(func() error {
			result, err := h.evaluateQuestion(qctx, retrieval, mode, q)
			if err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
			results[i] = result
			return nil
		})
	}
	if err := qg.Wait(); err != nil {
		return nil, err
	}

	var acc metricAccumulator
	for i, q := range questions {
		acc.add(q, results[i])
	}
	report := &domain.EvaluationReport{
		Mode:        mode.Name,
		StartedAt:   startedAt,
		FinishedAt:  h.now(),
		PerQuestion: results,
	}
	acc.fill(report)

	h.logger.Info("evaluation_mode_completed",
		"mode", mode.Name,
		"questions", report.TotalQuestions,
		"hit_at_3", report.HitAt3,
		"hit_at_5", report.HitAt5,
		"recall_at_3", report.RecallAt3,
		"recall_at_5", report.RecallAt5,
		"rule_presence_at_3", report.RulePresenceAt3,
		"product_presence_at_3", report.ProductPresenceAt3,
		"mss_recall_at_3", report.MSSRecallAt3,
	)
	return report, nil
}

func (h *EvaluationHarness) evaluateQuestion(
	ctx context.Context,
	retrieval *RetrievalUseCase,
	mode domain.Mode,
	q domain.EvalQuestion,
) (domain.QuestionResult, error) {
	denseText, err := h.denseText(ctx, retrieval, mode, q)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	retrieved, err := retrieval.RetrieveWithDenseText(ctx, q.Query, denseText, mode, h.opts.TopK)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	return scoreQuestion(q, denseText, retrieved), nil
}

// denseText prefers a precomputed rewrite over a fresh generation call.
func (h *EvaluationHarness) denseText(ctx context.Context, retrieval *RetrievalUseCase, mode domain.Mode, q domain.EvalQuestion) (string, error) {
	if !mode.UsesRewrite {
		return q.Query, nil
	}
	if text := q.PrecomputedText(); text != "" {
		return text, nil
	}
	return retrieval.DenseText(ctx, q.Query, mode)
}

func (h *EvaluationHarness) saveReport(ctx context.Context, report *domain.EvaluationReport) error {
	for _, store := range h.stores {
		location, err := store.SaveReport(ctx, report)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		h.logger.Info("evaluation_report_saved", "mode", report.Mode, "location", location)
	}
	return nil
}
