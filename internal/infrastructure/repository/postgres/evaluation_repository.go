package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

const schemaLockKey int64 = 2026101901

type EvaluationRepository struct {
	db *sql.DB
}

func NewEvaluationRepository(db *sql.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

func (r *EvaluationRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS evaluation_reports (
	run_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	total_questions INTEGER NOT NULL,
	hit_at_3 DOUBLE PRECISION NOT NULL,
	hit_at_5 DOUBLE PRECISION NOT NULL,
	recall_at_3 DOUBLE PRECISION NOT NULL,
	recall_at_5 DOUBLE PRECISION NOT NULL,
	rule_presence_at_3 DOUBLE PRECISION NOT NULL,
	product_presence_at_3 DOUBLE PRECISION NOT NULL,
	mss_recall_at_3 DOUBLE PRECISION NOT NULL,
	rule_questions_count INTEGER NOT NULL,
	product_questions_count INTEGER NOT NULL,
	mss_questions_count INTEGER NOT NULL,
	per_question JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, mode)
);

CREATE INDEX IF NOT EXISTS idx_evaluation_reports_finished_at ON evaluation_reports(finished_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveReport upserts the report keyed by (run_id, mode).
func (r *EvaluationRepository) SaveReport(ctx context.Context, report *domain.EvaluationReport) (string, error) {
	if report == nil || strings.TrimSpace(report.RunID) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "save evaluation report", fmt.Errorf("run id is required"))
	}
	perQuestion, err := json.Marshal(report.PerQuestion)
	if err != nil {
		return "", fmt.Errorf("marshal per-question results: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO evaluation_reports (
	run_id, mode, total_questions, hit_at_3, hit_at_5, recall_at_3, recall_at_5,
	rule_presence_at_3, product_presence_at_3, mss_recall_at_3,
	rule_questions_count, product_questions_count, mss_questions_count,
	per_question, started_at, finished_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (run_id, mode) DO UPDATE SET
	total_questions = EXCLUDED.total_questions,
	hit_at_3 = EXCLUDED.hit_at_3,
	hit_at_5 = EXCLUDED.hit_at_5,
	recall_at_3 = EXCLUDED.recall_at_3,
	recall_at_5 = EXCLUDED.recall_at_5,
	rule_presence_at_3 = EXCLUDED.rule_presence_at_3,
	product_presence_at_3 = EXCLUDED.product_presence_at_3,
	mss_recall_at_3 = EXCLUDED.mss_recall_at_3,
	rule_questions_count = EXCLUDED.rule_questions_count,
	product_questions_count = EXCLUDED.product_questions_count,
	mss_questions_count = EXCLUDED.mss_questions_count,
	per_question = EXCLUDED.per_question,
	started_at = EXCLUDED.started_at,
	finished_at = EXCLUDED.finished_at
`,
		report.RunID, string(report.Mode), report.TotalQuestions,
		report.HitAt3, report.HitAt5, report.RecallAt3, report.RecallAt5,
		report.RulePresenceAt3, report.ProductPresenceAt3, report.MSSRecallAt3,
		report.RuleQuestionsCount, report.ProductQuestionsCount, report.MSSQuestionsCount,
		perQuestion, report.StartedAt.UTC(), report.FinishedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("upsert evaluation report: %w", err)
	}
	return fmt.Sprintf("postgres://evaluation_reports/%s/%s", report.RunID, report.Mode), nil
}

// ReportsByRun returns the stored reports of one run ordered by mode.
func (r *EvaluationRepository) ReportsByRun(ctx context.Context, runID string) ([]domain.EvaluationReport, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, mode, total_questions, hit_at_3, hit_at_5, recall_at_3, recall_at_5,
	rule_presence_at_3, product_presence_at_3, mss_recall_at_3,
	rule_questions_count, product_questions_count, mss_questions_count,
	per_question, started_at, finished_at
FROM evaluation_reports
WHERE run_id = $1
ORDER BY mode
`, runID)
	if err != nil {
		return nil, fmt.Errorf("query evaluation reports: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.EvaluationReport, 0, len(domain.AllModes()))
	for rows.Next() {
		var report domain.EvaluationReport
		var mode string
		var perQuestion []byte
		if err := rows.Scan(
			&report.RunID, &mode, &report.TotalQuestions,
			&report.HitAt3, &report.HitAt5, &report.RecallAt3, &report.RecallAt5,
			&report.RulePresenceAt3, &report.ProductPresenceAt3, &report.MSSRecallAt3,
			&report.RuleQuestionsCount, &report.ProductQuestionsCount, &report.MSSQuestionsCount,
			&perQuestion, &report.StartedAt, &report.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation report: %w", err)
		}
		if err := json.Unmarshal(perQuestion, &report.PerQuestion); err != nil {
			return nil, fmt.Errorf("unmarshal per-question results: %w", err)
		}
		report.Mode = domain.ModeName(mode)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation reports: %w", err)
	}
	if len(reports) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "evaluation run "+runID, fmt.Errorf("no reports stored"))
	}
	return reports, nil
}
