package localfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

// ReportStore writes one evaluation_report_<mode>.json per mode; a later run
// of the same mode overwrites the previous file.
type ReportStore struct {
	storage *Storage
}

func NewReportStore(storage *Storage) *ReportStore {
	return &ReportStore{storage: storage}
}

func ReportFileName(mode domain.ModeName) string {
	return fmt.Sprintf("evaluation_report_%s.json", mode)
}

func (r *ReportStore) SaveReport(ctx context.Context, report *domain.EvaluationReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("save report: %w", domain.ErrInvalidInput)
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := ReportFileName(report.Mode)
	if err := r.storage.Save(ctx, key, bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("save report %s: %w", key, err)
	}
	return r.storage.Path(key), nil
}

// LoadReport reads back a previously written report for mode.
func (r *ReportStore) LoadReport(ctx context.Context, mode domain.ModeName) (*domain.EvaluationReport, error) {
	f, err := r.storage.Open(ctx, ReportFileName(mode))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var report domain.EvaluationReport
	if err := json.NewDecoder(f).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
