package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
)

func TestMiddlewareRecordsStatusAndNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/evaluations/run-42", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/evaluations/{run_id}", "202"))
	if got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}
}

func TestRecordRetrievalCountsOutcomes(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.RecordRetrieval(domain.ModeHybrid, 5, true, 20*time.Millisecond, nil)
	m.RecordRetrieval(domain.ModeHybrid, 0, false, time.Millisecond, nil)
	m.RecordRetrieval(domain.ModeHybrid, 0, false, time.Millisecond, errors.New("qdrant down"))

	if got := testutil.ToFloat64(m.retrievalTotal.WithLabelValues("api", "hybrid", "success")); got != 2 {
		t.Fatalf("expected 2 successful retrievals, got %v", got)
	}
	if got := testutil.ToFloat64(m.retrievalTotal.WithLabelValues("api", "hybrid", "error")); got != 1 {
		t.Fatalf("expected 1 failed retrieval, got %v", got)
	}
	if got := testutil.ToFloat64(m.gapFillTotal.WithLabelValues("api", "hybrid")); got != 1 {
		t.Fatalf("expected 1 gap fill, got %v", got)
	}
	if got := testutil.ToFloat64(m.noContextTotal.WithLabelValues("api", "hybrid")); got != 1 {
		t.Fatalf("expected 1 empty retrieval, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRejected("rate_limited")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "skincare_http_rejected_total") {
		t.Fatalf("expected rejected counter in exposition, got:\n%s", body)
	}
}

func TestWorkerMetricsRecordEvaluation(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartRun()
	m.RecordEvaluation(domain.ModeBaseline, 12, time.Second, nil)
	m.RecordEvaluation(domain.ModeHyDE, 12, time.Second, errors.New("ollama down"))
	m.ObserveQueueLag(-time.Second)
	m.FinishRun(nil)

	if got := testutil.ToFloat64(m.questionsEvaluated.WithLabelValues("worker", "baseline")); got != 12 {
		t.Fatalf("expected 12 questions, got %v", got)
	}
	if got := testutil.ToFloat64(m.modeTotal.WithLabelValues("worker", "hyde", "error")); got != 1 {
		t.Fatalf("expected failed mode to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.runInFlight); got != 0 {
		t.Fatalf("expected no in-flight runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.runTotal.WithLabelValues("worker", "success")); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
}
