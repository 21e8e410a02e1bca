package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/skincare-rag/internal/config"
	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/core/ports"
	"github.com/kirillkom/skincare-rag/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

type Router struct {
	cfg       config.Config
	answers   ports.AnswerService
	retriever ports.Retriever
	scheduler ports.EvaluationScheduler
	reports   ports.ReportReader
	metrics   *metrics.HTTPServerMetrics
}

// NewRouter wires the API handlers. scheduler and reports may be nil when the
// queue or the report database is not configured.
func NewRouter(
	cfg config.Config,
	answers ports.AnswerService,
	retriever ports.Retriever,
	scheduler ports.EvaluationScheduler,
	reports ports.ReportReader,
) *Router {
	return &Router{
		cfg:       cfg,
		answers:   answers,
		retriever: retriever,
		scheduler: scheduler,
		reports:   reports,
	}
}

func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/ask", rt.ask)
	api.HandleFunc("/v1/retrieve", rt.retrieve)
	api.HandleFunc("/v1/evaluations", rt.scheduleEvaluation)
	api.HandleFunc("/v1/evaluations/", rt.getEvaluation)

	var guarded http.Handler = api
	if rt.cfg.APIMaxInFlight > 0 {
		wait := time.Duration(rt.cfg.APIBackpressureWaitMS) * time.Millisecond
		guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, wait, rt.onReject)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		guarded = rateLimitMiddleware(guarded, rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst), rt.onReject)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/", guarded)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) onReject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req askRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := rt.answers.Answer(r.Context(), req.Question, req.Mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type retrieveRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode"`
	TopK     int    `json:"top_k"`
}

type retrieveResponse struct {
	Mode    domain.ModeName    `json:"mode"`
	Results []domain.Candidate `json:"results"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = rt.cfg.RAGTopK
	}

	mode := domain.ResolveMode(req.Mode)
	results, err := rt.retriever.Retrieve(r.Context(), req.Question, mode, topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.Candidate{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Mode: mode.Name, Results: results})
}

type evaluationRequest struct {
	Modes       []string `json:"modes"`
	QuestionSet string   `json:"question_set"`
}

func (rt *Router) scheduleEvaluation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if rt.scheduler == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "evaluation queue is not configured"})
		return
	}
	var req evaluationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	scheduled, err := rt.scheduler.Schedule(r.Context(), req.Modes, req.QuestionSet)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, scheduled)
}

func (rt *Router) getEvaluation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	runID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/v1/evaluations/"))
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}
	if rt.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "report store is not configured"})
		return
	}

	reports, err := rt.reports.ReportsByRun(r.Context(), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "reports": reports})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := classifyError(err)
	status := class.status
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": class.code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
