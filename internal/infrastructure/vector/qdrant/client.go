package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/resilience"
)

const upsertBatchSize = 64

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  map[string]int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// PointID derives a stable point id so re-ingesting a document overwrites it.
func PointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("skincare-doc:"+docID)).String()
}

func (c *Client) Upsert(ctx context.Context, collection string, docs []domain.KnowledgeDocument, vectors [][]float64) error {
	if len(docs) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("docs/vectors mismatch: %d/%d", len(docs), len(vectors))
	}

	for start := 0; start < len(docs); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, point{
				ID:      PointID(docs[i].ID),
				Vector:  vectors[i],
				Payload: documentPayload(docs[i]),
			})
		}

		path := fmt.Sprintf("/collections/%s/points?wait=true", collection)
		if err := c.do(ctx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return err
		}
	}
	return nil
}

func documentPayload(doc domain.KnowledgeDocument) map[string]any {
	return map[string]any{
		"doc_id":    doc.ID,
		"type":      doc.Type,
		"title":     doc.DisplayTitle(),
		"name":      doc.Name,
		"brand":     doc.Brand,
		"category":  doc.Category,
		"text":      doc.Text,
		"skin_type": doc.SkinType,
		"concerns":  doc.Concerns,
		"age_range": doc.AgeRange,
		"source":    doc.Source,
	}
}

func (c *Client) Search(ctx context.Context, collection string, vector []float64, topK int) ([]domain.Candidate, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", collection)
	if err := c.do(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, candidateFromPayload(r.Score, r.Payload))
	}
	return out, nil
}

var knownPayloadKeys = map[string]struct{}{
	"doc_id": {}, "type": {}, "title": {}, "name": {}, "brand": {}, "category": {},
	"text": {}, "skin_type": {}, "concerns": {}, "age_range": {}, "source": {},
}

func candidateFromPayload(score float64, payload map[string]any) domain.Candidate {
	c := domain.Candidate{
		DocID: strings.TrimSpace(getStringPayload(payload, "doc_id")),
		Score: score,
		Type:  getStringPayload(payload, "type"),
		Payload: domain.Payload{
			Title:    getStringPayload(payload, "title"),
			Name:     getStringPayload(payload, "name"),
			Brand:    getStringPayload(payload, "brand"),
			Category: getStringPayload(payload, "category"),
			Text:     getStringPayload(payload, "text"),
			SkinType: getStringListPayload(payload, "skin_type"),
			Concerns: getStringListPayload(payload, "concerns"),
			AgeRange: getStringPayload(payload, "age_range"),
			Source:   getStringPayload(payload, "source"),
		},
	}
	for key, value := range payload {
		if _, known := knownPayloadKeys[key]; known {
			continue
		}
		if c.Payload.Extra == nil {
			c.Payload.Extra = make(map[string]any)
		}
		c.Payload.Extra[key] = value
	}
	return c
}

func (c *Client) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, "/collections/"+collection, reqBody, nil, "ensure collection")

	// 409 if the collection already exists (depends on version/config).
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	c.markCollectionEnsured(collection, vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(collection string, vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensured[collection] = vectorSize
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if msg := strings.TrimSpace(e.Body); msg != "" {
		return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, msg)
	}
	return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	call := func(ctx context.Context) error {
		return c.doOnce(ctx, method, path, payload, out, operation)
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "qdrant."+operation, call, classifyQdrantError)
	} else {
		err = call(ctx)
	}
	if err != nil && isTemporary(err) {
		return domain.WrapError(domain.ErrTemporary, "qdrant "+operation, err)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: string(msg)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{RecordFailure: false}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{RecordFailure: statusErr.StatusCode >= 500}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func isTemporary(err error) bool {
	if resilience.IsCircuitOpen(err) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getStringListPayload(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
