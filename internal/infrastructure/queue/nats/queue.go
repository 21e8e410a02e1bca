package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/skincare-rag/internal/core/domain"
	"github.com/kirillkom/skincare-rag/internal/infrastructure/resilience"
)

const (
	queueGroup = "evaluators"

	defaultDrainTimeout = 30 * time.Second
	drainPollInterval   = 50 * time.Millisecond
)

type Queue struct {
	conn         *nats.Conn
	subject      string
	executor     *resilience.Executor
	logger       *slog.Logger
	drainTimeout time.Duration
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
	// DrainTimeout bounds how long shutdown waits for an in-flight handler.
	DrainTimeout         time.Duration
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("skincare-rag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:         conn,
		subject:      subject,
		executor:     options.ResilienceExecutor,
		logger:       logger,
		drainTimeout: drainTimeout,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishEvaluationRequested(ctx context.Context, req domain.EvaluationRequest) error {
	data, err := encodeRequest(req)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeEvaluationRequested blocks until ctx is done, then drains the
// subscription and waits up to the drain timeout for the in-flight handler.
// Handlers run on a context that shutdown does not cancel; it is canceled
// only when the drain timeout expires. Requests still buffered at shutdown
// are skipped.
func (q *Queue) SubscribeEvaluationRequested(ctx context.Context, handler func(context.Context, domain.EvaluationRequest) error) error {
	runCtx, abortRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer abortRuns()

	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		q.dispatch(ctx, runCtx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	q.logger.Info("nats_subscription_draining", "subject", q.subject, "timeout", q.drainTimeout.String())
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := waitDrained(sub, q.drainTimeout); err != nil {
		return err
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

type drainable interface {
	IsValid() bool
}

// waitDrained polls until the draining subscription has been removed, which
// happens once its message callback has returned.
func waitDrained(sub drainable, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return fmt.Errorf("nats drain subscription: timed out after %s", timeout)
		}
		time.Sleep(drainPollInterval)
	}
	return nil
}

func (q *Queue) dispatch(shutdown, runCtx context.Context, data []byte, handler func(context.Context, domain.EvaluationRequest) error) {
	req, err := decodeRequest(data)
	if err != nil {
		q.logger.Error("evaluation_request_invalid", "error", err, "payload_bytes", len(data))
		return
	}
	if shutdown.Err() != nil {
		q.logger.Warn("evaluation_request_skipped_shutdown", "run_id", req.RunID)
		return
	}

	if err := handler(runCtx, req); err != nil {
		q.logger.Error("evaluation_request_failed", "run_id", req.RunID, "error", err)
	}
}

func encodeRequest(req domain.EvaluationRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation request: %w", err)
	}
	return data, nil
}

func decodeRequest(data []byte) (domain.EvaluationRequest, error) {
	var req domain.EvaluationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.EvaluationRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode evaluation request", err)
	}
	if req.RunID == "" {
		return domain.EvaluationRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode evaluation request", errors.New("run_id is required"))
	}
	return req, nil
}
