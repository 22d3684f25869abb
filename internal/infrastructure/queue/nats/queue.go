package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

const queueGroup = "indexers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
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
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("filing-qa"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// ingestEvent is the wire payload of a filing ingested message.
type ingestEvent struct {
	Ticker     string `json:"ticker"`
	FiscalYear int    `json:"fiscal_year"`
}

func encodeEvent(key domain.FilingKey) ([]byte, error) {
	return json.Marshal(ingestEvent{Ticker: key.Ticker, FiscalYear: key.FiscalYear})
}

func decodeEvent(data []byte) (domain.FilingKey, error) {
	var ev ingestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.FilingKey{}, domain.WrapError(domain.ErrInvalidInput, "decode ingest event", err)
	}
	key := domain.FilingKey{Ticker: ev.Ticker, FiscalYear: ev.FiscalYear}
	if key.Ticker == "" {
		return domain.FilingKey{}, domain.WrapError(domain.ErrInvalidInput, "decode ingest event", errors.New("ticker is required"))
	}
	return key, nil
}

func (q *Queue) PublishFilingIngested(ctx context.Context, key domain.FilingKey) error {
	payload, err := encodeEvent(key)
	if err != nil {
		return fmt.Errorf("encode ingest event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}

// SubscribeFilingIngested blocks until ctx is done, then drains the subscription.
func (q *Queue) SubscribeFilingIngested(ctx context.Context, handler func(context.Context, domain.FilingKey) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		key, err := decodeEvent(msg.Data)
		if err != nil {
			q.logger.Warn("ingest event dropped", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, key); err != nil {
			q.logger.Error("worker handler error", "filing", key.String(), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
