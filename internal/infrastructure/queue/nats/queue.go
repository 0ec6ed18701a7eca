package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/infrastructure/resilience"
)

// Queue connects the API and indexer processes. Rebuild requests go to a
// queue group so exactly one indexer picks each up; ready events are
// broadcast so every API instance can swap to the new snapshot.
type Queue struct {
	conn           *nats.Conn
	rebuildSubject string
	readySubject   string
	executor       *resilience.Executor
	logger         *slog.Logger
}

func New(url, rebuildSubject, readySubject string) (*Queue, error) {
	return NewWithOptions(url, rebuildSubject, readySubject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, rebuildSubject, readySubject string, options Options) (*Queue, error) {
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
		nats.Name("fundrag"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		rebuildSubject: rebuildSubject,
		readySubject:   readySubject,
		executor:       options.ResilienceExecutor,
		logger:         logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// PublishRebuildRequested asks the indexer group to rebuild the index.
// The payload is the request id so the resulting ready event can be
// correlated back to the caller.
func (q *Queue) PublishRebuildRequested(ctx context.Context, requestID string) error {
	return q.publish(ctx, q.rebuildSubject, []byte(requestID))
}

// PublishIndexReady announces a completed rebuild to every subscriber.
func (q *Queue) PublishIndexReady(ctx context.Context, event domain.IndexReadyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode index ready event: %w", err)
	}
	return q.publish(ctx, q.readySubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
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

// SubscribeRebuildRequested joins the indexer queue group and blocks until
// ctx is cancelled. Each rebuild request is delivered to exactly one group
// member.
func (q *Queue) SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.rebuildSubject, "indexers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			q.logger.Error("rebuild_handler_failed",
				slog.String("request_id", string(msg.Data)),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	return q.waitAndDrain(ctx, sub)
}

// SubscribeIndexReady delivers every ready event to this instance and blocks
// until ctx is cancelled. No queue group: each API process must observe the
// event to reload its snapshot.
func (q *Queue) SubscribeIndexReady(ctx context.Context, handler func(context.Context, domain.IndexReadyEvent) error) error {
	sub, err := q.conn.Subscribe(q.readySubject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event domain.IndexReadyEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			q.logger.Error("index_ready_decode_failed", slog.Any("error", err))
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			q.logger.Error("index_ready_handler_failed",
				slog.String("request_id", event.RequestID),
				slog.String("fingerprint", event.Fingerprint),
				slog.Any("error", err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	return q.waitAndDrain(ctx, sub)
}

func (q *Queue) waitAndDrain(ctx context.Context, sub *nats.Subscription) error {
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
