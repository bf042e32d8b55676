package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

const (
	headerEnqueuedAt = "Kt-Enqueued-At"
	workerGroup      = "kt-search-workers"
)

// Queue carries search job ids over a NATS subject with a shared queue group.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	onLag    func(time.Duration)
	now      func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// OnLag receives the time a job id spent in the queue before delivery.
	OnLag func(time.Duration)
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

	conn, err := nats.Connect(
		url,
		nats.Name("kt-search"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		onLag:    options.OnLag,
		now:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Ping reports the connection state without a server round trip.
func (q *Queue) Ping(_ context.Context) error {
	if q.conn == nil || !q.conn.IsConnected() {
		return fmt.Errorf("nats not connected: %s", q.status())
	}
	return nil
}

func (q *Queue) status() string {
	if q.conn == nil {
		return "closed"
	}
	return q.conn.Status().String()
}

func (q *Queue) PublishSearchJob(ctx context.Context, jobID string) error {
	msg := newJobMsg(q.subject, jobID, q.now())
	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
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
		return wrapPublishError(err)
	}
	return nil
}

// SubscribeSearchJobs blocks until ctx is cancelled, then drains the
// subscription so in-flight jobs finish.
func (q *Queue) SubscribeSearchJobs(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		jobID, lag, ok := decodeJobMsg(msg, q.now())
		if !ok {
			slog.Warn("search_job_message_invalid", "subject", msg.Subject)
			return
		}
		if q.onLag != nil && lag >= 0 {
			q.onLag(lag)
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, jobID); err != nil {
			slog.Error("search_job_handler_failed", "job_id", jobID, "error", err)
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

func newJobMsg(subject, jobID string, now time.Time) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = []byte(jobID)
	msg.Header.Set(headerEnqueuedAt, now.UTC().Format(time.RFC3339Nano))
	return msg
}

// decodeJobMsg returns a negative lag when the enqueue time is unknown.
func decodeJobMsg(msg *nats.Msg, now time.Time) (string, time.Duration, bool) {
	jobID := strings.TrimSpace(string(msg.Data))
	if jobID == "" {
		return "", 0, false
	}
	lag := time.Duration(-1)
	if msg.Header != nil {
		if raw := msg.Header.Get(headerEnqueuedAt); raw != "" {
			if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				lag = max(now.Sub(at), 0)
			}
		}
	}
	return jobID, lag, true
}
