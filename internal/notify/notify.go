// Package notify publishes job lifecycle events as CloudEvents to an HTTP
// receiver.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"iriclient/internal/job"
	"iriclient/pkg/backoff"
	"iriclient/pkg/circuitbreaker"
	"iriclient/pkg/cloudevent"
)

// Event types.
const (
	TypeJobSubmitted = "iri.job.submitted"
	TypeJobStatus    = "iri.job.status"
	TypeJobFinished  = "iri.job.finished"
)

// ErrBufferFull is returned when an event is dropped because the queue is full.
var ErrBufferFull = errors.New("notify: buffer full")

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("notify: notifier is closed")

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, eventType string)
	RecordNotifyFailed(ctx context.Context, eventType string)
}

// Stats holds delivery counters.
type Stats struct {
	QueueDepth   int
	Queued       int64
	Delivered    int64
	Failed       int64
	Dropped      int64
	BreakersOpen int
}

// Notifier delivers events asynchronously. Events are queued in a bounded
// channel and sent by a worker pool; when the queue is full new events are
// dropped. It implements job.Reporter.
type Notifier struct {
	queue    chan *cloudevent.CloudEvent
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	cfg      Config
	host     string
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	mu         sync.Mutex
	lastStatus map[string]string // job id -> last published status

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a notifier and starts its workers.
func New(cfg Config, metrics MetricsRecorder) (*Notifier, error) {
	cfg = cfg.withDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("notify: URL must be an absolute http(s) URL")
	}
	return newNotifier(cfg, cloudevent.NewSender(cfg.HTTPTimeout), u.Host, metrics), nil
}

func newNotifier(cfg Config, sender *cloudevent.Sender, host string, metrics MetricsRecorder) *Notifier {
	n := &Notifier{
		queue:  make(chan *cloudevent.CloudEvent, cfg.BufferSize),
		sender: sender,
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		cfg:        cfg,
		host:       host,
		logger:     slog.With("component", "notify"),
		metrics:    metrics,
		lastStatus: make(map[string]string),
		shutdown:   make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}
	n.logger.Debug("Notifier started", "destination", host, "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return n
}

// Publish queues an event for delivery.
func (n *Notifier) Publish(event *cloudevent.CloudEvent) error {
	if n.closed.Load() {
		return ErrClosed
	}

	select {
	case n.queue <- event:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(context.Background(), event.Type)
		}
		n.logger.Warn("Event dropped, buffer full", "destination", n.host, "type", event.Type)
		return ErrBufferFull
	}
}

func (n *Notifier) JobSubmitted(_ context.Context, ev job.SubmittedEvent) {
	n.publish(TypeJobSubmitted, ev.JobID, map[string]any{
		"job_id":      ev.JobID,
		"resource_id": ev.ResourceID,
	})
}

// PollCompleted publishes a status event when a successful poll observes a
// status different from the last one published for the job.
func (n *Notifier) PollCompleted(_ context.Context, ev job.PollEvent) {
	if ev.Err != nil {
		return
	}
	n.mu.Lock()
	changed := n.lastStatus[ev.JobID] != ev.Status
	n.lastStatus[ev.JobID] = ev.Status
	n.mu.Unlock()
	if !changed {
		return
	}
	n.publish(TypeJobStatus, ev.JobID, map[string]any{
		"job_id":  ev.JobID,
		"state":   ev.Status,
		"attempt": ev.Attempt,
	})
}

func (n *Notifier) JobFinished(_ context.Context, res *job.Result) {
	data := map[string]any{
		"job_id":      res.JobID,
		"resource_id": res.ResourceID,
		"outcome":     res.Phase.String(),
		"state":       res.Status,
		"attempts":    res.Attempts,
		"exit_code":   res.ExitCode(),
	}
	if res.Err != nil {
		data["error"] = res.Err.Error()
	}
	n.mu.Lock()
	delete(n.lastStatus, res.JobID)
	n.mu.Unlock()
	n.publish(TypeJobFinished, res.JobID, data)
}

func (n *Notifier) publish(eventType, subject string, data map[string]any) {
	// Publish logs drops itself.
	_ = n.Publish(cloudevent.New(eventType, n.cfg.Source, subject, data))
}

// Stats returns current delivery statistics.
func (n *Notifier) Stats() Stats {
	return Stats{
		QueueDepth:   len(n.queue),
		Queued:       n.queued.Load(),
		Delivered:    n.delivered.Load(),
		Failed:       n.failed.Load(),
		Dropped:      n.dropped.Load(),
		BreakersOpen: n.breakers.Stats().Open,
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (n *Notifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil
	}
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Debug("Notifier stopped",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			n.drainQueue()
			return
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

func (n *Notifier) drainQueue() {
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		default:
			return
		}
	}
}

// deliver sends one event with retries. Events for a host whose breaker is
// open are counted as failed without a request.
func (n *Notifier) deliver(event *cloudevent.CloudEvent) {
	breaker := n.breakers.Get(n.host)
	if !breaker.Allow() {
		n.recordFailure(event, circuitbreaker.ErrOpen)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := backoff.Retry(ctx, &backoff.Config{
		Initial:  defaultInitialBackoff,
		Max:      defaultMaxBackoff,
		Attempts: n.cfg.MaxAttempts,
	}, func(ctx context.Context) error {
		err := n.sender.Send(ctx, n.cfg.URL, event, n.cfg.SigningKey)
		if cloudevent.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		breaker.RecordFailure()
		n.recordFailure(event, err)
		return
	}

	breaker.RecordSuccess()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, event.Type)
	}
}

func (n *Notifier) recordFailure(event *cloudevent.CloudEvent, err error) {
	n.failed.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyFailed(context.Background(), event.Type)
	}
	n.logger.Warn("Delivery failed", "destination", n.host, "type", event.Type, "error", err)
}

var _ job.Reporter = (*Notifier)(nil)
