// Package audit records what happened in a wizard session without recording
// what the user typed.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"claimgate/internal/audit/metrics"
	"claimgate/pkg/requestcontext"
)

// Sink persists a batch of events.
type Sink interface {
	Append(ctx context.Context, events []Event) error
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
)

// Publisher buffers events in memory and writes them to the sink from a
// background worker, so request handling never waits on the audit sink.
type Publisher struct {
	sink          Sink
	buffer        *RingBuffer
	breaker       *CircuitBreaker
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:          sink,
		buffer:        NewRingBuffer(0),
		breaker:       NewCircuitBreaker(5, 30*time.Second),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps the event with request metadata and queues it.
func (p *Publisher) Emit(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = p.now()
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.Device == "" {
		e.Device = requestcontext.Device(ctx)
	}
	if e.SessionID == "" {
		if id := requestcontext.SessionID(ctx); id != uuid.Nil {
			e.SessionID = id.String()
		}
	}
	if p.buffer.Enqueue(e) {
		p.logger.WarnContext(ctx, "audit buffer full, dropped oldest event")
		if p.metrics != nil {
			p.metrics.Dropped.WithLabelValues("buffer_full").Inc()
		}
	}
}

// Run drains the buffer until ctx is cancelled, then flushes what is left
// with a short grace period.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			p.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		}
	}
}

// Flush writes every buffered event to the sink in batches.
func (p *Publisher) Flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		if !p.breaker.Allow() {
			p.logger.WarnContext(ctx, "audit sink circuit open, dropping batch", "events", len(batch))
			if p.metrics != nil {
				p.metrics.Dropped.WithLabelValues("circuit_open").Add(float64(len(batch)))
			}
			continue
		}
		start := time.Now()
		if err := p.sink.Append(ctx, batch); err != nil {
			p.breaker.RecordFailure()
			p.logger.ErrorContext(ctx, "audit sink write failed", "events", len(batch), "error", err)
			if p.metrics != nil {
				p.metrics.Dropped.WithLabelValues("sink_error").Add(float64(len(batch)))
				p.metrics.SetCircuitOpen(p.breaker.IsOpen())
			}
			continue
		}
		p.breaker.RecordSuccess()
		if p.metrics != nil {
			p.metrics.Written.Add(float64(len(batch)))
			p.metrics.ObserveAppend(start)
			p.metrics.SetCircuitOpen(false)
		}
	}
}
