// Package publisher emits audit events to a store and mirrors them to sinks.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	audit "kycflow/pkg/platform/audit"
	"kycflow/pkg/platform/audit/worker"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Publisher stamps events (id, timestamp, category) and writes them to the
// store, either inline or through a bounded buffer drained by a worker.
type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger

	bufferSize int
	buffer     chan audit.Event
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous delivery through a buffer of size n.
// Emit fails with ErrBufferFull instead of blocking when the buffer is full.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithSinks mirrors every stored event to the given sinks.
func WithSinks(sinks ...audit.Sink) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sinks...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(p.deliver, p.buffer, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records an event. The returned error is informational; callers on a
// business path log it and carry on.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.stamp(&event)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if p.buffer == nil {
		return p.deliver(ctx, event)
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		return ErrBufferFull
	}
}

// List returns stored events matching filter, newest first, with the total count.
func (p *Publisher) List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	return p.store.List(ctx, filter)
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.buffer != nil {
		close(p.buffer)
	}
	p.mu.Unlock()

	if p.done != nil {
		<-p.done
	}
}

func (p *Publisher) stamp(event *audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		id, err := ulid.New(ulid.Timestamp(event.Timestamp), ulid.DefaultEntropy())
		if err != nil {
			id = ulid.Make()
		}
		event.ID = id.String()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
}

// deliver writes to the store, then mirrors to sinks. Sink failures are
// logged only; the store is the record of truth.
func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"action", event.Action,
				"audit_id", event.ID,
				"error", err,
			)
		}
	}
	return nil
}
