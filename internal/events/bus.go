package events

import (
	"context"
	"sync"
	"time"

	"sosalert/internal/models"
	"sosalert/pkg/logger"

	"github.com/google/uuid"
)

// Handler is an in-process subscriber. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type Handler func(ctx context.Context, event *models.DomainEvent)

// Sink forwards events out of the process. Sink errors are logged only.
type Sink interface {
	Name() string
	Send(ctx context.Context, event *models.DomainEvent) error
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[models.EventType][]Handler
	sinks    []Sink
	queue    chan *models.DomainEvent
	done     chan struct{}
	once     sync.Once
	timeout  time.Duration
	logger   *logger.Logger
}

func NewBus(log *logger.Logger, bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		handlers: make(map[models.EventType][]Handler),
		queue:    make(chan *models.DomainEvent, bufferSize),
		done:     make(chan struct{}),
		timeout:  5 * time.Second,
		logger:   log,
	}
}

func (b *Bus) Subscribe(eventType models.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *Bus) AddSink(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish runs local handlers, then queues the event for the sinks. It never
// blocks on a sink; a full queue drops the event with a warning.
func (b *Bus) Publish(ctx context.Context, event *models.DomainEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	hasSinks := len(b.sinks) > 0
	b.mu.RUnlock()

	for _, h := range handlers {
		b.runHandler(ctx, h, event)
	}

	if !hasSinks {
		return
	}
	select {
	case b.queue <- event:
	default:
		b.logger.WithEmergencyID(event.EmergencyID).
			WithField("event_type", event.Type).
			Warn("Event queue full, dropping event for sinks")
	}
}

func (b *Bus) runHandler(ctx context.Context, h Handler, event *models.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithEmergencyID(event.EmergencyID).
				WithFields(map[string]interface{}{"event_type": event.Type, "panic": r}).
				Error("Event handler panicked")
		}
	}()
	h(ctx, event)
}

// Run forwards queued events to the sinks until ctx is done, then drains
// what is left.
func (b *Bus) Run(ctx context.Context) {
	defer b.once.Do(func() { close(b.done) })

	for {
		select {
		case event := <-b.queue:
			b.forward(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-b.queue:
					b.forward(event)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

func (b *Bus) forward(event *models.DomainEvent) {
	b.mu.RLock()
	sinks := append([]Sink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		if err := sink.Send(ctx, event); err != nil {
			b.logger.WithEmergencyID(event.EmergencyID).
				WithError(err).
				WithFields(map[string]interface{}{"sink": sink.Name(), "event_type": event.Type}).
				Warn("Failed to forward event")
		}
		cancel()
	}
}
