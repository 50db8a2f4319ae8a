package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived    EventType = "request_received"
	EventRouteMiss          EventType = "route_miss"
	EventAccessDenied       EventType = "access_denied"
	EventBackendSelected    EventType = "backend_selected"
	EventNoHealthyBackend   EventType = "no_healthy_backend"
	EventBackendUnreachable EventType = "backend_unreachable"
	EventResponseCompleted  EventType = "response_completed"
	EventHealthChanged      EventType = "health_changed"
)

// MetricEvent is one request-lifecycle or health observation. Route is the
// matched route's name; Backend is the backend endpoint. Either may be empty
// depending on the event type.
type MetricEvent struct {
	Type       EventType
	Route      string
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

// Emit hands an event to the collector without blocking. When the buffer is
// full the event is dropped; request handling never waits on metrics. A nil
// collector discards everything.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests(event.Route)

	case EventRouteMiss:
		c.metrics.IncrementRouteMisses()

	case EventAccessDenied:
		c.metrics.IncrementAccessDenied(event.Route)

	case EventBackendSelected:
		c.metrics.RecordBackendSelection(event.Backend)

	case EventNoHealthyBackend:
		c.metrics.IncrementNoHealthyBackend(event.Route)

	case EventBackendUnreachable:
		c.metrics.IncrementUnreachable(event.Backend)

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Backend, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(algorithm string) Snapshot {
	return c.metrics.Snapshot(algorithm)
}
