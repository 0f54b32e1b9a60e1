// Package event implements the publish and consume sides of the events
// channel plus the stored-event query service.
package event

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/krizhik-test/microservices-demo/internal/domain"
)

// BusPublisher is the publishing half of the bus contract.
type BusPublisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

// TraceRecorder records publish/consume latency samples.
type TraceRecorder interface {
	LogEventTrace(ctx context.Context, service domain.ServiceName, kind domain.TraceKind, channel string, executionMs float64) error
}

// Publisher produces event envelopes and emits them on the events channel.
// Envelope id and timestamp are assigned here, never by callers.
type Publisher struct {
	bus     BusPublisher
	traces  TraceRecorder
	service domain.ServiceName
	channel string
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// NewPublisher constructs a Publisher for the given origin service.
func NewPublisher(bus BusPublisher, traces TraceRecorder, service domain.ServiceName, channel string, logger *slog.Logger) *Publisher {
	if logger != nil {
		logger = logger.With("component", "event_publisher")
	}
	return &Publisher{
		bus:     bus,
		traces:  traces,
		service: service,
		channel: channel,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Publish completes the partial payload into a full envelope, publishes it,
// then records a publish latency sample. A failed trace write is returned to
// the caller even though the event is already out; the event is not rolled
// back. A failed bus publish is logged and returned without retry.
func (p *Publisher) Publish(ctx context.Context, eventType domain.EventType, partial domain.EventPartial) (string, error) {
	start := p.now()

	envelope := domain.EventEnvelope{
		ID:        p.newID(),
		Timestamp: start.UnixMilli(),
		Service:   p.service,
		Operation: partial.Operation,
		Status:    partial.Status,
		Data:      partial.Data,
		Metadata:  partial.Metadata,
	}
	message := domain.EventMessage{Type: eventType, Payload: envelope}

	if _, err := p.bus.Publish(ctx, p.channel, message); err != nil {
		if p.logger != nil {
			p.logger.Error("event publish failed", "type", eventType, "operation", partial.Operation, "error", err)
		}
		return "", fmt.Errorf("publish event: %w", err)
	}

	elapsed := float64(p.now().Sub(start).Milliseconds())
	if err := p.traces.LogEventTrace(ctx, p.service, domain.TracePublish, p.channel, elapsed); err != nil {
		return envelope.ID, fmt.Errorf("record publish trace: %w", err)
	}
	return envelope.ID, nil
}
