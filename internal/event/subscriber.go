package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"log/slog"

	"github.com/krizhik-test/microservices-demo/internal/domain"
	"github.com/krizhik-test/microservices-demo/internal/repository"
)

// BusSubscriber is the subscribing half of the bus contract.
type BusSubscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(ctx context.Context, message, channel string)) error
}

// Broadcaster fans a persisted event out to live stream clients.
type Broadcaster interface {
	Broadcast(channel string, payload []byte)
}

// SubscriberState tracks the subscription lifecycle.
type SubscriberState int

const (
	StateIdle SubscriberState = iota
	StateSubscribed
)

// Subscriber consumes raw bus messages, persists each as an event record and
// logs a consume-latency sample. A single bad message never halts the
// pipeline.
type Subscriber struct {
	bus     BusSubscriber
	repo    repository.EventRepository
	traces  TraceRecorder
	hub     Broadcaster
	service domain.ServiceName
	channel string
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	state SubscriberState
}

// NewSubscriber constructs a Subscriber in the Idle state.
func NewSubscriber(bus BusSubscriber, repo repository.EventRepository, traces TraceRecorder, hub Broadcaster, service domain.ServiceName, channel string, logger *slog.Logger) *Subscriber {
	if logger != nil {
		logger = logger.With("component", "event_subscriber")
	}
	return &Subscriber{
		bus:     bus,
		repo:    repo,
		traces:  traces,
		hub:     hub,
		service: service,
		channel: channel,
		logger:  logger,
		now:     time.Now,
	}
}

// Start subscribes to the events channel. On success the subscriber moves to
// Subscribed, which is terminal until process shutdown.
func (s *Subscriber) Start(ctx context.Context) error {
	if err := s.bus.Subscribe(ctx, s.channel, s.Handle); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateSubscribed
	s.mu.Unlock()
	if s.logger != nil {
		s.logger.Info("subscribed to event channel", "channel", s.channel)
	}
	return nil
}

// State reports the current lifecycle state.
func (s *Subscriber) State() SubscriberState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle processes one raw bus message. Malformed messages are logged and
// dropped; persistence and trace failures are logged without tearing down the
// subscription.
func (s *Subscriber) Handle(ctx context.Context, message, channel string) {
	start := s.now()

	var msg struct {
		Type    domain.EventType `json:"type"`
		Payload struct {
			ID        string               `json:"id"`
			Timestamp int64                `json:"timestamp"`
			Service   domain.ServiceName   `json:"service"`
			Operation domain.OperationType `json:"operation"`
			Status    domain.EventStatus   `json:"status"`
			Data      json.RawMessage      `json:"data"`
			Metadata  json.RawMessage      `json:"metadata"`
		} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(message), &msg); err != nil {
		if s.logger != nil {
			s.logger.Warn("dropping malformed event message", "channel", channel, "error", err)
		}
		return
	}

	record := domain.EventRecord{
		Type:      msg.Type,
		ID:        msg.Payload.ID,
		Timestamp: msg.Payload.Timestamp,
		Service:   msg.Payload.Service,
		Operation: msg.Payload.Operation,
		Status:    msg.Payload.Status,
		Data:      msg.Payload.Data,
		Metadata:  msg.Payload.Metadata,
	}
	if err := s.repo.InsertEvent(ctx, &record); err != nil {
		if s.logger != nil {
			s.logger.Error("event persistence failed", "eventId", record.ID, "error", err)
		}
		return
	}

	elapsed := float64(s.now().Sub(start).Milliseconds())
	if err := s.traces.LogEventTrace(ctx, s.service, domain.TraceConsume, channel, elapsed); err != nil {
		if s.logger != nil {
			s.logger.Warn("consume trace failed", "eventId", record.ID, "error", err)
		}
	}

	if s.hub != nil {
		if payload, err := json.Marshal(record); err == nil {
			s.hub.Broadcast(channel, payload)
		}
	}
}
