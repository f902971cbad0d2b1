package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/pkg/events"
	"github.com/noah-isme/room-access-api/pkg/jobs"
)

const eventJobType = "domain_event"

// eventSink receives workflow events. Emitting never blocks or fails the caller.
type eventSink interface {
	Emit(ctx context.Context, eventType, subject string, data interface{})
}

type nopSink struct{}

func (nopSink) Emit(context.Context, string, string, interface{}) {}

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// EventService turns workflow transitions into broker events delivered
// through the retrying job queue.
type EventService struct {
	queue     jobQueue
	publisher events.Publisher
	metrics   *MetricsService
	logger    *zap.Logger
	clock     Clock
}

// NewEventService constructs the service. Attach a queue with SetQueue before emitting.
func NewEventService(publisher events.Publisher, metrics *MetricsService, logger *zap.Logger) *EventService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{publisher: publisher, metrics: metrics, logger: logger, clock: systemClock}
}

// SetQueue attaches the queue whose handler is Handle.
func (s *EventService) SetQueue(queue jobQueue) {
	s.queue = queue
}

// Emit enqueues an event. Failures are logged and dropped.
func (s *EventService) Emit(_ context.Context, eventType, subject string, data interface{}) {
	if s == nil || s.queue == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	evt := events.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Subject:    subject,
		OccurredAt: s.clock(),
		Data:       payload,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: evt.ID, Type: eventJobType, Payload: evt}); err != nil {
		s.metrics.RecordEventPublish(eventType, false)
		s.logger.Warn("failed to enqueue event", zap.String("type", eventType), zap.String("subject", subject), zap.Error(err))
	}
}

// Handle is the queue handler publishing one event.
func (s *EventService) Handle(ctx context.Context, job jobs.Job) error {
	evt, ok := job.Payload.(events.Event)
	if !ok {
		s.logger.Error("unexpected event job payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	s.metrics.RecordEventPublish(evt.Type, true)
	return nil
}

// DeadLetter records an event that exhausted its retries.
func (s *EventService) DeadLetter(job jobs.Job, err error) {
	evt, _ := job.Payload.(events.Event)
	s.metrics.RecordEventPublish(evt.Type, false)
	s.logger.Error("dropping undeliverable event", zap.String("event_id", evt.ID), zap.String("type", evt.Type), zap.Error(err))
}
