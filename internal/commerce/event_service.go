package commerce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/geo"
	"github.com/cartpulse/cartpulse/internal/metrics"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/queue"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// MaxBulkEvents caps one bulk ingest call.
const MaxBulkEvents = 2000

// EventService handles behavioral event ingestion and session linking.
type EventService struct {
	events  storage.EventRepo
	queue   queue.Queue
	geo     geo.Resolver // optional
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewEventService(events storage.EventRepo, q queue.Queue, resolver geo.Resolver, m *metrics.Metrics, logger *zap.Logger) *EventService {
	return &EventService{events: events, queue: q, geo: resolver, metrics: m, logger: logger}
}

// IngestEvent validates and persists one event, then asks the worker to
// refresh today's stats. clientIP is used for optional geo enrichment and
// may be empty.
func (s *EventService) IngestEvent(ctx context.Context, e *models.Event, clientIP string) (string, error) {
	if err := e.Validate(); err != nil {
		s.metrics.RecordEventRejected("validation")
		return "", apperr.Validation("%s", err.Error())
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.enrich(e, clientIP)

	id, err := s.events.InsertEvent(ctx, e)
	if err != nil {
		return "", apperr.Internal("failed to store event").WithCause(err)
	}

	s.metrics.RecordEvent(string(e.Type))
	s.enqueueRollup(ctx, models.JobSingleEvent, id)
	return id, nil
}

// IngestEventsBulk validates the whole batch up front and persists it
// all-or-nothing: a single invalid event rejects the batch and nothing
// is stored. One rollup job is enqueued per accepted batch, not per event.
func (s *EventService) IngestEventsBulk(ctx context.Context, events []*models.Event, clientIP string) (int, error) {
	if len(events) == 0 {
		return 0, apperr.Validation("events must contain at least one item")
	}
	if len(events) > MaxBulkEvents {
		return 0, apperr.Validation("events exceeds the maximum batch size of %d", MaxBulkEvents)
	}

	now := time.Now().UTC()
	for i, e := range events {
		if err := e.Validate(); err != nil {
			s.metrics.RecordEventRejected("validation")
			return 0, apperr.Validation("events[%d]: %s", i, err.Error())
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		s.enrich(e, clientIP)
	}

	inserted, err := s.events.InsertEventsBulk(ctx, events)
	if err != nil {
		return 0, apperr.Internal("failed to store events").WithCause(err)
	}

	for _, e := range events {
		s.metrics.RecordEvent(string(e.Type))
	}
	s.enqueueRollup(ctx, models.JobBulkEvents, fmt.Sprintf("batch=%d", inserted))
	return inserted, nil
}

// LinkSession attributes an anonymous session's events to a user. Only
// events still lacking a user_id are touched, so relinking or replays
// never reassign history.
func (s *EventService) LinkSession(ctx context.Context, sessionID, userID string) (int64, error) {
	if sessionID == "" || userID == "" {
		return 0, apperr.Validation("session_id and user_id are required")
	}

	linked, err := s.events.LinkSession(ctx, sessionID, userID)
	if err != nil {
		return 0, apperr.Internal("failed to link session").WithCause(err)
	}

	if linked > 0 {
		s.metrics.SessionsLinked.Inc()
		s.enqueueRollup(ctx, models.JobSingleEvent, "link:"+sessionID)
	}
	return linked, nil
}

func (s *EventService) enrich(e *models.Event, clientIP string) {
	if s.geo == nil || clientIP == "" {
		return
	}
	country, err := s.geo.Country(clientIP)
	if err != nil || country == "" {
		return
	}
	if e.Meta == nil {
		e.Meta = make(map[string]interface{})
	}
	if _, exists := e.Meta["country"]; !exists {
		e.Meta["country"] = country
	}
}

// enqueueRollup pushes a recompute job. The write already succeeded, so a
// queue failure is logged rather than returned; the interval rollup will
// pick up the data regardless.
func (s *EventService) enqueueRollup(ctx context.Context, kind models.JobKind, ref string) {
	job := &models.RollupJob{
		ID:         uuid.NewString(),
		Kind:       kind,
		Reference:  ref,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Warn("Failed to enqueue rollup job",
			zap.String("kind", string(kind)),
			zap.String("reference", ref),
			zap.Error(err))
		return
	}
	s.metrics.JobsEnqueued.WithLabelValues(string(kind)).Inc()
}
