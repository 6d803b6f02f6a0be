package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/events"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// OutboxStore persists events awaiting delivery.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, e *models.OutboxEntry) error
	GetPendingOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error)
	UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// Publisher delivers an event to the broker.
type Publisher interface {
	Publish(ctx context.Context, eventType, eventID string, body []byte) error
}

// OutboxWorker drains event_outbox into the broker. Entries are persisted
// first, so a crash between enqueue and publish only delays delivery.
type OutboxWorker struct {
	store         OutboxStore
	publisher     Publisher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxEntry
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewOutboxWorker builds a worker with sane defaults. redisClient is optional
// and only receives dead letters.
func NewOutboxWorker(store OutboxStore, publisher Publisher, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *OutboxWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &OutboxWorker{
		store:         store,
		publisher:     publisher,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(5, 2*time.Second, time.Minute),
		queue:         make(chan models.OutboxEntry, 128),
		deadLetterKey: "outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// Enqueue persists an event and schedules it on the in-memory queue.
func (w *OutboxWorker) Enqueue(ctx context.Context, event *events.Event) error {
	if event == nil || event.Type == "" {
		return errors.New("event type is required")
	}
	if event.ID == "" {
		return errors.New("event id is required")
	}

	entry := models.OutboxEntry{
		EventID:   event.ID,
		EventType: event.Type,
		Payload:   event.Payload,
		Status:    models.OutboxPending,
	}
	if err := w.store.EnqueueOutbox(ctx, &entry); err != nil {
		return fmt.Errorf("persist outbox entry: %w", err)
	}
	if entry.ID == 0 {
		// already queued
		return nil
	}

	select {
	case w.queue <- entry:
	default:
		w.logger.Warn().Int64("entry_id", entry.ID).Msg("Outbox queue full, entry left to polling")
	}
	return nil
}

// Handler adapts the worker to the event bus.
func (w *OutboxWorker) Handler(ctx context.Context) events.EventHandler {
	return func(event *events.Event) error {
		return w.Enqueue(ctx, event)
	}
}

// Start launches main loop; stops when ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Outbox worker started")
	defer w.logger.Info().Msg("Outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.processEntry(ctx, &e)
			continue
		default:
		}

		if n := w.drainPending(ctx); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.processEntry(ctx, &e)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *OutboxWorker) drainPending(ctx context.Context) int {
	entries, err := w.store.GetPendingOutbox(ctx, time.Now(), w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to fetch pending outbox entries")
		return 0
	}
	for i := range entries {
		w.processEntry(ctx, &entries[i])
	}
	return len(entries)
}

func (w *OutboxWorker) processEntry(ctx context.Context, e *models.OutboxEntry) {
	if err := w.publisher.Publish(ctx, e.EventType, e.EventID, e.Payload); err != nil {
		w.retryOrFail(ctx, e, err)
		return
	}

	if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("entry_id", e.ID).Msg("Failed to mark outbox entry completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, e *models.OutboxEntry, cause error) {
	attempt := e.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.logger.Error().Err(cause).Int64("entry_id", e.ID).Str("event_type", e.EventType).Msg("Outbox entry failed permanently")
		if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("entry_id", e.ID).Msg("Failed to mark outbox entry failed")
		}
		w.pushDeadLetter(ctx, e)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("entry_id", e.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("Outbox publish failed, will retry")
	if err := w.store.UpdateOutboxStatus(ctx, e.ID, models.OutboxRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("entry_id", e.ID).Msg("Failed to mark outbox entry for retry")
	}
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, e *models.OutboxEntry) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		w.logger.Error().Err(err).Int64("entry_id", e.ID).Msg("Failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("entry_id", e.ID).Msg("Failed to push dead letter")
	}
}
