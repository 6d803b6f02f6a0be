package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/models"
)

// EnqueueOutbox stores an event for later delivery. Re-enqueueing the same
// event id is a no-op.
func (db *DB) EnqueueOutbox(ctx context.Context, e *models.OutboxEntry) error {
	if e.Status == "" {
		e.Status = models.OutboxPending
	}
	now := time.Now()
	query := `INSERT INTO event_outbox (event_id, event_type, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(event_id) DO NOTHING`
	result, err := db.ExecContext(ctx, query,
		e.EventID, e.EventType, e.Payload, e.Status, e.RetryCount, e.LastError, formatTime(now), nullTime(e.NextRetryAt))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox entry: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		if e.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	e.CreatedAt = now
	return nil
}

func scanOutbox(rows *sql.Rows) (models.OutboxEntry, error) {
	var e models.OutboxEntry
	var createdAt string
	var processedAt, nextRetryAt sql.NullString
	err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.Payload, &e.Status, &e.RetryCount, &e.LastError,
		&createdAt, &processedAt, &nextRetryAt)
	if err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	if e.ProcessedAt, err = parseNullTime(processedAt); err != nil {
		return e, err
	}
	if e.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
		return e, err
	}
	return e, nil
}

func (db *DB) GetPendingOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxEntry, error) {
	query := `SELECT id, event_id, event_type, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM event_outbox
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.OutboxPending, models.OutboxRetry, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (db *DB) UpdateOutboxStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}

	switch status {
	case models.OutboxRetry:
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nullTime(nextRetryAt), id}
	case models.OutboxCompleted, models.OutboxFailed:
		now := time.Now()
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, formatTime(now), id}
	default:
		query = `UPDATE event_outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nullTime(nextRetryAt), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox status: %w", err)
	}
	return nil
}

func (db *DB) GetFailedOutbox(ctx context.Context) ([]models.OutboxEntry, error) {
	query := `SELECT id, event_id, event_type, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at
              FROM event_outbox WHERE status = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.OutboxFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
