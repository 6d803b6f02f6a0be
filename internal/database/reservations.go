package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const reservationColumns = `id, court_id, customer_id, staff_id, channel, status, checked_in_at,
                            cancel_reason, cancellation_fee, created_at, updated_at, version`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var r models.Reservation
	var staffID sql.NullInt64
	var checkedIn sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&r.ID, &r.CourtID, &r.CustomerID, &staffID, &r.Channel, &r.Status, &checkedIn,
		&r.CancelReason, &r.CancellationFee, &createdAt, &updatedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}

	r.StaffID = intPtr(staffID)
	if r.CheckedInAt, err = parseNullTime(checkedIn); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanSlot(row rowScanner) (models.BookedSlot, error) {
	var s models.BookedSlot
	var start, end string
	if err := row.Scan(&s.ID, &s.ReservationID, &s.CourtID, &start, &end, &s.Status); err != nil {
		return s, err
	}
	var err error
	if s.Start, err = parseTime(start); err != nil {
		return s, err
	}
	if s.End, err = parseTime(end); err != nil {
		return s, err
	}
	return s, nil
}

// attachSlots loads booked slots for the given reservations in one query.
func attachSlots(ctx context.Context, q querier, reservations []*models.Reservation) error {
	if len(reservations) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Reservation, len(reservations))
	args := make([]any, 0, len(reservations))
	for _, r := range reservations {
		byID[r.ID] = r
		args = append(args, r.ID)
	}

	query := `SELECT id, reservation_id, court_id, start_time, end_time, status
              FROM booked_slots WHERE reservation_id IN (` + placeholders(len(args)) + `)
              ORDER BY start_time, id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load booked slots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return fmt.Errorf("failed to scan booked slot: %w", err)
		}
		if r, ok := byID[s.ReservationID]; ok {
			r.Slots = append(r.Slots, s)
		}
	}
	return rows.Err()
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

func getReservation(ctx context.Context, q querier, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	r, err := scanReservation(q.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, domain.NotFound("reservation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if err := attachSlots(ctx, q, []*models.Reservation{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := attachSlots(ctx, db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCourtReservations returns live reservations of a court with at least one
// slot overlapping [from, to).
func (db *DB) GetCourtReservations(ctx context.Context, courtID int64, from, to time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE court_id = ? AND status <> ? AND id IN (
                  SELECT reservation_id FROM booked_slots
                  WHERE court_id = ? AND start_time < ? AND end_time > ?
              )
              ORDER BY id`
	out, err := db.queryReservations(ctx, query,
		courtID, models.StatusCancelled, courtID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to get court reservations: %w", err)
	}
	return out, nil
}

// GetBookedSlots returns non-cancelled slots of a court overlapping [from, to).
func (db *DB) GetBookedSlots(ctx context.Context, courtID int64, from, to time.Time) ([]models.BookedSlot, error) {
	query := `SELECT id, reservation_id, court_id, start_time, end_time, status
              FROM booked_slots
              WHERE court_id = ? AND status <> ? AND start_time < ? AND end_time > ?
              ORDER BY start_time`
	rows, err := db.QueryContext(ctx, query, courtID, models.StatusCancelled, formatTime(to), formatTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	var out []models.BookedSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// takenSlot runs the overlap check inside a write transaction.
func takenSlot(ctx context.Context, tx *sql.Tx, courtID, excludeID int64, s models.BookedSlot) (*domain.ConflictError, error) {
	query := `SELECT reservation_id, start_time, end_time FROM booked_slots
              WHERE court_id = ? AND status <> ? AND reservation_id <> ?
              AND start_time < ? AND end_time > ?
              ORDER BY start_time LIMIT 1`
	var reservationID int64
	var start, end string
	err := tx.QueryRowContext(ctx, query,
		courtID, models.StatusCancelled, excludeID, formatTime(s.End), formatTime(s.Start),
	).Scan(&reservationID, &start, &end)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check slot in tx: %w", err)
	}

	ce := &domain.ConflictError{CourtID: courtID, ReservationID: reservationID, Taken: true}
	ce.Start, _ = parseTime(start)
	ce.End, _ = parseTime(end)
	return ce, nil
}

func insertSlots(ctx context.Context, tx *sql.Tx, r *models.Reservation) error {
	query := `INSERT INTO booked_slots (reservation_id, court_id, start_time, end_time, status) VALUES (?, ?, ?, ?, ?)`
	for i := range r.Slots {
		s := &r.Slots[i]
		s.ReservationID = r.ID
		s.CourtID = r.CourtID
		s.Status = r.Status
		result, err := tx.ExecContext(ctx, query, r.ID, r.CourtID, formatTime(s.Start), formatTime(s.End), s.Status)
		if err != nil {
			return fmt.Errorf("failed to insert booked slot: %w", err)
		}
		if s.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}
	return nil
}

// CreateReservationWithLock checks and inserts the reservation atomically.
// A slot claimed by a concurrent writer yields ErrSlotTaken.
func (db *DB) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	unlock := db.lockCourt(r.CourtID)
	defer unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check slots inside transaction
	for _, s := range r.Slots {
		conflict, err := takenSlot(ctx, tx, r.CourtID, 0, s)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict
		}
	}

	// 2. Create reservation
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.Version = 1

	query := `INSERT INTO reservations (court_id, customer_id, staff_id, channel, status, checked_in_at,
                  cancel_reason, cancellation_fee, created_at, updated_at, version)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		r.CourtID, r.CustomerID, nullInt(r.StaffID), r.Channel, r.Status, nullTime(r.CheckedInAt),
		r.CancelReason, r.CancellationFee, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}
	if r.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := insertSlots(ctx, tx, r); err != nil {
		return err
	}

	return tx.Commit()
}

// RescheduleReservationWithLock swaps the slots of r, ignoring r's own slots
// in the overlap check.
func (db *DB) RescheduleReservationWithLock(ctx context.Context, r *models.Reservation, slots []models.BookedSlot) error {
	unlock := db.lockCourt(r.CourtID)
	defer unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, s := range slots {
		conflict, err := takenSlot(ctx, tx, r.CourtID, r.ID, s)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict
		}
	}

	now := time.Now()
	query := `UPDATE reservations SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	if err := execVersioned(ctx, tx, query, formatTime(now), r.ID, r.Version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM booked_slots WHERE reservation_id = ?`, r.ID); err != nil {
		return fmt.Errorf("failed to delete old slots: %w", err)
	}

	r.Slots = slots
	if err := insertSlots(ctx, tx, r); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.Version++
	r.UpdatedAt = now
	return nil
}

func execVersioned(ctx context.Context, q querier, query string, args ...any) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

// UpdateReservationStatusWithVersion moves a reservation and its slots to status.
func (db *DB) UpdateReservationStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `UPDATE reservations SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	if err := execVersioned(ctx, tx, query, status, formatTime(time.Now()), id, fromVersion); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE booked_slots SET status = ? WHERE reservation_id = ?`, status, id); err != nil {
		return fmt.Errorf("failed to update slot status: %w", err)
	}
	return tx.Commit()
}

func (db *DB) SetCheckedIn(ctx context.Context, id, fromVersion int64, at time.Time) error {
	query := `UPDATE reservations SET checked_in_at = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	return execVersioned(ctx, db, query, formatTime(at), formatTime(time.Now()), id, fromVersion)
}

// GetExpiredHolds lists held reservations created at or before createdBefore.
func (db *DB) GetExpiredHolds(ctx context.Context, createdBefore time.Time) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE status = ? AND created_at <= ? ORDER BY created_at`
	out, err := db.queryReservations(ctx, query, models.StatusHeld, formatTime(createdBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to get expired holds: %w", err)
	}
	return out, nil
}

// ApplyCancellation writes a cancellation plan in a single transaction.
func (db *DB) ApplyCancellation(ctx context.Context, plan *models.CancellationPlan) error {
	r := plan.Reservation

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	query := `UPDATE reservations SET status = ?, cancel_reason = ?, cancellation_fee = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	if err := execVersioned(ctx, tx, query,
		r.Status, r.CancelReason, r.CancellationFee, formatTime(now), r.ID, r.Version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE booked_slots SET status = ? WHERE reservation_id = ?`, r.Status, r.ID); err != nil {
		return fmt.Errorf("failed to cancel slots: %w", err)
	}

	if len(plan.DeletedItemIDs) > 0 {
		args := make([]any, 0, len(plan.DeletedItemIDs))
		for _, id := range plan.DeletedItemIDs {
			args = append(args, id)
		}
		query := `DELETE FROM voucher_items WHERE id IN (` + placeholders(len(args)) + `)`
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete voucher items: %w", err)
		}
	}

	for _, v := range plan.CancelledVouchers {
		if v.ID == 0 {
			continue
		}
		_, err := tx.ExecContext(ctx, `UPDATE vouchers SET status = ?, updated_at = ? WHERE id = ? AND status <> ?`,
			models.VoucherCancelled, formatTime(now), v.ID, models.VoucherPaid)
		if err != nil {
			return fmt.Errorf("failed to cancel voucher %d: %w", v.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.Version++
	r.UpdatedAt = now
	return nil
}
