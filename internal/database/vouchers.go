package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// CreateVoucher persists a confirmed voucher with its line items.
func (db *DB) CreateVoucher(ctx context.Context, v *models.Voucher) error {
	if v.IsDraft() {
		return domain.Invalid("status", "draft vouchers are not persisted")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	query := `INSERT INTO vouchers (reservation_id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query, v.ReservationID, v.Status, formatTime(v.CreatedAt), formatTime(v.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create voucher: %w", err)
	}
	if v.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertItems(ctx, tx, v); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItems(ctx context.Context, tx *sql.Tx, v *models.Voucher) error {
	for i := range v.Items {
		v.Items[i].VoucherID = v.ID
		if err := insertItem(ctx, tx, &v.Items[i]); err != nil {
			return err
		}
	}
	return nil
}

func insertItem(ctx context.Context, tx *sql.Tx, it *models.LineItem) error {
	query := `INSERT INTO voucher_items (voucher_id, branch_service_id, quantity, start_time, end_time, staff_id)
              VALUES (?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		it.VoucherID, it.BranchServiceID, it.Quantity, nullTime(it.Start), nullTime(it.End), nullInt(it.StaffID))
	if err != nil {
		return fmt.Errorf("failed to insert voucher item: %w", err)
	}
	if it.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

func (db *DB) GetVoucher(ctx context.Context, id int64) (*models.Voucher, error) {
	vouchers, err := db.queryVouchers(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	if len(vouchers) == 0 {
		return nil, domain.NotFound("voucher", id)
	}
	return vouchers[0], nil
}

func (db *DB) GetReservationVouchers(ctx context.Context, reservationID int64) ([]*models.Voucher, error) {
	vouchers, err := db.queryVouchers(ctx, `WHERE reservation_id = ? ORDER BY id`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation vouchers: %w", err)
	}
	return vouchers, nil
}

func (db *DB) queryVouchers(ctx context.Context, where string, args ...any) ([]*models.Voucher, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, reservation_id, status, created_at, updated_at FROM vouchers `+where, args...)
	if err != nil {
		return nil, err
	}

	var out []*models.Voucher
	byID := make(map[int64]*models.Voucher)
	for rows.Next() {
		var v models.Voucher
		var createdAt, updatedAt string
		if err := rows.Scan(&v.ID, &v.ReservationID, &v.Status, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		v.CreatedAt, _ = parseTime(createdAt)
		v.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &v)
		byID[v.ID] = &v
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(out) == 0 {
		return out, nil
	}

	ids := make([]any, 0, len(out))
	for _, v := range out {
		ids = append(ids, v.ID)
	}
	itemRows, err := db.QueryContext(ctx, `SELECT id, voucher_id, branch_service_id, quantity, start_time, end_time, staff_id
              FROM voucher_items WHERE voucher_id IN (`+placeholders(len(ids))+`) ORDER BY id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to load voucher items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var it models.LineItem
		var start, end sql.NullString
		var staffID sql.NullInt64
		if err := itemRows.Scan(&it.ID, &it.VoucherID, &it.BranchServiceID, &it.Quantity, &start, &end, &staffID); err != nil {
			return nil, fmt.Errorf("failed to scan voucher item: %w", err)
		}
		if it.Start, err = parseNullTime(start); err != nil {
			return nil, err
		}
		if it.End, err = parseNullTime(end); err != nil {
			return nil, err
		}
		it.StaffID = intPtr(staffID)
		if v, ok := byID[it.VoucherID]; ok {
			v.Items = append(v.Items, it)
		}
	}
	return out, itemRows.Err()
}

// UpdateVoucher stores the status and item list of a voucher. Items with an
// id are updated in place, items without one are inserted and deleted lists
// the ids to remove. Paid vouchers are never rewritten.
func (db *DB) UpdateVoucher(ctx context.Context, v *models.Voucher, deleted []int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := voucherStatus(ctx, tx, v.ID)
	if err != nil {
		return err
	}
	if current == models.VoucherPaid {
		return &domain.InvalidStateError{Entity: "voucher", From: current, To: v.Status, Reason: domain.ErrVoucherLocked}
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx, `UPDATE vouchers SET status = ?, updated_at = ? WHERE id = ?`,
		v.Status, formatTime(now), v.ID); err != nil {
		return fmt.Errorf("failed to update voucher: %w", err)
	}
	for _, id := range deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM voucher_items WHERE id = ? AND voucher_id = ?`, id, v.ID); err != nil {
			return fmt.Errorf("failed to delete voucher item %d: %w", id, err)
		}
	}

	update := `UPDATE voucher_items SET branch_service_id = ?, quantity = ?, start_time = ?, end_time = ?, staff_id = ?
               WHERE id = ? AND voucher_id = ?`
	for i := range v.Items {
		it := &v.Items[i]
		it.VoucherID = v.ID
		if it.ID == 0 {
			if err := insertItem(ctx, tx, it); err != nil {
				return err
			}
			continue
		}
		result, err := tx.ExecContext(ctx, update,
			it.BranchServiceID, it.Quantity, nullTime(it.Start), nullTime(it.End), nullInt(it.StaffID), it.ID, v.ID)
		if err != nil {
			return fmt.Errorf("failed to update voucher item %d: %w", it.ID, err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return domain.NotFound("voucher item", it.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	v.UpdatedAt = now
	return nil
}

// UpdateVoucherStatus changes only the status; line items keep their ids.
func (db *DB) UpdateVoucherStatus(ctx context.Context, id int64, status string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := voucherStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if current == models.VoucherPaid && status != models.VoucherPaid {
		return &domain.InvalidStateError{Entity: "voucher", From: current, To: status}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE vouchers SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("failed to update voucher status: %w", err)
	}
	return tx.Commit()
}

func voucherStatus(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM vouchers WHERE id = ?`, id).Scan(&status)
	if isNoRows(err) {
		return "", domain.NotFound("voucher", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read voucher status: %w", err)
	}
	return status, nil
}
