package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

const invoiceColumns = `id, reservation_id, voucher_id, amount, method, status, created_at, paid_at`

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var inv models.Invoice
	var reservationID, voucherID sql.NullInt64
	var createdAt string
	var paidAt sql.NullString
	if err := row.Scan(&inv.ID, &reservationID, &voucherID, &inv.Amount, &inv.Method, &inv.Status, &createdAt, &paidAt); err != nil {
		return nil, err
	}

	var err error
	inv.ReservationID = intPtr(reservationID)
	inv.VoucherID = intPtr(voucherID)
	if inv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.PaidAt, err = parseNullTime(paidAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateInvoice appends an invoice to the ledger.
func (db *DB) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if (inv.ReservationID == nil) == (inv.VoucherID == nil) {
		return domain.Invalid("invoice", "must reference exactly one of reservation or voucher")
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}

	query := `INSERT INTO invoices (reservation_id, voucher_id, amount, method, status, created_at, paid_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		nullInt(inv.ReservationID), nullInt(inv.VoucherID), inv.Amount, inv.Method, inv.Status,
		formatTime(inv.CreatedAt), nullTime(inv.PaidAt))
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	if inv.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

func (db *DB) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scanInvoice(db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, domain.NotFound("invoice", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// SettleInvoice marks a pending invoice paid. Settling twice is an error.
func (db *DB) SettleInvoice(ctx context.Context, id int64, at time.Time) error {
	result, err := db.ExecContext(ctx, `UPDATE invoices SET status = ?, paid_at = ? WHERE id = ? AND status = ?`,
		models.InvoicePaid, formatTime(at), id, models.InvoicePending)
	if err != nil {
		return fmt.Errorf("failed to settle invoice: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		inv, err := db.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		return &domain.InvalidStateError{Entity: "invoice", From: inv.Status, To: models.InvoicePaid}
	}
	return nil
}

// GetReservationInvoices returns court invoices of a reservation and service
// invoices of its vouchers.
func (db *DB) GetReservationInvoices(ctx context.Context, reservationID int64) ([]*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
              WHERE reservation_id = ?
                 OR voucher_id IN (SELECT id FROM vouchers WHERE reservation_id = ?)
              ORDER BY id`
	rows, err := db.QueryContext(ctx, query, reservationID, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoices: %w", err)
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
