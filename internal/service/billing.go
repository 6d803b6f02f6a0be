package service

import (
	"context"
	"fmt"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/reservation"
	"courtbook/internal/voucher"
)

// maxStatusSteps bounds re-derivation; pending needs two steps to reach paid.
const maxStatusSteps = 3

// snapshot is everything the price of one reservation depends on.
type snapshot struct {
	court    *models.Court
	facility *models.Facility
	vouchers []*models.Voucher
	invoices []*models.Invoice
	catalog  pricing.Catalog
	totals   pricing.Totals
}

func (s *BookingService) snapshot(ctx context.Context, r *models.Reservation) (*snapshot, error) {
	court, facility, err := s.courtContext(ctx, r.CourtID)
	if err != nil {
		return nil, err
	}
	vouchers, err := s.repo.GetReservationVouchers(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.repo.GetReservationInvoices(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx, facility.ID)
	if err != nil {
		return nil, err
	}

	totals, err := pricing.CalculateTotals(pricing.Input{
		Court:    *court,
		Facility: *facility,
		Slots:    r.Intervals(),
		Vouchers: vouchers,
		Catalog:  catalog,
		Invoices: invoices,
	})
	if err != nil {
		return nil, fmt.Errorf("price reservation %d: %w", r.ID, err)
	}
	return &snapshot{
		court:    court,
		facility: facility,
		vouchers: vouchers,
		invoices: invoices,
		catalog:  catalog,
		totals:   totals,
	}, nil
}

// ReservationTotals prices a stored reservation with its vouchers and
// invoices.
func (s *BookingService) ReservationTotals(ctx context.Context, id int64) (pricing.Totals, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return pricing.Totals{}, err
	}
	snap, err := s.snapshot(ctx, r)
	if err != nil {
		return pricing.Totals{}, err
	}
	return snap.totals, nil
}

// RecordInvoice appends an invoice against a reservation (court fee) or a
// voucher (service fee). Invoices recorded as paid update statuses at once.
func (s *BookingService) RecordInvoice(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if inv.Amount <= 0 {
		return nil, domain.Invalid("amount", "must be positive")
	}
	switch inv.Method {
	case models.PaymentCash, models.PaymentTransfer, models.PaymentCard:
	default:
		return nil, domain.Invalid("method", "unknown payment method %q", inv.Method)
	}
	switch inv.Status {
	case "":
		inv.Status = models.InvoicePending
	case models.InvoicePending:
	case models.InvoicePaid:
		now := s.now()
		inv.PaidAt = &now
	default:
		return nil, domain.Invalid("status", "unknown invoice status %q", inv.Status)
	}

	reservationID, err := s.invoiceReservation(ctx, inv)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("invoice_id", inv.ID).Int64("reservation_id", reservationID).Int64("amount", inv.Amount).Str("status", inv.Status).Msg("Invoice recorded")
	if inv.IsPaid() {
		s.publishInvoice(inv)
		if err := s.syncStatuses(ctx, reservationID); err != nil {
			return inv, err
		}
	}
	return inv, nil
}

// invoiceReservation checks the invoice target and returns the reservation
// it belongs to.
func (s *BookingService) invoiceReservation(ctx context.Context, inv *models.Invoice) (int64, error) {
	if (inv.ReservationID == nil) == (inv.VoucherID == nil) {
		return 0, domain.Invalid("invoice", "must reference exactly one of reservation or voucher")
	}

	if inv.ReservationID != nil {
		r, err := s.repo.GetReservation(ctx, *inv.ReservationID)
		if err != nil {
			return 0, err
		}
		if !r.IsActive() {
			return 0, &domain.InvalidStateError{Entity: "reservation", From: r.Status, To: "invoiced"}
		}
		return r.ID, nil
	}

	v, err := s.repo.GetVoucher(ctx, *inv.VoucherID)
	if err != nil {
		return 0, err
	}
	if v.Status != models.VoucherLocked && v.Status != models.VoucherPaid {
		return 0, &domain.InvalidStateError{Entity: "voucher", From: v.Status, To: "invoiced"}
	}
	return v.ReservationID, nil
}

func (s *BookingService) SettleInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	if err := s.repo.SettleInvoice(ctx, id, s.now()); err != nil {
		return nil, err
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishInvoice(inv)

	reservationID := int64(0)
	if inv.ReservationID != nil {
		reservationID = *inv.ReservationID
	} else {
		v, err := s.repo.GetVoucher(ctx, *inv.VoucherID)
		if err != nil {
			return inv, err
		}
		reservationID = v.ReservationID
	}
	return inv, s.syncStatuses(ctx, reservationID)
}

func (s *BookingService) publishInvoice(inv *models.Invoice) {
	s.publish(events.EventInvoiceSettled, events.InvoiceEventPayload{
		InvoiceID:     inv.ID,
		ReservationID: inv.ReservationID,
		VoucherID:     inv.VoucherID,
		Amount:        inv.Amount,
		Method:        inv.Method,
	}, inv.ID)
}

// syncStatuses re-derives reservation and voucher statuses from the invoice
// ledger until they are stable.
func (s *BookingService) syncStatuses(ctx context.Context, reservationID int64) error {
	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	snap, err := s.snapshot(ctx, r)
	if err != nil {
		return err
	}

	for step := 0; step < maxStatusSteps; step++ {
		next := reservation.DeriveStatus(r, snap.invoices, snap.totals.CourtDue())
		if next == r.Status {
			break
		}
		moved, err := reservation.Transition(r, next, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.UpdateReservationStatusWithVersion(ctx, r.ID, r.Version, next); err != nil {
			return err
		}
		moved.Version = r.Version + 1
		r = moved

		s.logger.Info().Int64("reservation_id", r.ID).Str("status", next).Msg("Reservation status derived from payments")
		if next == models.StatusPaid {
			s.publishReservation(events.EventReservationPaid, r, "billing")
		}
	}

	for _, v := range snap.vouchers {
		fee, err := voucher.Fee(v, snap.catalog)
		if err != nil {
			return err
		}
		next := voucher.DeriveStatus(v, snap.invoices, fee)
		if next == v.Status {
			continue
		}
		if err := s.repo.UpdateVoucherStatus(ctx, v.ID, next); err != nil {
			return err
		}
		metrics.IncVoucher(next)
		s.publish(events.EventVoucherPaid, events.VoucherEventPayload{
			VoucherID:     v.ID,
			ReservationID: v.ReservationID,
			Status:        next,
			Fee:           fee,
		}, v.ID)
	}
	return nil
}
