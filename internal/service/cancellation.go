package service

import (
	"context"
	"errors"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/reservation"
)

// CancelReservation cancels on behalf of the customer. The fee is a share of
// the booking total that depends on how close to the start the request is.
func (s *BookingService) CancelReservation(ctx context.Context, id int64, at time.Time) (*models.CancellationPlan, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.CanTransition(r.Status, models.StatusCancelled) {
		return nil, &domain.InvalidStateError{Entity: "reservation", From: r.Status, To: models.StatusCancelled}
	}

	snap, err := s.snapshot(ctx, r)
	if err != nil {
		return nil, err
	}
	fee := pricing.CancellationFee(snap.facility.Pricing, snap.totals.Total, r.EarliestStart(), at)
	return s.cancel(ctx, r, snap.vouchers, models.ReasonCustomer, fee, at)
}

// MarkNoShow cancels a started reservation nobody checked in for and charges
// the no-show fee.
func (s *BookingService) MarkNoShow(ctx context.Context, id int64, at time.Time) (*models.CancellationPlan, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.CanTransition(r.Status, models.StatusCancelled) {
		return nil, &domain.InvalidStateError{Entity: "reservation", From: r.Status, To: models.StatusCancelled, Reason: errors.New("no-show")}
	}
	if !reservation.IsNoShow(r, at) {
		if r.CheckedInAt != nil {
			return nil, domain.Invalid("checked_in_at", "reservation %d was checked in", id)
		}
		return nil, domain.Invalid("at", "reservation %d has not started yet", id)
	}

	snap, err := s.snapshot(ctx, r)
	if err != nil {
		return nil, err
	}
	fee := pricing.NoShowFee(snap.facility.Pricing, snap.totals.Total)
	return s.cancel(ctx, r, snap.vouchers, models.ReasonNoShow, fee, at)
}

// ExpireHolds cancels held reservations older than the facility's hold
// window. Failures on single reservations do not stop the pass.
func (s *BookingService) ExpireHolds(ctx context.Context, now time.Time) (int, error) {
	holds, err := s.repo.GetExpiredHolds(ctx, now)
	if err != nil {
		return 0, err
	}

	windows := make(map[int64]time.Duration)
	var expired int
	var errs []error
	for _, r := range holds {
		window, ok := windows[r.CourtID]
		if !ok {
			_, facility, err := s.courtContext(ctx, r.CourtID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			minutes := facility.Pricing.MaxHoldMinutes
			if minutes <= 0 {
				minutes = models.DefaultMaxHoldMinutes
			}
			window = time.Duration(minutes) * time.Minute
			windows[r.CourtID] = window
		}
		if !reservation.HoldExpired(r, window, now) {
			continue
		}

		vouchers, err := s.repo.GetReservationVouchers(ctx, r.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := s.cancel(ctx, r, vouchers, models.ReasonHoldExpired, 0, now); err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) {
				// paid or cancelled meanwhile
				continue
			}
			errs = append(errs, err)
			continue
		}
		expired++
	}
	return expired, errors.Join(errs...)
}

func (s *BookingService) cancel(ctx context.Context, r *models.Reservation, vouchers []*models.Voucher, reason string, fee int64, at time.Time) (*models.CancellationPlan, error) {
	plan, err := reservation.PlanCancellation(r, vouchers, reason, fee, at)
	if err != nil {
		return nil, err
	}
	itemIDs := make(map[int64][]int64, len(vouchers))
	for _, v := range vouchers {
		itemIDs[v.ID] = v.ItemIDs()
	}
	if err := s.repo.ApplyCancellation(ctx, plan); err != nil {
		return nil, err
	}

	metrics.IncCancellation(reason)
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Str("reason", reason).
		Int64("fee", fee).
		Int("cancelled_vouchers", len(plan.CancelledVouchers)).
		Int("reconcile_vouchers", len(plan.ReconcileVouchers)).
		Msg("Reservation cancelled")

	s.publishReservation(events.EventReservationCancelled, plan.Reservation, "")
	for _, v := range plan.CancelledVouchers {
		metrics.IncVoucher(models.VoucherCancelled)
		s.publish(events.EventVoucherCancelled, events.VoucherEventPayload{
			VoucherID:      v.ID,
			ReservationID:  v.ReservationID,
			Status:         v.Status,
			DeletedItemIDs: itemIDs[v.ID],
		}, v.ID)
	}
	for _, v := range plan.ReconcileVouchers {
		s.logger.Warn().Int64("voucher_id", v.ID).Int64("reservation_id", r.ID).Msg("Paid voucher needs reconciliation")
		s.publish(events.EventReconcileRequired, events.VoucherEventPayload{
			VoucherID:     v.ID,
			ReservationID: v.ReservationID,
			Status:        v.Status,
		}, v.ID)
	}
	return plan, nil
}
