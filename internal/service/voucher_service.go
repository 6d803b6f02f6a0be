package service

import (
	"context"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/voucher"
)

// activeReservation loads a reservation that can still take services.
func (s *BookingService) activeReservation(ctx context.Context, id int64, action string) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsActive() {
		return nil, &domain.InvalidStateError{Entity: "reservation", From: r.Status, To: action}
	}
	return r, nil
}

// SaveDraft stores a client-side voucher. A draft without DraftID is created;
// one with DraftID replaces the stored copy and refreshes its TTL.
func (s *BookingService) SaveDraft(ctx context.Context, draft *models.Voucher) (*models.Voucher, error) {
	if draft == nil {
		return nil, domain.Invalid("voucher", "is required")
	}
	if draft.Status != "" && draft.Status != models.VoucherDraft {
		return nil, &domain.InvalidStateError{Entity: "voucher", From: draft.Status, To: models.VoucherDraft}
	}
	if _, err := s.activeReservation(ctx, draft.ReservationID, "voucher_draft"); err != nil {
		return nil, err
	}

	now := s.now()
	var v *models.Voucher
	if draft.DraftID == "" {
		v = voucher.NewDraft(draft.ReservationID, draft.Items, now)
	} else {
		existing, err := s.drafts.GetDraft(ctx, draft.DraftID)
		if err != nil {
			return nil, err
		}
		if existing.ReservationID != draft.ReservationID {
			return nil, domain.Invalid("reservation_id", "draft %s belongs to reservation %d", draft.DraftID, existing.ReservationID)
		}
		v = voucher.NewDraft(draft.ReservationID, draft.Items, existing.CreatedAt)
		v.DraftID = draft.DraftID
		v.UpdatedAt = now
	}

	if err := s.drafts.SaveDraft(ctx, v, s.draftTTL); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *BookingService) GetDraft(ctx context.Context, draftID string) (*models.Voucher, error) {
	return s.drafts.GetDraft(ctx, draftID)
}

func (s *BookingService) DiscardDraft(ctx context.Context, draftID string) error {
	if _, err := s.drafts.GetDraft(ctx, draftID); err != nil {
		return err
	}
	return s.drafts.DeleteDraft(ctx, draftID)
}

// ConfirmVoucher locks a draft and persists it. The draft is removed from
// the draft store afterwards.
func (s *BookingService) ConfirmVoucher(ctx context.Context, draftID string) (*models.Voucher, error) {
	draft, err := s.drafts.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	r, err := s.activeReservation(ctx, draft.ReservationID, models.VoucherLocked)
	if err != nil {
		return nil, err
	}
	_, facility, err := s.courtContext(ctx, r.CourtID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx, facility.ID)
	if err != nil {
		return nil, err
	}

	locked, err := voucher.Confirm(draft, catalog, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateVoucher(ctx, locked); err != nil {
		return nil, err
	}
	if err := s.drafts.DeleteDraft(ctx, draftID); err != nil {
		s.logger.Warn().Err(err).Str("draft_id", draftID).Msg("Failed to delete confirmed draft")
	}

	fee, _ := voucher.Fee(locked, catalog)
	metrics.IncVoucher(models.VoucherLocked)
	s.logger.Info().Int64("voucher_id", locked.ID).Int64("reservation_id", r.ID).Int64("fee", fee).Msg("Voucher locked")
	s.publish(events.EventVoucherLocked, events.VoucherEventPayload{
		VoucherID:     locked.ID,
		ReservationID: locked.ReservationID,
		Status:        locked.Status,
		Fee:           fee,
	}, locked.ID)
	return locked, nil
}

// CancelVoucher cancels a persisted voucher. Locked vouchers need
// staffOverride; paid vouchers cannot be cancelled.
func (s *BookingService) CancelVoucher(ctx context.Context, id int64, staffOverride bool) (*models.Voucher, error) {
	v, err := s.repo.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	cancelled, deleted, err := voucher.Cancel(v, staffOverride, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateVoucher(ctx, cancelled, deleted); err != nil {
		return nil, err
	}

	metrics.IncVoucher(models.VoucherCancelled)
	s.logger.Info().Int64("voucher_id", id).Bool("staff_override", staffOverride).Msg("Voucher cancelled")
	s.publish(events.EventVoucherCancelled, events.VoucherEventPayload{
		VoucherID:      id,
		ReservationID:  cancelled.ReservationID,
		Status:         cancelled.Status,
		DeletedItemIDs: deleted,
	}, id)
	return cancelled, nil
}

// EditVoucherItems replaces the line items of a persisted voucher. Locked
// vouchers need staffOverride.
func (s *BookingService) EditVoucherItems(ctx context.Context, id int64, items []models.LineItem, staffOverride bool) (*models.Voucher, error) {
	v, err := s.repo.GetVoucher(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.activeReservation(ctx, v.ReservationID, "voucher_edited")
	if err != nil {
		return nil, err
	}
	_, facility, err := s.courtContext(ctx, r.CourtID)
	if err != nil {
		return nil, err
	}
	catalog, err := s.catalog(ctx, facility.ID)
	if err != nil {
		return nil, err
	}

	edited, deleted, err := voucher.EditItems(v, items, staffOverride, catalog, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateVoucher(ctx, edited, deleted); err != nil {
		return nil, err
	}

	fee, _ := voucher.Fee(edited, catalog)
	s.logger.Info().Int64("voucher_id", id).Int64("fee", fee).Int("items", len(edited.Items)).Msg("Voucher edited")
	s.publish(events.EventVoucherEdited, events.VoucherEventPayload{
		VoucherID:      id,
		ReservationID:  edited.ReservationID,
		Status:         edited.Status,
		Fee:            fee,
		DeletedItemIDs: deleted,
	}, id)
	return edited, nil
}
