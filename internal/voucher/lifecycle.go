// Package voucher implements the draft, locked, paid and cancelled lifecycle
// of service vouchers. Functions return new values and never mutate input.
package voucher

import (
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/pricing"

	"github.com/google/uuid"
)

const entity = "voucher"

func clone(v *models.Voucher) *models.Voucher {
	out := *v
	out.Items = make([]models.LineItem, len(v.Items))
	copy(out.Items, v.Items)
	return &out
}

// NewDraft creates a client-side voucher with a fresh draft id.
func NewDraft(reservationID int64, items []models.LineItem, now time.Time) *models.Voucher {
	v := &models.Voucher{
		DraftID:       uuid.NewString(),
		ReservationID: reservationID,
		Status:        models.VoucherDraft,
		Items:         make([]models.LineItem, len(items)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	copy(v.Items, items)
	return v
}

func validateItems(items []models.LineItem, catalog pricing.Catalog) error {
	if len(items) == 0 {
		return domain.Invalid("items", "voucher needs at least one line item")
	}
	for _, it := range items {
		if err := catalog.ValidateItem(it); err != nil {
			return err
		}
	}
	return nil
}

// Confirm locks a draft. The returned voucher has no draft id and is ready to
// be persisted; its price is the same as the draft's.
func Confirm(v *models.Voucher, catalog pricing.Catalog, now time.Time) (*models.Voucher, error) {
	if v.Status != models.VoucherDraft {
		return nil, &domain.InvalidStateError{Entity: entity, From: v.Status, To: models.VoucherLocked}
	}
	if v.ReservationID <= 0 {
		return nil, domain.Invalid("reservation_id", "voucher must belong to a reservation")
	}
	if err := validateItems(v.Items, catalog); err != nil {
		return nil, err
	}

	locked := clone(v)
	locked.DraftID = ""
	locked.Status = models.VoucherLocked
	locked.UpdatedAt = now
	return locked, nil
}

// EditItems replaces the item list. Drafts are free to edit, locked vouchers
// need a staff override, paid and cancelled vouchers never change. It returns
// the ids of persisted items that were dropped.
func EditItems(v *models.Voucher, items []models.LineItem, staffOverride bool, catalog pricing.Catalog, now time.Time) (*models.Voucher, []int64, error) {
	switch v.Status {
	case models.VoucherDraft:
	case models.VoucherLocked:
		if !staffOverride {
			return nil, nil, &domain.InvalidStateError{Entity: entity, From: v.Status, To: v.Status, Reason: domain.ErrVoucherLocked}
		}
	default:
		return nil, nil, &domain.InvalidStateError{Entity: entity, From: v.Status, To: v.Status}
	}
	if err := validateItems(items, catalog); err != nil {
		return nil, nil, err
	}

	owned := make(map[int64]bool, len(v.Items))
	for _, id := range v.ItemIDs() {
		owned[id] = true
	}
	kept := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.ID == 0 {
			continue
		}
		if !owned[it.ID] || kept[it.ID] {
			return nil, nil, domain.Invalid("items", "item %d is not an item of voucher %d", it.ID, v.ID)
		}
		kept[it.ID] = true
	}
	var deleted []int64
	for _, id := range v.ItemIDs() {
		if !kept[id] {
			deleted = append(deleted, id)
		}
	}

	edited := clone(v)
	edited.Items = make([]models.LineItem, len(items))
	for i, it := range items {
		it.VoucherID = v.ID
		edited.Items[i] = it
	}
	edited.UpdatedAt = now
	return edited, deleted, nil
}

// Fee is the service fee of one voucher.
func Fee(v *models.Voucher, catalog pricing.Catalog) (int64, error) {
	return pricing.CalculateServiceFee(v.Items, catalog)
}

// DeriveStatus reports the status implied by invoices: a locked voucher is
// paid once its paid invoices cover fee.
func DeriveStatus(v *models.Voucher, invoices []*models.Invoice, fee int64) string {
	if v.Status != models.VoucherLocked || v.ID == 0 {
		return v.Status
	}

	var paid int64
	var settled bool
	for _, inv := range invoices {
		if inv == nil || inv.VoucherID == nil || *inv.VoucherID != v.ID || !inv.IsPaid() {
			continue
		}
		paid += inv.Amount
		settled = true
	}
	if settled && paid >= fee {
		return models.VoucherPaid
	}
	return v.Status
}

// Cancel cancels a draft, or a locked voucher when staffOverride is set.
// Paid vouchers are never cancelled. The ids of removed items are returned.
func Cancel(v *models.Voucher, staffOverride bool, now time.Time) (*models.Voucher, []int64, error) {
	switch v.Status {
	case models.VoucherDraft:
	case models.VoucherLocked:
		if !staffOverride {
			return nil, nil, &domain.InvalidStateError{
				Entity: entity, From: v.Status, To: models.VoucherCancelled, Reason: domain.ErrVoucherLocked,
			}
		}
	case models.VoucherPaid:
		return nil, nil, &domain.InvalidStateError{
			Entity: entity, From: v.Status, To: models.VoucherCancelled, Reason: domain.ErrVoucherLocked,
		}
	default:
		return nil, nil, &domain.InvalidStateError{Entity: entity, From: v.Status, To: models.VoucherCancelled}
	}

	return cancelled(v, now), v.ItemIDs(), nil
}

func cancelled(v *models.Voucher, now time.Time) *models.Voucher {
	out := clone(v)
	out.Status = models.VoucherCancelled
	out.Items = nil
	out.UpdatedAt = now
	return out
}

// CascadeCancel is used when the parent reservation is cancelled. Draft and
// locked vouchers are cancelled; paid ones are returned unchanged with
// reconcile set. Already cancelled vouchers yield nil.
func CascadeCancel(v *models.Voucher, now time.Time) (out *models.Voucher, deleted []int64, reconcile bool) {
	switch v.Status {
	case models.VoucherDraft, models.VoucherLocked:
		return cancelled(v, now), v.ItemIDs(), false
	case models.VoucherPaid:
		return v, nil, true
	default:
		return nil, nil, false
	}
}
