// Package reservation is the court booking state machine.
package reservation

import (
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/schedule"
	"courtbook/internal/voucher"
)

const entity = "reservation"

var transitions = map[string][]string{
	models.StatusHeld:    {models.StatusBooked, models.StatusPaid, models.StatusCancelled},
	models.StatusPending: {models.StatusBooked, models.StatusCancelled},
	models.StatusBooked:  {models.StatusPaid, models.StatusCancelled},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func clone(r *models.Reservation) *models.Reservation {
	out := *r
	out.Slots = make([]models.BookedSlot, len(r.Slots))
	copy(out.Slots, r.Slots)
	return &out
}

func setStatus(r *models.Reservation, status string, now time.Time) {
	r.Status = status
	r.UpdatedAt = now
	for i := range r.Slots {
		r.Slots[i].Status = status
	}
}

// Transition returns a copy of r moved to status to, slots included.
func Transition(r *models.Reservation, to string, now time.Time) (*models.Reservation, error) {
	if !CanTransition(r.Status, to) {
		return nil, &domain.InvalidStateError{Entity: entity, From: r.Status, To: to}
	}
	out := clone(r)
	setStatus(out, to, now)
	return out, nil
}

// Request describes a new reservation before it is stored.
type Request struct {
	CourtID    int64             `json:"court_id"`
	CustomerID int64             `json:"customer_id"`
	StaffID    *int64            `json:"staff_id,omitempty"`
	Channel    string            `json:"channel"`
	Status     string            `json:"status,omitempty"`
	Slots      []models.Interval `json:"slots"`
}

// New builds an unsaved reservation. Online bookings start held and direct
// bookings start booked unless Status says otherwise.
func New(req Request, now time.Time) (*models.Reservation, error) {
	if req.CourtID <= 0 {
		return nil, domain.Invalid("court_id", "is required")
	}
	if req.CustomerID <= 0 {
		return nil, domain.Invalid("customer_id", "is required")
	}

	channel := req.Channel
	switch channel {
	case "":
		channel = models.ChannelOnline
	case models.ChannelOnline, models.ChannelDirect:
	default:
		return nil, domain.Invalid("channel", "unknown channel %q", req.Channel)
	}

	status := req.Status
	if status == "" {
		status = models.StatusHeld
		if channel == models.ChannelDirect {
			status = models.StatusBooked
		}
	}
	switch status {
	case models.StatusHeld, models.StatusPending, models.StatusBooked:
	default:
		return nil, domain.Invalid("status", "reservation cannot start as %q", status)
	}

	intervals, err := schedule.NormalizeSelection(req.Slots)
	if err != nil {
		return nil, err
	}

	r := &models.Reservation{
		CourtID:    req.CourtID,
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		Channel:    channel,
		CreatedAt:  now,
	}
	r.Slots = bookedSlots(req.CourtID, intervals)
	setStatus(r, status, now)
	return r, nil
}

func bookedSlots(courtID int64, intervals []models.Interval) []models.BookedSlot {
	out := make([]models.BookedSlot, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, models.BookedSlot{CourtID: courtID, Start: iv.Start, End: iv.End})
	}
	return out
}

// Reschedule replaces the slots of a live, unpaid reservation.
func Reschedule(r *models.Reservation, slots []models.Interval, now time.Time) (*models.Reservation, error) {
	switch r.Status {
	case models.StatusHeld, models.StatusPending, models.StatusBooked:
	default:
		return nil, &domain.InvalidStateError{Entity: entity, From: r.Status, To: r.Status}
	}
	intervals, err := schedule.NormalizeSelection(slots)
	if err != nil {
		return nil, err
	}

	out := clone(r)
	out.Slots = bookedSlots(r.CourtID, intervals)
	for i := range out.Slots {
		out.Slots[i].ReservationID = r.ID
	}
	setStatus(out, r.Status, now)
	return out, nil
}

// DeriveStatus applies paid reservation invoices: a first payment confirms a
// hold, full payment of courtDue marks the reservation paid.
func DeriveStatus(r *models.Reservation, invoices []*models.Invoice, courtDue int64) string {
	if r.Status == models.StatusCancelled || r.Status == models.StatusPaid {
		return r.Status
	}

	var paid int64
	var settled bool
	for _, inv := range invoices {
		if inv == nil || inv.ReservationID == nil || *inv.ReservationID != r.ID || !inv.IsPaid() {
			continue
		}
		paid += inv.Amount
		settled = true
	}
	switch {
	case !settled:
		return r.Status
	case paid >= courtDue && CanTransition(r.Status, models.StatusPaid):
		return models.StatusPaid
	case paid >= courtDue && r.Status == models.StatusPending:
		return models.StatusBooked
	case r.Status == models.StatusHeld || r.Status == models.StatusPending:
		return models.StatusBooked
	}
	return r.Status
}

// HoldExpired reports whether a held reservation outlived its grace window.
func HoldExpired(r *models.Reservation, maxHold time.Duration, now time.Time) bool {
	return r.Status == models.StatusHeld && !now.Before(r.CreatedAt.Add(maxHold))
}

// CheckIn marks arrival of the customer.
func CheckIn(r *models.Reservation, now time.Time) (*models.Reservation, error) {
	if r.Status != models.StatusBooked && r.Status != models.StatusPaid {
		return nil, &domain.InvalidStateError{Entity: entity, From: r.Status, To: "checked_in"}
	}
	if r.CheckedInAt != nil {
		return nil, domain.Invalid("checked_in_at", "reservation %d already checked in", r.ID)
	}
	out := clone(r)
	out.CheckedInAt = &now
	out.UpdatedAt = now
	return out, nil
}

// IsNoShow reports a started reservation without check-in.
func IsNoShow(r *models.Reservation, now time.Time) bool {
	start := r.EarliestStart()
	return r.IsActive() && r.CheckedInAt == nil && !start.IsZero() && start.Before(now)
}

// PlanCancellation computes every change cancelling r implies. Slots are
// freed, draft and locked vouchers are cancelled with their items, and paid
// vouchers are left alone and reported for reconciliation.
func PlanCancellation(r *models.Reservation, vouchers []*models.Voucher, reason string, fee int64, now time.Time) (*models.CancellationPlan, error) {
	cancelled, err := Transition(r, models.StatusCancelled, now)
	if err != nil {
		return nil, err
	}
	cancelled.CancelReason = reason
	cancelled.CancellationFee = fee

	plan := &models.CancellationPlan{Reservation: cancelled, Fee: fee}
	for _, v := range vouchers {
		if v == nil || v.ReservationID != r.ID {
			continue
		}
		out, deleted, reconcile := voucher.CascadeCancel(v, now)
		switch {
		case reconcile:
			plan.ReconcileVouchers = append(plan.ReconcileVouchers, out)
		case out != nil:
			plan.CancelledVouchers = append(plan.CancelledVouchers, out)
			plan.DeletedItemIDs = append(plan.DeletedItemIDs, deleted...)
		}
	}
	return plan, nil
}
