package reservation

import (
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func slot(h int) models.Interval {
	return models.Interval{Start: day.Add(time.Duration(h) * time.Hour), End: day.Add(time.Duration(h+1) * time.Hour)}
}

func stored(status string) *models.Reservation {
	r, err := New(Request{CourtID: 1, CustomerID: 2, Status: status, Slots: []models.Interval{slot(9), slot(8)}}, day)
	if err != nil {
		panic(err)
	}
	r.ID = 7
	for i := range r.Slots {
		r.Slots[i].ID = int64(70 + i)
		r.Slots[i].ReservationID = 7
	}
	return r
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to string
		ok       bool
	}{
		{models.StatusHeld, models.StatusBooked, true},
		{models.StatusHeld, models.StatusPaid, true},
		{models.StatusHeld, models.StatusCancelled, true},
		{models.StatusPending, models.StatusBooked, true},
		{models.StatusPending, models.StatusPaid, false},
		{models.StatusBooked, models.StatusPaid, true},
		{models.StatusBooked, models.StatusHeld, false},
		{models.StatusPaid, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusBooked, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))

			r := stored(models.StatusBooked)
			r.Status = tt.from
			_, err := Transition(r, tt.to, day)
			if tt.ok {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidState)
			}
		})
	}
}

func TestTransition_MirrorsSlots(t *testing.T) {
	r := stored(models.StatusHeld)
	out, err := Transition(r, models.StatusBooked, day.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, models.StatusBooked, out.Status)
	for _, s := range out.Slots {
		assert.Equal(t, models.StatusBooked, s.Status)
	}
	assert.Equal(t, models.StatusHeld, r.Slots[0].Status, "input is not mutated")
}

func TestNew(t *testing.T) {
	r, err := New(Request{CourtID: 1, CustomerID: 2, Slots: []models.Interval{slot(10), slot(9)}}, day)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelOnline, r.Channel)
	assert.Equal(t, models.StatusHeld, r.Status)
	assert.Equal(t, slot(9).Start, r.Slots[0].Start, "slots sorted")
	assert.Equal(t, models.StatusHeld, r.Slots[1].Status)

	r, err = New(Request{CourtID: 1, CustomerID: 2, Channel: models.ChannelDirect, Slots: []models.Interval{slot(9)}}, day)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, r.Status)

	_, err = New(Request{CourtID: 1, CustomerID: 2, Status: models.StatusPaid, Slots: []models.Interval{slot(9)}}, day)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(Request{CourtID: 1, CustomerID: 2, Channel: "fax", Slots: []models.Interval{slot(9)}}, day)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(Request{CourtID: 1, CustomerID: 2}, day)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(Request{CustomerID: 2, Slots: []models.Interval{slot(9)}}, day)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReschedule(t *testing.T) {
	r := stored(models.StatusBooked)
	out, err := Reschedule(r, []models.Interval{slot(15)}, day)
	require.NoError(t, err)
	require.Len(t, out.Slots, 1)
	assert.Equal(t, int64(7), out.Slots[0].ReservationID)
	assert.Equal(t, models.StatusBooked, out.Slots[0].Status)
	assert.Len(t, r.Slots, 2)

	paid := stored(models.StatusBooked)
	paid.Status = models.StatusPaid
	_, err = Reschedule(paid, []models.Interval{slot(15)}, day)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestDeriveStatus(t *testing.T) {
	id := int64(7)
	other := int64(8)
	deposit := &models.Invoice{ReservationID: &id, Amount: 50000, Status: models.InvoicePaid}
	balance := &models.Invoice{ReservationID: &id, Amount: 150000, Status: models.InvoicePending}
	foreign := &models.Invoice{ReservationID: &other, Amount: 500000, Status: models.InvoicePaid}

	held := stored(models.StatusHeld)
	assert.Equal(t, models.StatusHeld, DeriveStatus(held, []*models.Invoice{balance, foreign}, 200000))
	assert.Equal(t, models.StatusBooked, DeriveStatus(held, []*models.Invoice{deposit, balance}, 200000))

	paidBalance := *balance
	paidBalance.Status = models.InvoicePaid
	assert.Equal(t, models.StatusPaid, DeriveStatus(held, []*models.Invoice{deposit, &paidBalance}, 200000))

	booked := stored(models.StatusBooked)
	assert.Equal(t, models.StatusBooked, DeriveStatus(booked, []*models.Invoice{deposit}, 200000))
	assert.Equal(t, models.StatusPaid, DeriveStatus(booked, []*models.Invoice{deposit, &paidBalance}, 200000))

	pending := stored(models.StatusPending)
	assert.Equal(t, models.StatusBooked, DeriveStatus(pending, []*models.Invoice{deposit, &paidBalance}, 200000))

	cancelled := stored(models.StatusHeld)
	cancelled.Status = models.StatusCancelled
	assert.Equal(t, models.StatusCancelled, DeriveStatus(cancelled, []*models.Invoice{deposit, &paidBalance}, 200000))
}

func TestHoldExpired(t *testing.T) {
	r := stored(models.StatusHeld)
	assert.False(t, HoldExpired(r, 15*time.Minute, day.Add(14*time.Minute)))
	assert.True(t, HoldExpired(r, 15*time.Minute, day.Add(15*time.Minute)))

	booked := stored(models.StatusBooked)
	assert.False(t, HoldExpired(booked, 15*time.Minute, day.Add(time.Hour)))
}

func TestCheckInAndNoShow(t *testing.T) {
	r := stored(models.StatusBooked)
	assert.False(t, IsNoShow(r, day.Add(7*time.Hour)))
	assert.True(t, IsNoShow(r, day.Add(8*time.Hour+time.Minute)))

	in, err := CheckIn(r, day.Add(7*time.Hour+50*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, in.CheckedInAt)
	assert.False(t, IsNoShow(in, day.Add(9*time.Hour)))

	_, err = CheckIn(in, day.Add(8*time.Hour))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = CheckIn(stored(models.StatusHeld), day)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestPlanCancellation(t *testing.T) {
	r := stored(models.StatusBooked)
	draft := &models.Voucher{DraftID: "d1", ReservationID: 7, Status: models.VoucherDraft}
	locked := &models.Voucher{ID: 1, ReservationID: 7, Status: models.VoucherLocked, Items: []models.LineItem{{ID: 11}, {ID: 12}}}
	paid := &models.Voucher{ID: 2, ReservationID: 7, Status: models.VoucherPaid, Items: []models.LineItem{{ID: 21}}}
	gone := &models.Voucher{ID: 3, ReservationID: 7, Status: models.VoucherCancelled}
	foreign := &models.Voucher{ID: 4, ReservationID: 99, Status: models.VoucherLocked}

	plan, err := PlanCancellation(r, []*models.Voucher{draft, locked, paid, gone, foreign}, models.ReasonCustomer, 30000, day)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, plan.Reservation.Status)
	assert.Equal(t, models.ReasonCustomer, plan.Reservation.CancelReason)
	assert.Equal(t, int64(30000), plan.Reservation.CancellationFee)
	for _, s := range plan.Reservation.Slots {
		assert.Equal(t, models.StatusCancelled, s.Status)
	}

	require.Len(t, plan.CancelledVouchers, 2)
	assert.Equal(t, []int64{11, 12}, plan.DeletedItemIDs)
	require.Len(t, plan.ReconcileVouchers, 1)
	assert.Equal(t, models.VoucherPaid, plan.ReconcileVouchers[0].Status)
	assert.Len(t, paid.Items, 1)
	assert.True(t, plan.NeedsReconciliation())

	assert.Equal(t, models.StatusBooked, r.Status, "input is not mutated")
}

func TestPlanCancellation_Rejected(t *testing.T) {
	paid := stored(models.StatusBooked)
	paid.Status = models.StatusPaid
	_, err := PlanCancellation(paid, nil, models.ReasonCustomer, 0, day)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	cancelled := stored(models.StatusHeld)
	cancelled.Status = models.StatusCancelled
	_, err = PlanCancellation(cancelled, nil, models.ReasonCustomer, 0, day)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
