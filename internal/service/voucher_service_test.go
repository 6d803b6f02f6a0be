package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"
	"courtbook/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reserve(t, models.ChannelOnline, iv(8, 10))

	draft, err := f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: r.ID, Items: []models.LineItem{water(1)}})
	require.NoError(t, err)
	require.NotEmpty(t, draft.DraftID)
	assert.Equal(t, models.VoucherDraft, draft.Status)
	assert.Zero(t, draft.ID)

	f.setClock(at(7, 5))
	updated, err := f.svc.SaveDraft(ctx, &models.Voucher{
		DraftID: draft.DraftID, ReservationID: r.ID, Items: []models.LineItem{water(2), coach(8, 9)},
	})
	require.NoError(t, err)
	assert.Equal(t, draft.DraftID, updated.DraftID)
	assert.True(t, updated.CreatedAt.Equal(draft.CreatedAt))

	got, err := f.svc.GetDraft(ctx, draft.DraftID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)

	_, err = f.svc.SaveDraft(ctx, &models.Voucher{DraftID: "missing", ReservationID: r.ID})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: r.ID, Status: models.VoucherLocked})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, f.svc.DiscardDraft(ctx, draft.DraftID))
	_, err = f.svc.GetDraft(ctx, draft.DraftID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.DiscardDraft(ctx, draft.DraftID), domain.ErrNotFound)
}

func TestConfirmVoucher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reserve(t, models.ChannelDirect, iv(8, 10))

	draft, err := f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: r.ID, Items: []models.LineItem{coach(8, 10), water(3)}})
	require.NoError(t, err)

	v, err := f.svc.ConfirmVoucher(ctx, draft.DraftID)
	require.NoError(t, err)
	assert.Positive(t, v.ID)
	assert.Equal(t, models.VoucherLocked, v.Status)
	assert.True(t, f.events.has(events.EventVoucherLocked))

	_, err = f.svc.GetDraft(ctx, draft.DraftID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "confirmed drafts leave the draft store")

	totals, err := f.svc.ReservationTotals(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(415000), totals.Total)

	_, err = f.svc.RecordInvoice(ctx, &models.Invoice{VoucherID: &v.ID, Amount: 215000, Method: models.PaymentCard, Status: models.InvoicePaid})
	require.NoError(t, err)
	stored, err := f.db.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherPaid, stored.Status)
	assert.True(t, f.events.has(events.EventVoucherPaid))

	got, err := f.svc.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, got.Status, "voucher payments do not settle the court fee")

	t.Run("paid voucher is frozen", func(t *testing.T) {
		_, err := f.svc.CancelVoucher(ctx, v.ID, true)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		_, err = f.svc.EditVoucherItems(ctx, v.ID, []models.LineItem{water(1)}, true)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		stored, err := f.db.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Len(t, stored.Items, 2)
	})

	t.Run("cancelled reservation", func(t *testing.T) {
		other := f.reserve(t, models.ChannelDirect, iv(12, 13))
		draft, err := f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: other.ID, Items: []models.LineItem{water(1)}})
		require.NoError(t, err)
		_, err = f.svc.CancelReservation(ctx, other.ID, at(7, 0))
		require.NoError(t, err)

		_, err = f.svc.ConfirmVoucher(ctx, draft.DraftID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		_, err = f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: other.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestLockedVoucherNeedsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reserve(t, models.ChannelDirect, iv(8, 10))

	draft, err := f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: r.ID, Items: []models.LineItem{water(1)}})
	require.NoError(t, err)
	v, err := f.svc.ConfirmVoucher(ctx, draft.DraftID)
	require.NoError(t, err)

	_, err = f.svc.EditVoucherItems(ctx, v.ID, []models.LineItem{water(4)}, false)
	assert.ErrorIs(t, err, domain.ErrVoucherLocked)

	edited, err := f.svc.EditVoucherItems(ctx, v.ID, []models.LineItem{water(4)}, true)
	require.NoError(t, err)
	require.Len(t, edited.Items, 1)
	assert.Equal(t, int64(4), edited.Items[0].Quantity)
	assert.True(t, f.events.has(events.EventVoucherEdited))

	_, err = f.svc.CancelVoucher(ctx, v.ID, false)
	assert.ErrorIs(t, err, domain.ErrVoucherLocked)

	cancelled, err := f.svc.CancelVoucher(ctx, v.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherCancelled, cancelled.Status)

	stored, err := f.db.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Items)
}

func TestEditVoucherItems_KeepsItemIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.reserve(t, models.ChannelDirect, iv(8, 10))

	draft, err := f.svc.SaveDraft(ctx, &models.Voucher{ReservationID: r.ID, Items: []models.LineItem{coach(8, 10), water(3)}})
	require.NoError(t, err)
	v, err := f.svc.ConfirmVoucher(ctx, draft.DraftID)
	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	keptID, droppedID := v.Items[0].ID, v.Items[1].ID

	edited, err := f.svc.EditVoucherItems(ctx, v.ID, []models.LineItem{v.Items[0], water(2)}, true)
	require.NoError(t, err)
	require.Len(t, edited.Items, 2)
	addedID := edited.Items[1].ID
	assert.NotZero(t, addedID)
	assert.NotEqual(t, droppedID, addedID)

	stored, err := f.db.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{keptID, addedID}, stored.ItemIDs())

	var payload events.VoucherEventPayload
	f.events.last(t, events.EventVoucherEdited, &payload)
	assert.Equal(t, []int64{droppedID}, payload.DeletedItemIDs)

	_, err = f.svc.RecordInvoice(ctx, &models.Invoice{VoucherID: &v.ID, Amount: 210000, Method: models.PaymentCash, Status: models.InvoicePaid})
	require.NoError(t, err)
	paid, err := f.db.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoucherPaid, paid.Status)
	assert.Equal(t, []int64{keptID, addedID}, paid.ItemIDs(), "paying a voucher leaves its items alone")
}

func TestDayReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.reserve(t, models.ChannelDirect, iv(8, 10))
	f.reserve(t, models.ChannelOnline, iv(18, 19))

	report, err := f.svc.DayReport(ctx, 1, day)
	require.NoError(t, err)
	assert.True(t, report.Date.Equal(at(6, 0)))
	require.Len(t, report.Schedules, 1)
	require.Len(t, report.Reservations, 2)
	assert.Equal(t, "C1", report.Reservations[0].CourtName)
	assert.Equal(t, int64(200000), report.Reservations[0].Totals.Total)
	assert.Equal(t, int64(110000), report.Reservations[1].Totals.Total)

	_, err = f.svc.DayReport(ctx, 99, day)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type mockRepo struct {
	domain.Repository
	mock.Mock
}

func (m *mockRepo) GetExpiredHolds(ctx context.Context, createdBefore time.Time) ([]*models.Reservation, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

func (m *mockRepo) GetCourt(ctx context.Context, id int64) (*models.Court, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Court), args.Error(1)
}

func (m *mockRepo) GetFacility(ctx context.Context, id int64) (*models.Facility, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Facility), args.Error(1)
}

func (m *mockRepo) GetReservationVouchers(ctx context.Context, reservationID int64) ([]*models.Voucher, error) {
	args := m.Called(ctx, reservationID)
	return args.Get(0).([]*models.Voucher), args.Error(1)
}

func (m *mockRepo) ApplyCancellation(ctx context.Context, plan *models.CancellationPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func TestExpireHolds_Errors(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	now := at(7, 0)

	hold := func(id int64) *models.Reservation {
		return &models.Reservation{
			ID: id, CourtID: 1, Status: models.StatusHeld, CreatedAt: at(6, 0), Version: 1,
			Slots: []models.BookedSlot{{CourtID: 1, Start: at(9, 0), End: at(10, 0), Status: models.StatusHeld}},
		}
	}

	repo := &mockRepo{}
	repo.On("GetExpiredHolds", ctx, now).Return([]*models.Reservation{hold(1), hold(2), hold(3)}, nil)
	repo.On("GetCourt", ctx, int64(1)).Return(&models.Court{ID: 1, FacilityID: 1}, nil)
	repo.On("GetFacility", ctx, int64(1)).Return(&models.Facility{ID: 1, Pricing: models.PricingRules{MaxHoldMinutes: 15}}, nil)
	repo.On("GetReservationVouchers", ctx, mock.Anything).Return([]*models.Voucher(nil), nil)
	repo.On("ApplyCancellation", ctx, mock.MatchedBy(func(p *models.CancellationPlan) bool { return p.Reservation.ID == 1 })).
		Return(nil)
	repo.On("ApplyCancellation", ctx, mock.MatchedBy(func(p *models.CancellationPlan) bool { return p.Reservation.ID == 2 })).
		Return(domain.ErrConcurrentModification)
	repo.On("ApplyCancellation", ctx, mock.MatchedBy(func(p *models.CancellationPlan) bool { return p.Reservation.ID == 3 })).
		Return(errors.New("disk full"))

	svc := NewBookingService(repo, repository.NewMemoryDraftStore(), nil, time.Hour, &logger)
	n, err := svc.ExpireHolds(ctx, now)
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotErrorIs(t, err, domain.ErrConcurrentModification)

	repo.AssertNumberOfCalls(t, "GetCourt", 1)
	repo.AssertExpectations(t)
}
