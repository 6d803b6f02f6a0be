package database

import (
	"context"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoucherLifecycle(t *testing.T) {
	db := setupTestDB(t)
	court := seedCatalog(t, db)
	ctx := context.Background()

	r := newReservation(court.ID, models.StatusBooked, [2]time.Time{at(8, 0), at(10, 0)})
	require.NoError(t, db.CreateReservationWithLock(ctx, r))

	coachStart, coachEnd := at(8, 0), at(9, 30)
	staff := int64(7)
	v := &models.Voucher{ReservationID: r.ID, Status: models.VoucherLocked, Items: []models.LineItem{
		{BranchServiceID: 10, Quantity: 1, Start: &coachStart, End: &coachEnd, StaffID: &staff},
		{BranchServiceID: 11, Quantity: 3},
	}}
	require.NoError(t, db.CreateVoucher(ctx, v))
	assert.NotZero(t, v.ID)
	assert.Len(t, v.ItemIDs(), 2)

	got, err := db.GetVoucher(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.True(t, got.Items[0].End.Equal(coachEnd))
	assert.Equal(t, staff, *got.Items[0].StaffID)
	assert.Nil(t, got.Items[1].Start)

	t.Run("drafts are not persisted", func(t *testing.T) {
		draft := &models.Voucher{DraftID: "d-1", ReservationID: r.ID, Status: models.VoucherDraft}
		assert.ErrorIs(t, db.CreateVoucher(ctx, draft), domain.ErrValidation)
	})

	t.Run("edit keeps surviving item ids", func(t *testing.T) {
		keptID, droppedID := got.Items[1].ID, got.Items[0].ID
		got.Items = got.Items[1:]
		got.Items[0].Quantity = 5
		got.Items = append(got.Items, models.LineItem{BranchServiceID: 10, Quantity: 1, Start: &coachStart, End: &coachEnd})
		require.NoError(t, db.UpdateVoucher(ctx, got, []int64{droppedID}))
		newID := got.Items[1].ID
		assert.NotZero(t, newID)

		reloaded, err := db.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, []int64{keptID, newID}, reloaded.ItemIDs())
		assert.Equal(t, int64(5), reloaded.Items[0].Quantity)
	})

	t.Run("unknown item id", func(t *testing.T) {
		bad := *got
		bad.Items = []models.LineItem{{ID: 999, BranchServiceID: 11, Quantity: 1}}
		assert.ErrorIs(t, db.UpdateVoucher(ctx, &bad, nil), domain.ErrNotFound)

		reloaded, err := db.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Len(t, reloaded.Items, 2, "failed update rolls back")
	})

	t.Run("paid status keeps items", func(t *testing.T) {
		before, err := db.GetVoucher(ctx, v.ID)
		require.NoError(t, err)

		require.NoError(t, db.UpdateVoucherStatus(ctx, v.ID, models.VoucherPaid))
		after, err := db.GetVoucher(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VoucherPaid, after.Status)
		assert.Equal(t, before.ItemIDs(), after.ItemIDs())

		assert.ErrorIs(t, db.UpdateVoucherStatus(ctx, v.ID, models.VoucherCancelled), domain.ErrInvalidState)
		after.Status = models.VoucherCancelled
		assert.ErrorIs(t, db.UpdateVoucher(ctx, after, after.ItemIDs()), domain.ErrInvalidState)
	})

	t.Run("missing voucher", func(t *testing.T) {
		_, err := db.GetVoucher(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, db.UpdateVoucher(ctx, &models.Voucher{ID: 404}, nil), domain.ErrNotFound)
		assert.ErrorIs(t, db.UpdateVoucherStatus(ctx, 404, models.VoucherPaid), domain.ErrNotFound)
	})

	list, err := db.GetReservationVouchers(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInvoices(t *testing.T) {
	db := setupTestDB(t)
	court := seedCatalog(t, db)
	ctx := context.Background()

	r := newReservation(court.ID, models.StatusBooked, [2]time.Time{at(8, 0), at(10, 0)})
	require.NoError(t, db.CreateReservationWithLock(ctx, r))
	v := &models.Voucher{ReservationID: r.ID, Status: models.VoucherLocked, Items: []models.LineItem{{BranchServiceID: 11, Quantity: 1}}}
	require.NoError(t, db.CreateVoucher(ctx, v))

	t.Run("exactly one link", func(t *testing.T) {
		assert.ErrorIs(t, db.CreateInvoice(ctx, &models.Invoice{Amount: 1}), domain.ErrValidation)
		assert.ErrorIs(t, db.CreateInvoice(ctx, &models.Invoice{ReservationID: &r.ID, VoucherID: &v.ID, Amount: 1}), domain.ErrValidation)
	})

	courtInv := &models.Invoice{ReservationID: &r.ID, Amount: 150000, Method: models.PaymentCash, Status: models.InvoicePending}
	serviceInv := &models.Invoice{VoucherID: &v.ID, Amount: 5000, Method: models.PaymentCard, Status: models.InvoicePending}
	require.NoError(t, db.CreateInvoice(ctx, courtInv))
	require.NoError(t, db.CreateInvoice(ctx, serviceInv))

	paidAt := at(11, 0)
	require.NoError(t, db.SettleInvoice(ctx, courtInv.ID, paidAt))
	assert.ErrorIs(t, db.SettleInvoice(ctx, courtInv.ID, paidAt), domain.ErrInvalidState)
	assert.ErrorIs(t, db.SettleInvoice(ctx, 999, paidAt), domain.ErrNotFound)

	got, err := db.GetInvoice(ctx, courtInv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid())
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))

	all, err := db.GetReservationInvoices(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, courtInv.ID, all[0].ID)
	assert.Equal(t, v.ID, *all[1].VoucherID)
	assert.Nil(t, all[1].ReservationID)
}
