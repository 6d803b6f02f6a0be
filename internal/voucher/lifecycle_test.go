package voucher

import (
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
	"courtbook/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func catalog() pricing.Catalog {
	return pricing.NewCatalog(
		[]*models.BranchService{
			{ID: 10, ServiceID: 1, UnitPrice: 100000},
			{ID: 11, ServiceID: 2, UnitPrice: 5000},
		},
		[]*models.Service{
			{ID: 1, Name: "Coach", BillingUnit: models.UnitHour},
			{ID: 2, Name: "Water", BillingUnit: models.UnitFixed},
		},
	)
}

func items() []models.LineItem {
	return []models.LineItem{
		{BranchServiceID: 10, Quantity: 1, Start: ptr(now.Add(time.Hour)), End: ptr(now.Add(3 * time.Hour))},
		{BranchServiceID: 11, Quantity: 3},
	}
}

func lockedVoucher() *models.Voucher {
	return &models.Voucher{
		ID:            5,
		ReservationID: 1,
		Status:        models.VoucherLocked,
		Items: []models.LineItem{
			{ID: 51, VoucherID: 5, BranchServiceID: 11, Quantity: 2},
			{ID: 52, VoucherID: 5, BranchServiceID: 11, Quantity: 1},
		},
	}
}

func TestNewDraft(t *testing.T) {
	a := NewDraft(1, items(), now)
	b := NewDraft(1, items(), now)

	assert.Equal(t, models.VoucherDraft, a.Status)
	assert.Zero(t, a.ID)
	assert.NotEmpty(t, a.DraftID)
	assert.NotEqual(t, a.DraftID, b.DraftID)
	assert.Len(t, a.Items, 2)
}

func TestConfirm(t *testing.T) {
	draft := NewDraft(1, items(), now)
	before, err := Fee(draft, catalog())
	require.NoError(t, err)

	locked, err := Confirm(draft, catalog(), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.VoucherLocked, locked.Status)
	assert.Empty(t, locked.DraftID)
	assert.Equal(t, models.VoucherDraft, draft.Status, "input is not mutated")

	after, err := Fee(locked, catalog())
	require.NoError(t, err)
	assert.Equal(t, int64(215000), before)
	assert.Equal(t, before, after)
}

func TestConfirm_Rejects(t *testing.T) {
	_, err := Confirm(NewDraft(1, nil, now), catalog(), now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Confirm(NewDraft(0, items(), now), catalog(), now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Confirm(NewDraft(1, []models.LineItem{{BranchServiceID: 11, Quantity: -1}}, now), catalog(), now)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Confirm(lockedVoucher(), catalog(), now)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestEditItems(t *testing.T) {
	t.Run("draft", func(t *testing.T) {
		edited, deleted, err := EditItems(NewDraft(1, items(), now), items()[1:], false, catalog(), now)
		require.NoError(t, err)
		assert.Len(t, edited.Items, 1)
		assert.Empty(t, deleted)
	})

	t.Run("locked without override", func(t *testing.T) {
		_, _, err := EditItems(lockedVoucher(), items(), false, catalog(), now)
		assert.ErrorIs(t, err, domain.ErrVoucherLocked)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("locked with override", func(t *testing.T) {
		v := lockedVoucher()
		keep := v.Items[0]
		keep.Quantity = 4

		edited, deleted, err := EditItems(v, []models.LineItem{keep, {BranchServiceID: 11, Quantity: 1}}, true, catalog(), now)
		require.NoError(t, err)
		assert.Equal(t, []int64{52}, deleted)
		assert.Equal(t, int64(4), edited.Items[0].Quantity)
		assert.Equal(t, int64(5), edited.Items[1].VoucherID)
		assert.Equal(t, int64(2), v.Items[0].Quantity, "input is not mutated")
	})

	t.Run("item ids must belong to the voucher", func(t *testing.T) {
		v := lockedVoucher()
		foreign := v.Items[0]
		foreign.ID = 99
		_, _, err := EditItems(v, []models.LineItem{foreign}, true, catalog(), now)
		assert.ErrorIs(t, err, domain.ErrValidation)

		twice := []models.LineItem{v.Items[0], v.Items[0]}
		_, _, err = EditItems(v, twice, true, catalog(), now)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("paid", func(t *testing.T) {
		v := lockedVoucher()
		v.Status = models.VoucherPaid
		_, _, err := EditItems(v, items(), true, catalog(), now)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestDeriveStatus(t *testing.T) {
	v := lockedVoucher()
	other := int64(99)

	assert.Equal(t, models.VoucherLocked, DeriveStatus(v, nil, 15000))

	invoices := []*models.Invoice{
		{VoucherID: &v.ID, Amount: 10000, Status: models.InvoicePaid},
		{VoucherID: &v.ID, Amount: 5000, Status: models.InvoicePending},
		{VoucherID: &other, Amount: 50000, Status: models.InvoicePaid},
	}
	assert.Equal(t, models.VoucherLocked, DeriveStatus(v, invoices, 15000))

	invoices[1].Status = models.InvoicePaid
	assert.Equal(t, models.VoucherPaid, DeriveStatus(v, invoices, 15000))

	draft := NewDraft(1, items(), now)
	assert.Equal(t, models.VoucherDraft, DeriveStatus(draft, invoices, 0))
}

func TestCancel(t *testing.T) {
	t.Run("draft", func(t *testing.T) {
		out, deleted, err := Cancel(NewDraft(1, items(), now), false, now)
		require.NoError(t, err)
		assert.Equal(t, models.VoucherCancelled, out.Status)
		assert.Empty(t, deleted)
	})

	t.Run("locked requires override", func(t *testing.T) {
		_, _, err := Cancel(lockedVoucher(), false, now)
		assert.ErrorIs(t, err, domain.ErrVoucherLocked)

		out, deleted, err := Cancel(lockedVoucher(), true, now)
		require.NoError(t, err)
		assert.Equal(t, models.VoucherCancelled, out.Status)
		assert.Empty(t, out.Items)
		assert.Equal(t, []int64{51, 52}, deleted)
	})

	t.Run("paid is rejected and unchanged", func(t *testing.T) {
		v := lockedVoucher()
		v.Status = models.VoucherPaid

		out, deleted, err := Cancel(v, true, now)
		var ise *domain.InvalidStateError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, models.VoucherPaid, ise.From)
		assert.ErrorIs(t, err, domain.ErrVoucherLocked)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Nil(t, out)
		assert.Nil(t, deleted)
		assert.Equal(t, models.VoucherPaid, v.Status)
		assert.Len(t, v.Items, 2)
	})

	t.Run("cancelled", func(t *testing.T) {
		v := lockedVoucher()
		v.Status = models.VoucherCancelled
		_, _, err := Cancel(v, true, now)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestCascadeCancel(t *testing.T) {
	out, deleted, reconcile := CascadeCancel(lockedVoucher(), now)
	assert.Equal(t, models.VoucherCancelled, out.Status)
	assert.Equal(t, []int64{51, 52}, deleted)
	assert.False(t, reconcile)

	paid := lockedVoucher()
	paid.Status = models.VoucherPaid
	out, deleted, reconcile = CascadeCancel(paid, now)
	assert.Same(t, paid, out)
	assert.Nil(t, deleted)
	assert.True(t, reconcile)

	gone := lockedVoucher()
	gone.Status = models.VoucherCancelled
	out, _, reconcile = CascadeCancel(gone, now)
	assert.Nil(t, out)
	assert.False(t, reconcile)
}
