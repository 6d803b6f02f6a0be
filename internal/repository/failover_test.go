package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveDraft(ctx context.Context, v *models.Voucher, ttl time.Duration) error {
	args := m.Called(ctx, v, ttl)
	return args.Error(0)
}

func (m *mockStore) GetDraft(ctx context.Context, draftID string) (*models.Voucher, error) {
	args := m.Called(ctx, draftID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Voucher), args.Error(1)
}

func (m *mockStore) DeleteDraft(ctx context.Context, draftID string) error {
	args := m.Called(ctx, draftID)
	return args.Error(0)
}

func TestFailoverDraftStore(t *testing.T) {
	primary := new(mockStore)
	fallback := NewMemoryDraftStore()
	logger := zerolog.New(io.Discard)
	repo := NewFailoverDraftStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		v := &models.Voucher{DraftID: "p1"}
		primary.On("GetDraft", ctx, "p1").Return(v, nil).Once()

		got, err := repo.GetDraft(ctx, "p1")
		assert.NoError(t, err)
		assert.Equal(t, v, got)
		primary.AssertExpectations(t)
	})

	t.Run("NotFoundIsNotAnOutage", func(t *testing.T) {
		primary.On("GetDraft", ctx, "missing").Return(nil, domain.NotFound("draft", "missing")).Once()

		_, err := repo.GetDraft(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, repo.isDown.Load())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		v := &models.Voucher{DraftID: "f1", Status: models.VoucherDraft}
		primary.On("SaveDraft", ctx, v, time.Hour).Return(errors.New("connection refused")).Once()

		require.NoError(t, repo.SaveDraft(ctx, v, time.Hour))
		assert.True(t, repo.isDown.Load())

		// while down, primary is skipped
		got, err := repo.GetDraft(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "f1", got.DraftID)
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		// drafts saved during the outage are still served after recovery
		primary.On("GetDraft", ctx, "f1").Return(nil, domain.NotFound("draft", "f1")).Once()

		got, err := repo.GetDraft(ctx, "f1")
		require.NoError(t, err)
		assert.Equal(t, "f1", got.DraftID)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck = time.Now().Add(-2 * time.Minute)

		primary.On("DeleteDraft", ctx, "f1").Return(errors.New("still down")).Once()

		require.NoError(t, repo.DeleteDraft(ctx, "f1"))
		assert.True(t, repo.isDown.Load())
		assert.WithinDuration(t, time.Now(), repo.lastCheck, time.Second)

		_, err := fallback.GetDraft(ctx, "f1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		primary.AssertExpectations(t)
	})
}
