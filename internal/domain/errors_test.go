package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConflictError(t *testing.T) {
	start := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	err := &ConflictError{CourtID: 1, ReservationID: 7, Start: start, End: start.Add(time.Hour)}

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrSlotTaken)
	assert.Contains(t, err.Error(), "08:00-09:00")

	taken := &ConflictError{CourtID: 1, Start: start, End: start.Add(time.Hour), Taken: true}
	wrapped := fmt.Errorf("create reservation: %w", taken)
	assert.ErrorIs(t, wrapped, ErrSlotTaken)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.Contains(t, wrapped.Error(), "already taken")

	var ce *ConflictError
	assert.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, int64(1), ce.CourtID)
}

func TestConflictError_FacilityLocalTime(t *testing.T) {
	start := time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)
	err := &ConflictError{CourtID: 1, ReservationID: 7, Start: start, End: start.Add(time.Hour),
		Location: time.FixedZone("ICT", 7*3600)}

	assert.Contains(t, err.Error(), "2024-03-10 18:00-19:00")
}

func TestInvalidStateError(t *testing.T) {
	err := &InvalidStateError{Entity: "voucher", From: "locked", To: "cancelled", Reason: ErrVoucherLocked}
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, err, ErrVoucherLocked)
	assert.Contains(t, err.Error(), "locked")

	plain := &InvalidStateError{Entity: "reservation", From: "paid", To: "cancelled"}
	assert.ErrorIs(t, plain, ErrInvalidState)
	assert.NotErrorIs(t, plain, ErrVoucherLocked)
}

func TestNotFoundAndValidation(t *testing.T) {
	assert.ErrorIs(t, NotFound("court", 5), ErrNotFound)
	assert.Equal(t, "court 5 not found", NotFound("court", 5).Error())

	err := Invalid("quantity", "must be positive, got %d", 0)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "quantity: must be positive, got 0", err.Error())
	assert.NotErrorIs(t, err, ErrNotFound)
}
