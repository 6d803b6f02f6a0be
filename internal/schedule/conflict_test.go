package schedule

import (
	"testing"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservationWith(id, courtID int64, status string, slots ...models.Interval) *models.Reservation {
	r := &models.Reservation{ID: id, CourtID: courtID, Status: status}
	for _, iv := range slots {
		r.Slots = append(r.Slots, models.BookedSlot{
			ReservationID: id, CourtID: courtID, Start: iv.Start, End: iv.End, Status: status,
		})
	}
	return r
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Interval
		want bool
	}{
		{"partial", models.Interval{Start: at(8, 0), End: at(9, 0)}, models.Interval{Start: at(8, 30), End: at(9, 30)}, true},
		{"contained", models.Interval{Start: at(8, 0), End: at(10, 0)}, models.Interval{Start: at(8, 30), End: at(9, 0)}, true},
		{"identical", models.Interval{Start: at(8, 0), End: at(9, 0)}, models.Interval{Start: at(8, 0), End: at(9, 0)}, true},
		{"adjacent after", models.Interval{Start: at(8, 0), End: at(9, 0)}, models.Interval{Start: at(9, 0), End: at(10, 0)}, false},
		{"adjacent before", models.Interval{Start: at(9, 0), End: at(10, 0)}, models.Interval{Start: at(8, 0), End: at(9, 0)}, false},
		{"disjoint", models.Interval{Start: at(6, 0), End: at(7, 0)}, models.Interval{Start: at(20, 0), End: at(21, 0)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a.Start, tt.a.End, tt.b.Start, tt.b.End))
			assert.Equal(t, tt.want, Overlaps(tt.b.Start, tt.b.End, tt.a.Start, tt.a.End))
		})
	}
}

func TestHasConflict(t *testing.T) {
	existing := []*models.Reservation{
		reservationWith(1, 1, models.StatusBooked, models.Interval{Start: at(8, 0), End: at(9, 0)}),
		reservationWith(2, 1, models.StatusCancelled, models.Interval{Start: at(10, 0), End: at(11, 0)}),
		reservationWith(3, 2, models.StatusBooked, models.Interval{Start: at(12, 0), End: at(13, 0)}),
	}

	assert.True(t, HasConflict(existing, 1, at(8, 30), at(9, 30), 0))
	assert.False(t, HasConflict(existing, 1, at(9, 0), at(10, 0), 0))
	assert.False(t, HasConflict(existing, 1, at(10, 0), at(11, 0), 0), "cancelled reservation")
	assert.False(t, HasConflict(existing, 1, at(12, 0), at(13, 0), 0), "other court")
	assert.False(t, HasConflict(existing, 1, at(8, 0), at(9, 0), 1), "excluded reservation")
	assert.False(t, HasConflict(nil, 1, at(8, 0), at(9, 0), 0))
}

func TestFindConflict_Description(t *testing.T) {
	existing := []*models.Reservation{
		reservationWith(7, 1, models.StatusHeld,
			models.Interval{Start: at(14, 0), End: at(15, 0)},
			models.Interval{Start: at(15, 0), End: at(16, 0)}),
	}

	ce := FindConflict(existing, 1, at(15, 30), at(16, 30), 0)
	require.NotNil(t, ce)
	assert.Equal(t, int64(7), ce.ReservationID)
	assert.Equal(t, at(15, 0), ce.Start)
	assert.ErrorIs(t, ce, domain.ErrConflict)
	assert.Contains(t, ce.Error(), "15:00-16:00")
}

func TestGridAgreesWithConflictCheck(t *testing.T) {
	r := reservationWith(1, 1, models.StatusBooked, models.Interval{Start: at(8, 15), End: at(9, 15)})
	slots, err := GenerateSlots(testCourt, testFacility, testDate, r.Slots, beforeDay)
	require.NoError(t, err)

	for _, s := range slots {
		conflict := HasConflict([]*models.Reservation{r}, 1, s.Start, s.End, 0)
		assert.Equal(t, conflict, s.Status == models.SlotBooked, s.Start.Format(models.ClockLayout))
	}
}

func TestNormalizeSelection(t *testing.T) {
	sel, err := NormalizeSelection([]models.Interval{
		{Start: at(10, 0), End: at(11, 0)},
		{Start: at(9, 0), End: at(10, 0)},
	})
	require.NoError(t, err)
	assert.Equal(t, at(9, 0), sel[0].Start)

	_, err = NormalizeSelection(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NormalizeSelection([]models.Interval{{Start: at(10, 0), End: at(10, 0)}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NormalizeSelection([]models.Interval{
		{Start: at(9, 0), End: at(10, 30)},
		{Start: at(10, 0), End: at(11, 0)},
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestWithinHours(t *testing.T) {
	assert.NoError(t, WithinHours(testFacility, []models.Interval{{Start: at(21, 0), End: at(22, 0)}}))
	assert.ErrorIs(t, WithinHours(testFacility, []models.Interval{{Start: at(5, 0), End: at(6, 0)}}), domain.ErrValidation)
	assert.ErrorIs(t, WithinHours(testFacility, []models.Interval{{Start: at(21, 30), End: at(22, 30)}}), domain.ErrValidation)
}
