package schedule

import (
	"sort"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// Overlaps is the half-open interval test used everywhere a booking is
// checked: the grid, the confirm path and the SQL lock query.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// FindConflict returns the first booked slot of a live reservation on courtID
// that overlaps [start, end), skipping excludeID. Nil means free.
func FindConflict(reservations []*models.Reservation, courtID int64, start, end time.Time, excludeID int64) *domain.ConflictError {
	for _, r := range reservations {
		if r == nil || r.CourtID != courtID || !r.IsActive() {
			continue
		}
		if excludeID != 0 && r.ID == excludeID {
			continue
		}
		for _, s := range r.Slots {
			if s.Status == models.StatusCancelled {
				continue
			}
			if Overlaps(start, end, s.Start, s.End) {
				return &domain.ConflictError{
					CourtID:       courtID,
					ReservationID: r.ID,
					Start:         s.Start,
					End:           s.End,
				}
			}
		}
	}
	return nil
}

func HasConflict(reservations []*models.Reservation, courtID int64, start, end time.Time, excludeID int64) bool {
	return FindConflict(reservations, courtID, start, end, excludeID) != nil
}

// ValidateInterval rejects empty or inverted intervals.
func ValidateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return domain.Invalid("interval", "start and end are required")
	}
	if !end.After(start) {
		return domain.Invalid("interval", "end %s must be after start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// NormalizeSelection validates a slot selection and returns it sorted by
// start. Intervals inside one selection must not overlap each other.
func NormalizeSelection(intervals []models.Interval) ([]models.Interval, error) {
	if len(intervals) == 0 {
		return nil, domain.Invalid("slots", "at least one slot is required")
	}

	out := make([]models.Interval, len(intervals))
	copy(out, intervals)
	for _, iv := range out {
		if err := ValidateInterval(iv.Start, iv.End); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	for i := 1; i < len(out); i++ {
		if Overlaps(out[i-1].Start, out[i-1].End, out[i].Start, out[i].End) {
			return nil, domain.Invalid("slots", "selected slots overlap at %s", out[i].Start.Format(time.RFC3339))
		}
	}
	return out, nil
}

// WithinHours reports whether every interval lies inside the operating window.
func WithinHours(facility models.Facility, intervals []models.Interval) error {
	loc := facility.Location()
	for _, iv := range intervals {
		open, closeAt, err := Bounds(facility, iv.Start.In(loc))
		if err != nil {
			return err
		}
		if iv.Start.Before(open) || iv.End.After(closeAt) {
			return domain.Invalid("slots", "%s-%s is outside operating hours %s-%s",
				iv.Start.In(loc).Format(models.ClockLayout), iv.End.In(loc).Format(models.ClockLayout),
				facility.OpenTime, facility.CloseTime)
		}
	}
	return nil
}
