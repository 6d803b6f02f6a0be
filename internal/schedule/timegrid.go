package schedule

import (
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// Bounds returns the facility-local operating window of date.
func Bounds(facility models.Facility, date time.Time) (open, closeAt time.Time, err error) {
	openOffset, err := models.ParseClock(facility.OpenTime)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Invalid("open_time", "%v", err)
	}
	closeOffset, err := models.ParseClock(facility.CloseTime)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Invalid("close_time", "%v", err)
	}
	if closeOffset <= openOffset {
		return time.Time{}, time.Time{}, domain.Invalid("close_time",
			"must be after open time (%s >= %s)", facility.OpenTime, facility.CloseTime)
	}

	loc := facility.Location()
	return models.AtClock(date, openOffset, loc), models.AtClock(date, closeOffset, loc), nil
}

// GenerateSlots builds the ordered grid of a court for one date.
// A trailing interval shorter than the slot length is not generated.
// existing should already exclude the reservation being edited.
func GenerateSlots(court models.Court, facility models.Facility, date time.Time, existing []models.BookedSlot, now time.Time) ([]models.Slot, error) {
	if court.SlotMinutes <= 0 {
		return nil, domain.Invalid("slot_minutes", "must be positive, got %d", court.SlotMinutes)
	}

	open, closeAt, err := Bounds(facility, date)
	if err != nil {
		return nil, fmt.Errorf("court %d: %w", court.ID, err)
	}

	step := time.Duration(court.SlotMinutes) * time.Minute
	slots := make([]models.Slot, 0, int(closeAt.Sub(open)/step))
	for start := open; !start.Add(step).After(closeAt); start = start.Add(step) {
		end := start.Add(step)
		slots = append(slots, models.Slot{
			CourtID: court.ID,
			Start:   start,
			End:     end,
			Status:  slotStatus(court.ID, start, end, existing, now),
		})
	}

	return slots, nil
}

func slotStatus(courtID int64, start, end time.Time, existing []models.BookedSlot, now time.Time) string {
	if start.Before(now) {
		return models.SlotPast
	}

	status := models.SlotAvailable
	for _, b := range existing {
		if b.CourtID != courtID || !Overlaps(start, end, b.Start, b.End) {
			continue
		}
		switch b.Status {
		case models.StatusBooked, models.StatusPaid:
			return models.SlotBooked
		case models.StatusHeld, models.StatusPending:
			status = models.SlotPending
		}
	}
	return status
}
