package models

import "time"

// Slot is a derived, unpersisted grid cell.
type Slot struct {
	CourtID int64     `json:"court_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Status  string    `json:"status"`
}

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Minutes returns the whole-minute length of the interval.
func (i Interval) Minutes() int64 {
	return int64(i.End.Sub(i.Start) / time.Minute)
}

type BookedSlot struct {
	ID            int64     `json:"id"`
	ReservationID int64     `json:"reservation_id"`
	CourtID       int64     `json:"court_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	Status        string    `json:"status"`
}

func (s BookedSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

type Reservation struct {
	ID              int64        `json:"id"`
	CourtID         int64        `json:"court_id"`
	CustomerID      int64        `json:"customer_id"`
	StaffID         *int64       `json:"staff_id,omitempty"`
	Channel         string       `json:"channel"` // online, direct
	Status          string       `json:"status"`  // held, pending, booked, paid, cancelled
	Slots           []BookedSlot `json:"slots"`
	CheckedInAt     *time.Time   `json:"checked_in_at,omitempty"`
	CancelReason    string       `json:"cancel_reason,omitempty"`
	CancellationFee int64        `json:"cancellation_fee"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Version         int64        `json:"version"`
}

// IsActive reports whether the reservation still occupies its slots.
func (r *Reservation) IsActive() bool {
	return r.Status != StatusCancelled
}

// EarliestStart returns the start of the first booked slot, or zero time.
func (r *Reservation) EarliestStart() time.Time {
	var earliest time.Time
	for _, s := range r.Slots {
		if earliest.IsZero() || s.Start.Before(earliest) {
			earliest = s.Start
		}
	}
	return earliest
}

// Intervals returns the booked intervals in stored order.
func (r *Reservation) Intervals() []Interval {
	out := make([]Interval, 0, len(r.Slots))
	for _, s := range r.Slots {
		out = append(out, s.Interval())
	}
	return out
}
