package models

import (
	"fmt"
	"time"
)

// DaySchedule is the grid of one court for one facility-local date.
type DaySchedule struct {
	Court Court  `json:"court"`
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

// Availability summarizes a day schedule by slot status.
type Availability struct {
	Date      string `json:"date"`
	CourtID   int64  `json:"court_id"`
	Available int    `json:"available"`
	Booked    int    `json:"booked"`
	Pending   int    `json:"pending"`
	Past      int    `json:"past"`
}

func (d DaySchedule) Availability() Availability {
	a := Availability{Date: d.Date, CourtID: d.Court.ID}
	for _, s := range d.Slots {
		switch s.Status {
		case SlotAvailable:
			a.Available++
		case SlotBooked:
			a.Booked++
		case SlotPending:
			a.Pending++
		case SlotPast:
			a.Past++
		}
	}
	return a
}

// ParseClock converts "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// AtClock returns the wall-clock time offset (as from ParseClock) on day in loc.
func AtClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := day.In(loc).Date()
	hh := int(offset / time.Hour)
	mm := int(offset % time.Hour / time.Minute)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}
