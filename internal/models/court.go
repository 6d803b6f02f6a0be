package models

import "time"

// PricingRules are per-facility policy numbers. Ratios are stored in 0..1.
type PricingRules struct {
	MaxHoldMinutes     int      `yaml:"max_hold_minutes" json:"max_hold_minutes"`
	LoyaltyPointRate   float64  `yaml:"loyalty_point_rate" json:"loyalty_point_rate"`
	CancelFeeBefore24h float64  `yaml:"cancel_fee_before_24h" json:"cancel_fee_before_24h"`
	CancelFeeWithin24h float64  `yaml:"cancel_fee_within_24h" json:"cancel_fee_within_24h"`
	NoShowFee          float64  `yaml:"no_show_fee" json:"no_show_fee"`
	NightSurcharge     int64    `yaml:"night_surcharge" json:"night_surcharge"`
	WeekendSurcharge   int64    `yaml:"weekend_surcharge" json:"weekend_surcharge"`
	HolidaySurcharge   int64    `yaml:"holiday_surcharge" json:"holiday_surcharge"`
	NightStart         string   `yaml:"night_start" json:"night_start"`
	Holidays           []string `yaml:"holidays" json:"holidays"`
}

// IsHoliday reports whether the calendar date of t is a configured holiday.
func (p PricingRules) IsHoliday(t time.Time) bool {
	day := t.Format(DateLayout)
	for _, h := range p.Holidays {
		if h == day {
			return true
		}
	}
	return false
}

// Facility is a branch that owns courts and defines operating hours.
type Facility struct {
	ID        int64        `yaml:"id" json:"id"`
	Name      string       `yaml:"name" json:"name"`
	Timezone  string       `yaml:"timezone" json:"timezone"`
	OpenTime  string       `yaml:"open_time" json:"open_time"`
	CloseTime string       `yaml:"close_time" json:"close_time"`
	Pricing   PricingRules `yaml:"pricing" json:"pricing"`
}

// Location resolves the facility timezone, falling back to UTC.
func (f Facility) Location() *time.Location {
	if f.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Court is a bookable physical resource.
type Court struct {
	ID          int64     `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Type        string    `yaml:"type" json:"type"`
	FacilityID  int64     `yaml:"facility_id" json:"facility_id"`
	HourlyRate  int64     `yaml:"hourly_rate" json:"hourly_rate"`
	SlotMinutes int       `yaml:"slot_minutes" json:"slot_minutes"`
	IsActive    bool      `yaml:"is_active" json:"is_active"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
}
