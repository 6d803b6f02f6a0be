package config

import (
	"fmt"

	"courtbook/internal/models"
)

// Catalog is the bookable inventory kept next to config.yaml: courts,
// the service list and per-facility service prices.
type Catalog struct {
	Courts         []models.Court         `yaml:"courts"`
	Services       []models.Service       `yaml:"services"`
	BranchServices []models.BranchService `yaml:"branch_services"`
}

// Prepare fills court slot lengths from court types and checks that every
// reference in the catalog resolves.
func (c *Config) Prepare(cat *Catalog) error {
	facilities := make(map[int64]bool, len(c.Facilities))
	for _, f := range c.Facilities {
		facilities[f.ID] = true
	}

	courtIDs := make(map[int64]bool, len(cat.Courts))
	for i := range cat.Courts {
		court := &cat.Courts[i]
		if court.ID <= 0 {
			return fmt.Errorf("court '%s' has invalid ID %d", court.Name, court.ID)
		}
		if courtIDs[court.ID] {
			return fmt.Errorf("duplicate court ID found: %d", court.ID)
		}
		courtIDs[court.ID] = true

		if !facilities[court.FacilityID] {
			return fmt.Errorf("court %d: unknown facility %d", court.ID, court.FacilityID)
		}
		if court.HourlyRate < 0 {
			return fmt.Errorf("court %d: hourly_rate must not be negative", court.ID)
		}
		if court.SlotMinutes == 0 {
			court.SlotMinutes = c.SlotMinutes(court.Type)
		}
		if court.SlotMinutes < 0 {
			return fmt.Errorf("court %d: slot_minutes must be positive", court.ID)
		}
	}

	services := make(map[int64]bool, len(cat.Services))
	for _, s := range cat.Services {
		if s.ID <= 0 {
			return fmt.Errorf("service '%s' has invalid ID %d", s.Name, s.ID)
		}
		switch s.BillingUnit {
		case models.UnitHour, models.UnitFixed:
		default:
			return fmt.Errorf("service %d: unknown billing unit %q", s.ID, s.BillingUnit)
		}
		services[s.ID] = true
	}

	for _, bs := range cat.BranchServices {
		if bs.ID <= 0 {
			return fmt.Errorf("branch service has invalid ID %d", bs.ID)
		}
		if !facilities[bs.FacilityID] {
			return fmt.Errorf("branch service %d: unknown facility %d", bs.ID, bs.FacilityID)
		}
		if !services[bs.ServiceID] {
			return fmt.Errorf("branch service %d: unknown service %d", bs.ID, bs.ServiceID)
		}
		if bs.UnitPrice < 0 {
			return fmt.Errorf("branch service %d: unit_price must not be negative", bs.ID)
		}
	}
	return nil
}
