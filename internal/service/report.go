package service

import (
	"context"
	"time"

	"courtbook/internal/export"
	"courtbook/internal/schedule"
)

// DayReport collects the grids of every active court of a facility and the
// priced reservations of that day.
func (s *BookingService) DayReport(ctx context.Context, facilityID int64, date time.Time) (export.DayReport, error) {
	facility, err := s.repo.GetFacility(ctx, facilityID)
	if err != nil {
		return export.DayReport{}, err
	}
	open, closeAt, err := schedule.Bounds(*facility, date)
	if err != nil {
		return export.DayReport{}, err
	}
	courts, err := s.repo.GetActiveCourts(ctx)
	if err != nil {
		return export.DayReport{}, err
	}

	report := export.DayReport{Facility: *facility, Date: open}
	for _, court := range courts {
		if court.FacilityID != facilityID {
			continue
		}
		day, err := s.DaySchedule(ctx, court.ID, date)
		if err != nil {
			return export.DayReport{}, err
		}
		report.Schedules = append(report.Schedules, *day)

		reservations, err := s.repo.GetCourtReservations(ctx, court.ID, open, closeAt)
		if err != nil {
			return export.DayReport{}, err
		}
		for _, r := range reservations {
			snap, err := s.snapshot(ctx, r)
			if err != nil {
				return export.DayReport{}, err
			}
			report.Reservations = append(report.Reservations, export.ReservationLine{
				Reservation: r,
				CourtName:   court.Name,
				Totals:      snap.totals,
			})
		}
	}
	return report, nil
}
