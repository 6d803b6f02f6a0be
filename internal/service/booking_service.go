package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/pricing"
	"courtbook/internal/reservation"
	"courtbook/internal/schedule"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	drafts   domain.DraftStore
	eventBus domain.EventPublisher
	draftTTL time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, drafts domain.DraftStore, eventBus domain.EventPublisher, draftTTL time.Duration, logger *zerolog.Logger) *BookingService {
	if draftTTL <= 0 {
		draftTTL = models.DefaultDraftTTL * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:     repo,
		drafts:   drafts,
		eventBus: eventBus,
		draftTTL: draftTTL,
		now:      time.Now,
		logger:   logger,
	}
}

// courtContext loads a court together with its facility.
func (s *BookingService) courtContext(ctx context.Context, courtID int64) (*models.Court, *models.Facility, error) {
	court, err := s.repo.GetCourt(ctx, courtID)
	if err != nil {
		return nil, nil, err
	}
	facility, err := s.repo.GetFacility(ctx, court.FacilityID)
	if err != nil {
		return nil, nil, fmt.Errorf("facility of court %d: %w", courtID, err)
	}
	return court, facility, nil
}

// catalog builds the price list of a facility.
func (s *BookingService) catalog(ctx context.Context, facilityID int64) (pricing.Catalog, error) {
	branch, err := s.repo.GetBranchServices(ctx, facilityID)
	if err != nil {
		return pricing.Catalog{}, err
	}
	services := make([]*models.Service, 0, len(branch))
	seen := make(map[int64]bool)
	for _, bs := range branch {
		if seen[bs.ServiceID] {
			continue
		}
		seen[bs.ServiceID] = true
		svc, err := s.repo.GetService(ctx, bs.ServiceID)
		if err != nil {
			return pricing.Catalog{}, err
		}
		services = append(services, svc)
	}
	return pricing.NewCatalog(branch, services), nil
}

func (s *BookingService) GetCourts(ctx context.Context) ([]*models.Court, error) {
	return s.repo.GetActiveCourts(ctx)
}

func (s *BookingService) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return s.repo.GetReservation(ctx, id)
}

// GenerateSlots builds the grid of a court for date from live booked slots.
// Slots of excludeReservationID count as free, which is what a reschedule
// of that reservation needs.
func (s *BookingService) GenerateSlots(ctx context.Context, courtID int64, date time.Time, excludeReservationID int64) ([]models.Slot, error) {
	court, facility, err := s.courtContext(ctx, courtID)
	if err != nil {
		return nil, err
	}
	open, closeAt, err := schedule.Bounds(*facility, date)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.GetBookedSlots(ctx, courtID, open, closeAt)
	if err != nil {
		return nil, err
	}
	if excludeReservationID > 0 {
		kept := booked[:0]
		for _, b := range booked {
			if b.ReservationID != excludeReservationID {
				kept = append(kept, b)
			}
		}
		booked = kept
	}

	return schedule.GenerateSlots(*court, *facility, date, booked, s.now())
}

func (s *BookingService) DaySchedule(ctx context.Context, courtID int64, date time.Time) (*models.DaySchedule, error) {
	court, facility, err := s.courtContext(ctx, courtID)
	if err != nil {
		return nil, err
	}
	slots, err := s.GenerateSlots(ctx, courtID, date, 0)
	if err != nil {
		return nil, err
	}
	return &models.DaySchedule{
		Court: *court,
		Date:  date.In(facility.Location()).Format(models.DateLayout),
		Slots: slots,
	}, nil
}

// Conflict returns the first live reservation overlapping [start, end) on
// the court, or nil.
func (s *BookingService) Conflict(ctx context.Context, courtID int64, start, end time.Time, excludeReservationID int64) (*domain.ConflictError, error) {
	_, facility, err := s.courtContext(ctx, courtID)
	if err != nil {
		return nil, err
	}
	return s.findConflict(ctx, facility.Location(), courtID, start, end, excludeReservationID)
}

func (s *BookingService) findConflict(ctx context.Context, loc *time.Location, courtID int64, start, end time.Time, excludeReservationID int64) (*domain.ConflictError, error) {
	if err := schedule.ValidateInterval(start, end); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetCourtReservations(ctx, courtID, start, end)
	if err != nil {
		return nil, err
	}
	conflict := schedule.FindConflict(existing, courtID, start, end, excludeReservationID)
	if conflict != nil {
		conflict.Location = loc
	}
	return conflict, nil
}

func (s *BookingService) HasConflict(ctx context.Context, courtID int64, start, end time.Time, excludeReservationID int64) (bool, error) {
	conflict, err := s.Conflict(ctx, courtID, start, end, excludeReservationID)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

func (s *BookingService) checkSlots(ctx context.Context, facility *models.Facility, courtID int64, slots []models.Interval, excludeReservationID int64) error {
	loc := facility.Location()
	for _, iv := range slots {
		conflict, err := s.findConflict(ctx, loc, courtID, iv.Start, iv.End, excludeReservationID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict
		}
	}
	return nil
}

// Quote prices an unsaved selection with optional service items.
func (s *BookingService) Quote(ctx context.Context, courtID int64, intervals []models.Interval, items []models.LineItem) (pricing.Totals, error) {
	court, facility, err := s.courtContext(ctx, courtID)
	if err != nil {
		return pricing.Totals{}, err
	}
	slots, err := schedule.NormalizeSelection(intervals)
	if err != nil {
		return pricing.Totals{}, err
	}
	if err := schedule.WithinHours(*facility, slots); err != nil {
		return pricing.Totals{}, err
	}

	catalog, err := s.catalog(ctx, facility.ID)
	if err != nil {
		return pricing.Totals{}, err
	}
	var vouchers []*models.Voucher
	if len(items) > 0 {
		for _, it := range items {
			if err := catalog.ValidateItem(it); err != nil {
				return pricing.Totals{}, err
			}
		}
		vouchers = append(vouchers, &models.Voucher{Status: models.VoucherDraft, Items: items})
	}

	return pricing.CalculateTotals(pricing.Input{
		Court:    *court,
		Facility: *facility,
		Slots:    slots,
		Vouchers: vouchers,
		Catalog:  catalog,
	})
}

// CreateReservation validates and stores a new reservation. Conflicts found
// before the write return ErrConflict; a slot claimed concurrently returns
// ErrSlotTaken.
func (s *BookingService) CreateReservation(ctx context.Context, req reservation.Request) (*models.Reservation, error) {
	court, facility, err := s.courtContext(ctx, req.CourtID)
	if err != nil {
		return nil, err
	}
	if !court.IsActive {
		return nil, domain.Invalid("court_id", "court %d is not active", court.ID)
	}

	r, err := reservation.New(req, s.now())
	if err != nil {
		metrics.IncReservation("invalid")
		return nil, err
	}
	if err := schedule.WithinHours(*facility, r.Intervals()); err != nil {
		metrics.IncReservation("invalid")
		return nil, err
	}

	if err := s.checkSlots(ctx, facility, r.CourtID, r.Intervals(), 0); err != nil {
		s.recordConflict(r.CourtID, err)
		return nil, err
	}

	if err := s.repo.CreateReservationWithLock(ctx, r); err != nil {
		s.recordConflict(r.CourtID, err)
		return nil, localizeConflict(err, facility.Location())
	}

	metrics.IncReservation("created")
	s.logger.Info().
		Int64("reservation_id", r.ID).
		Int64("court_id", r.CourtID).
		Str("status", r.Status).
		Time("start", r.EarliestStart()).
		Msg("Reservation created")
	s.publishReservation(events.EventReservationCreated, r, "")
	return r, nil
}

func (s *BookingService) recordConflict(courtID int64, err error) {
	if errors.Is(err, domain.ErrSlotTaken) {
		metrics.IncReservation("taken")
		metrics.IncConflict(courtID)
		return
	}
	if errors.Is(err, domain.ErrConflict) {
		metrics.IncReservation("conflict")
		metrics.IncConflict(courtID)
		return
	}
	metrics.IncReservation("error")
}

// localizeConflict makes a stored conflict print facility-local times.
func localizeConflict(err error, loc *time.Location) error {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) && conflict.Location == nil {
		conflict.Location = loc
	}
	return err
}

// RescheduleReservation moves a reservation to new slots on the same court.
func (s *BookingService) RescheduleReservation(ctx context.Context, id int64, intervals []models.Interval) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	_, facility, err := s.courtContext(ctx, r.CourtID)
	if err != nil {
		return nil, err
	}

	moved, err := reservation.Reschedule(r, intervals, s.now())
	if err != nil {
		return nil, err
	}
	if err := schedule.WithinHours(*facility, moved.Intervals()); err != nil {
		return nil, err
	}
	if err := s.checkSlots(ctx, facility, r.CourtID, moved.Intervals(), r.ID); err != nil {
		s.recordConflict(r.CourtID, err)
		return nil, err
	}

	if err := s.repo.RescheduleReservationWithLock(ctx, moved, moved.Slots); err != nil {
		s.recordConflict(r.CourtID, err)
		return nil, localizeConflict(err, facility.Location())
	}

	s.logger.Info().Int64("reservation_id", id).Time("start", moved.EarliestStart()).Msg("Reservation rescheduled")
	s.publishReservation(events.EventReservationRescheduled, moved, "")
	return moved, nil
}

func (s *BookingService) CheckIn(ctx context.Context, id int64, at time.Time) (*models.Reservation, error) {
	r, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	checked, err := reservation.CheckIn(r, at)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetCheckedIn(ctx, id, r.Version, at); err != nil {
		return nil, err
	}
	checked.Version++

	s.publishReservation(events.EventReservationCheckedIn, checked, "")
	return checked, nil
}

func (s *BookingService) publishReservation(eventType string, r *models.Reservation, changedBy string) {
	payload := events.ReservationEventPayload{
		ReservationID:   r.ID,
		CourtID:         r.CourtID,
		CustomerID:      r.CustomerID,
		Status:          r.Status,
		Channel:         r.Channel,
		Start:           r.EarliestStart(),
		Reason:          r.CancelReason,
		CancellationFee: r.CancellationFee,
		ChangedBy:       changedBy,
	}
	s.publish(eventType, payload, r.ID)
}

func (s *BookingService) publish(eventType string, payload interface{}, id int64) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("id", id).Msg("publish event error")
	}
}
