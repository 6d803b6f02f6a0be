package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

type Repository interface {
	GetFacility(ctx context.Context, id int64) (*models.Facility, error)
	UpsertFacility(ctx context.Context, f *models.Facility) error
	GetCourt(ctx context.Context, id int64) (*models.Court, error)
	GetActiveCourts(ctx context.Context) ([]*models.Court, error)
	UpsertCourt(ctx context.Context, c *models.Court) error
	GetService(ctx context.Context, id int64) (*models.Service, error)
	UpsertService(ctx context.Context, s *models.Service) error
	GetBranchService(ctx context.Context, id int64) (*models.BranchService, error)
	GetBranchServices(ctx context.Context, facilityID int64) ([]*models.BranchService, error)
	UpsertBranchService(ctx context.Context, bs *models.BranchService) error

	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetCourtReservations(ctx context.Context, courtID int64, from, to time.Time) ([]*models.Reservation, error)
	GetBookedSlots(ctx context.Context, courtID int64, from, to time.Time) ([]models.BookedSlot, error)
	CreateReservationWithLock(ctx context.Context, r *models.Reservation) error
	RescheduleReservationWithLock(ctx context.Context, r *models.Reservation, slots []models.BookedSlot) error
	UpdateReservationStatusWithVersion(ctx context.Context, id int64, version int64, status string) error
	SetCheckedIn(ctx context.Context, id int64, version int64, at time.Time) error
	GetExpiredHolds(ctx context.Context, createdBefore time.Time) ([]*models.Reservation, error)
	ApplyCancellation(ctx context.Context, plan *models.CancellationPlan) error

	CreateVoucher(ctx context.Context, v *models.Voucher) error
	GetVoucher(ctx context.Context, id int64) (*models.Voucher, error)
	GetReservationVouchers(ctx context.Context, reservationID int64) ([]*models.Voucher, error)
	UpdateVoucher(ctx context.Context, v *models.Voucher, deleted []int64) error
	UpdateVoucherStatus(ctx context.Context, id int64, status string) error

	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	SettleInvoice(ctx context.Context, id int64, at time.Time) error
	GetReservationInvoices(ctx context.Context, reservationID int64) ([]*models.Invoice, error)
}

// DraftStore keeps unconfirmed vouchers keyed by draft id.
type DraftStore interface {
	SaveDraft(ctx context.Context, v *models.Voucher, ttl time.Duration) error
	GetDraft(ctx context.Context, draftID string) (*models.Voucher, error)
	DeleteDraft(ctx context.Context, draftID string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
