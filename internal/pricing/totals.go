package pricing

import (
	"courtbook/internal/models"
)

type Totals struct {
	CourtFee      int64 `json:"court_fee"`
	Surcharge     int64 `json:"surcharge"`
	ServiceFee    int64 `json:"service_fee"`
	Total         int64 `json:"total"`
	AlreadyPaid   int64 `json:"already_paid"`
	Outstanding   int64 `json:"outstanding"`
	LoyaltyPoints int64 `json:"loyalty_points"`
}

// CourtDue is the part of the total billed on reservation invoices.
func (t Totals) CourtDue() int64 {
	return t.CourtFee + t.Surcharge
}

// Input is a snapshot of everything a booking price depends on.
type Input struct {
	Court    models.Court
	Facility models.Facility
	Slots    []models.Interval
	Vouchers []*models.Voucher
	Catalog  Catalog
	Invoices []*models.Invoice
}

// CalculateTotals prices a booking. It does not mutate its input, so the
// same snapshot always yields the same result.
func CalculateTotals(in Input) (Totals, error) {
	var t Totals

	t.CourtFee = CalculateCourtFee(in.Court, in.Slots)

	surcharge, err := CalculateSurcharge(in.Facility, in.Slots)
	if err != nil {
		return Totals{}, err
	}
	t.Surcharge = surcharge

	serviceFee, err := CalculateVoucherFees(in.Vouchers, in.Catalog)
	if err != nil {
		return Totals{}, err
	}
	t.ServiceFee = serviceFee

	t.Total = t.CourtFee + t.Surcharge + t.ServiceFee
	t.AlreadyPaid = AlreadyPaid(in.Invoices)
	t.Outstanding = t.Total - t.AlreadyPaid
	t.LoyaltyPoints = LoyaltyPoints(in.Facility.Pricing, t.Total)

	return t, nil
}
