package pricing

import (
	"math"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

const secondsPerHour = int64(time.Hour / time.Second)

// divRound divides with half-up rounding for non-negative numerators.
func divRound(num, den int64) int64 {
	if num < 0 {
		return -divRound(-num, den)
	}
	return (num + den/2) / den
}

func seconds(start, end time.Time) int64 {
	return int64(end.Sub(start) / time.Second)
}

// CalculateCourtFee prices slots at the court's hourly rate. Each slot's own
// length is used and the sum is rounded once.
func CalculateCourtFee(court models.Court, slots []models.Interval) int64 {
	var total int64
	for _, s := range slots {
		total += seconds(s.Start, s.End)
	}
	return divRound(total*court.HourlyRate, secondsPerHour)
}

// Catalog resolves line items to their price and billing unit.
type Catalog struct {
	BranchServices map[int64]models.BranchService
	Services       map[int64]models.Service
}

func NewCatalog(branchServices []*models.BranchService, services []*models.Service) Catalog {
	c := Catalog{
		BranchServices: make(map[int64]models.BranchService, len(branchServices)),
		Services:       make(map[int64]models.Service, len(services)),
	}
	for _, bs := range branchServices {
		c.BranchServices[bs.ID] = *bs
	}
	for _, s := range services {
		c.Services[s.ID] = *s
	}
	return c
}

// Resolve returns the branch service and service behind a line item.
func (c Catalog) Resolve(item models.LineItem) (models.BranchService, models.Service, error) {
	bs, ok := c.BranchServices[item.BranchServiceID]
	if !ok {
		return models.BranchService{}, models.Service{}, domain.NotFound("branch service", item.BranchServiceID)
	}
	svc, ok := c.Services[bs.ServiceID]
	if !ok {
		return models.BranchService{}, models.Service{}, domain.NotFound("service", bs.ServiceID)
	}
	return bs, svc, nil
}

// ValidateItem checks quantity and, for hour-billed services, the item interval.
func (c Catalog) ValidateItem(item models.LineItem) error {
	_, svc, err := c.Resolve(item)
	if err != nil {
		return err
	}
	if item.Quantity <= 0 {
		return domain.Invalid("quantity", "must be positive, got %d", item.Quantity)
	}
	if svc.BillingUnit == models.UnitHour {
		if item.Start == nil || item.End == nil {
			return domain.Invalid("interval", "%s is billed per hour and needs start and end", svc.Name)
		}
		if !item.End.After(*item.Start) {
			return domain.Invalid("interval", "%s: end must be after start", svc.Name)
		}
	}
	return nil
}

// CalculateServiceFee prices line items. Hour-billed items are charged for
// their own duration, fixed items once per unit. Rounded once at the end.
func CalculateServiceFee(items []models.LineItem, catalog Catalog) (int64, error) {
	var acc int64
	for _, item := range items {
		if err := catalog.ValidateItem(item); err != nil {
			return 0, err
		}
		bs, svc, _ := catalog.Resolve(item)
		switch svc.BillingUnit {
		case models.UnitHour:
			acc += bs.UnitPrice * item.Quantity * seconds(*item.Start, *item.End)
		default:
			acc += bs.UnitPrice * item.Quantity * secondsPerHour
		}
	}
	return divRound(acc, secondsPerHour), nil
}

// CalculateVoucherFees sums service fees of all non-cancelled vouchers.
func CalculateVoucherFees(vouchers []*models.Voucher, catalog Catalog) (int64, error) {
	var items []models.LineItem
	for _, v := range vouchers {
		if v == nil || v.Status == models.VoucherCancelled {
			continue
		}
		items = append(items, v.Items...)
	}
	return CalculateServiceFee(items, catalog)
}

// CalculateSurcharge adds flat night, weekend and holiday charges once per
// affected slot, judged by the slot start in facility-local time.
func CalculateSurcharge(facility models.Facility, slots []models.Interval) (int64, error) {
	rules := facility.Pricing
	nightStart := rules.NightStart
	if nightStart == "" {
		nightStart = models.DefaultNightStart
	}
	nightOffset, err := models.ParseClock(nightStart)
	if err != nil {
		return 0, domain.Invalid("night_start", "%v", err)
	}

	loc := facility.Location()
	var total int64
	for _, s := range slots {
		local := s.Start.In(loc)
		if !local.Before(models.AtClock(local, nightOffset, loc)) {
			total += rules.NightSurcharge
		}
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			total += rules.WeekendSurcharge
		}
		if rules.IsHoliday(local) {
			total += rules.HolidaySurcharge
		}
	}
	return total, nil
}

func applyRatio(amount int64, ratio float64) int64 {
	return int64(math.Round(float64(amount) * ratio))
}

// CancellationFee charges the before-24h ratio when cancelled at least a day
// ahead of the earliest slot, otherwise the within-24h ratio.
func CancellationFee(rules models.PricingRules, total int64, earliestStart, cancelAt time.Time) int64 {
	if earliestStart.IsZero() {
		return 0
	}
	if !cancelAt.After(earliestStart.Add(-24 * time.Hour)) {
		return applyRatio(total, rules.CancelFeeBefore24h)
	}
	return applyRatio(total, rules.CancelFeeWithin24h)
}

func NoShowFee(rules models.PricingRules, total int64) int64 {
	return applyRatio(total, rules.NoShowFee)
}

// LoyaltyPoints earned for a booking value, rounded down.
func LoyaltyPoints(rules models.PricingRules, total int64) int64 {
	if total <= 0 || rules.LoyaltyPointRate <= 0 {
		return 0
	}
	return int64(math.Floor(float64(total) * rules.LoyaltyPointRate))
}

// AlreadyPaid sums paid invoices. Pending invoices do not count.
func AlreadyPaid(invoices []*models.Invoice) int64 {
	var paid int64
	for _, inv := range invoices {
		if inv != nil && inv.IsPaid() {
			paid += inv.Amount
		}
	}
	return paid
}
