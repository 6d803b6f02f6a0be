package models

import "time"

// Service is a catalog entry sold alongside court rental.
type Service struct {
	ID          int64  `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	BillingUnit string `yaml:"billing_unit" json:"billing_unit"` // hour, fixed
	Category    string `yaml:"category" json:"category"`         // personnel, equipment, amenity
}

// BranchService is the sellable (facility, service) pair with its price.
type BranchService struct {
	ID         int64 `yaml:"id" json:"id"`
	FacilityID int64 `yaml:"facility_id" json:"facility_id"`
	ServiceID  int64 `yaml:"service_id" json:"service_id"`
	UnitPrice  int64 `yaml:"unit_price" json:"unit_price"`
}

type LineItem struct {
	ID              int64      `json:"id"`
	VoucherID       int64      `json:"voucher_id"`
	BranchServiceID int64      `json:"branch_service_id"`
	Quantity        int64      `json:"quantity"`
	Start           *time.Time `json:"start,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	StaffID         *int64     `json:"staff_id,omitempty"`
}

// Voucher groups service line items attached to one reservation.
// A draft carries DraftID and no ID; a persisted voucher carries ID.
type Voucher struct {
	ID            int64      `json:"id,omitempty"`
	DraftID       string     `json:"draft_id,omitempty"`
	ReservationID int64      `json:"reservation_id"`
	Status        string     `json:"status"`
	Items         []LineItem `json:"items"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsDraft reports whether the voucher exists only client-side.
func (v *Voucher) IsDraft() bool {
	return v.Status == VoucherDraft
}

// ItemIDs returns persisted line item ids.
func (v *Voucher) ItemIDs() []int64 {
	ids := make([]int64, 0, len(v.Items))
	for _, it := range v.Items {
		if it.ID > 0 {
			ids = append(ids, it.ID)
		}
	}
	return ids
}
