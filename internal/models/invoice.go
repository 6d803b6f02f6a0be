package models

import "time"

// Invoice bills either a reservation (court fee) or a voucher (service fee).
type Invoice struct {
	ID            int64      `json:"id"`
	ReservationID *int64     `json:"reservation_id,omitempty"`
	VoucherID     *int64     `json:"voucher_id,omitempty"`
	Amount        int64      `json:"amount"`
	Method        string     `json:"method"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func (i *Invoice) IsPaid() bool {
	return i.Status == InvoicePaid
}
