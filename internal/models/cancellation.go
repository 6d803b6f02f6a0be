package models

// CancellationPlan is the full set of entity changes produced by cancelling
// a reservation. Repositories apply it in one transaction.
type CancellationPlan struct {
	Reservation       *Reservation `json:"reservation"`
	CancelledVouchers []*Voucher   `json:"cancelled_vouchers"`
	DeletedItemIDs    []int64      `json:"deleted_item_ids"`
	ReconcileVouchers []*Voucher   `json:"reconcile_vouchers,omitempty"`
	Fee               int64        `json:"fee"`
}

// NeedsReconciliation reports whether paid vouchers were left untouched.
func (p *CancellationPlan) NeedsReconciliation() bool {
	return len(p.ReconcileVouchers) > 0
}
