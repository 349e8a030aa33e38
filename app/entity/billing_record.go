package entity

import "time"

// BillingRecord is a charge owned by the billing subsystem. Reconciliation
// only moves its status, stamps paid_at, and back-references the ledger
// entry it produced.
type BillingRecord struct {
	ID      uint64
	CondoID uint64

	ResidentRef string
	Description string
	AmountCents int64

	Status int32

	Gateway         int32
	GatewayChargeID *string

	PaidAt        *time.Time
	LedgerEntryID *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}
