package entity

import "time"

const (
	LedgerEntryDraft     int32 = 1
	LedgerEntryConfirmed int32 = 10
	LedgerEntryCancelled int32 = 20
)

// LedgerEntry is one atomic accounting fact (lançamento): a balanced set
// of debit/credit lines. Entries are never deleted; cancellation is a
// status change recorded in the audit log.
type LedgerEntry struct {
	ID          uint64
	CondoID     uint64
	EntryNumber string

	EntryDate   time.Time
	Description string
	TotalCents  int64

	Status int32

	OriginKind *string
	OriginID   *string

	CreatedBy *string

	Lines []LedgerLine
	Logs  []LedgerLog

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerLine is a single debit-or-credit line (partida). Exactly one of
// DebitCents/CreditCents is non-zero.
type LedgerLine struct {
	ID          uint64
	EntryID     uint64
	Position    int32
	AccountID   uint64
	DebitCents  int64
	CreditCents int64
	CostCenter  *string
}

// LedgerLog is an append-only audit record for a ledger entry.
type LedgerLog struct {
	ID        uint64
	EntryID   uint64
	Action    string
	ActorID   *string
	Reason    *string
	CreatedAt time.Time
}
