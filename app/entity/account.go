package entity

import "time"

const (
	AccountTypeAsset     = "asset"
	AccountTypeLiability = "liability"
	AccountTypeEquity    = "equity"
	AccountTypeRevenue   = "revenue"
	AccountTypeExpense   = "expense"
)

const (
	AccountNatureDebit  = "debit"
	AccountNatureCredit = "credit"
)

const (
	AccountRoleBank       = "bank"
	AccountRoleReceivable = "receivable"
	AccountRoleRevenue    = "revenue"
)

// Account is one node of a condominium's chart of accounts. Only leaf
// nodes (AcceptsPostings) may appear on ledger entry lines.
type Account struct {
	ID       uint64
	CondoID  uint64
	Code     int32
	FullCode string
	ParentID *uint64
	Level    int32

	Type   string
	Nature string

	AcceptsPostings bool
	Role            *string

	Name string

	CreatedAt time.Time
	UpdatedAt time.Time
}
