package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// WebhookAckResponse is returned for every non-authentication webhook
// outcome so the gateway does not redeliver on our downstream failures.
type WebhookAckResponse struct {
	Success           bool `json:"success"`
	Processed         bool `json:"processed"`
	ScheduledForRetry bool `json:"scheduled_for_retry"`
}

type LedgerLineResponse struct {
	AccountID   uint64 `json:"account_id"`
	Position    int32  `json:"position"`
	DebitCents  int64  `json:"debit_cents"`
	CreditCents int64  `json:"credit_cents"`
	CostCenter  string `json:"cost_center,omitempty"`
}

type LedgerLogResponse struct {
	Action    string `json:"action"`
	ActorID   string `json:"actor_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type LedgerEntryResponse struct {
	ID          uint64               `json:"id"`
	CondoID     uint64               `json:"condo_id"`
	EntryNumber string               `json:"entry_number"`
	EntryDate   string               `json:"entry_date"`
	Description string               `json:"description"`
	TotalCents  int64                `json:"total_cents"`
	Status      string               `json:"status"`
	OriginKind  string               `json:"origin_kind,omitempty"`
	OriginID    string               `json:"origin_id,omitempty"`
	Lines       []LedgerLineResponse `json:"lines"`
	Logs        []LedgerLogResponse  `json:"logs,omitempty"`
	CreatedAt   string               `json:"created_at"`
	UpdatedAt   string               `json:"updated_at"`
}

type LedgerEntryEnvelopeResponse struct {
	Entry *LedgerEntryResponse `json:"entry"`
}

type TrialBalanceRowResponse struct {
	AccountID    uint64 `json:"account_id"`
	FullCode     string `json:"full_code"`
	Name         string `json:"name"`
	Nature       string `json:"nature"`
	DebitCents   int64  `json:"debit_cents"`
	CreditCents  int64  `json:"credit_cents"`
	BalanceCents int64  `json:"balance_cents"`
}

type TrialBalanceResponse struct {
	CondoID uint64                    `json:"condo_id"`
	From    string                    `json:"from,omitempty"`
	To      string                    `json:"to,omitempty"`
	Rows    []TrialBalanceRowResponse `json:"rows"`
}
