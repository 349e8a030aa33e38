package service

import "errors"

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrGatewayUnsupported    = errors.New("gateway is not supported")
	ErrWebhookRejected       = errors.New("webhook rejected")
	ErrEntryNotFound         = errors.New("ledger entry not found")
	ErrUnbalancedEntry       = errors.New("ledger entry is not balanced")
	ErrInvalidState          = errors.New("invalid ledger entry state")
	ErrAccountNotPostable    = errors.New("account does not accept postings")
	ErrRoleAccountMissing    = errors.New("role account is not provisioned")
	ErrBillingRecordNotFound = errors.New("billing record not found")
)

// isPermanentProcessingError classifies a reconciliation failure. Permanent
// failures are never retried: either there is nothing to reconcile against,
// or retrying a deterministic defect cannot succeed. Everything else
// (store/network errors) is assumed transient.
func isPermanentProcessingError(err error) bool {
	switch {
	case errors.Is(err, ErrBillingRecordNotFound),
		errors.Is(err, ErrUnbalancedEntry),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrAccountNotPostable),
		errors.Is(err, ErrRoleAccountMissing):
		return true
	default:
		return false
	}
}
