package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/condoflow/ms-go-reconciliation/app/types"
)

var (
	// ErrSignatureInvalid covers missing, malformed, mismatched, and stale
	// signatures. Events failing authenticity are discarded, never retried.
	ErrSignatureInvalid = errors.New("gateway signature invalid")

	// ErrMalformedPayload marks a body that passed authenticity but cannot
	// be decoded into the gateway's wire format.
	ErrMalformedPayload = errors.New("gateway payload malformed")
)

// Event is the canonical shape every gateway's native notification is
// normalized into before any mutation happens downstream.
type Event struct {
	WebhookID string
	EventType string

	Status      types.BillingStatus
	AmountCents int64

	// ExternalReference is the gateway-side charge identifier used to
	// locate the billing record.
	ExternalReference string

	Raw []byte
}

// Adapter validates authenticity and translates one gateway's wire format.
// Adapters are pure: no side effects beyond parsing.
//
// Parse skips the authenticity check; the retry poller uses it to re-decode
// a payload whose signature was already verified at receipt (a timestamped
// signature would be stale by the time a retry runs).
type Adapter interface {
	Gateway() types.Gateway
	VerifyAndParse(ctx context.Context, body []byte, header http.Header) (*Event, error)
	Parse(ctx context.Context, body []byte) (*Event, error)
}
