package types

import (
	"errors"
	"strings"
)

// BillingStatus is the canonical status vocabulary every gateway's native
// codes are mapped onto. Billing records share the same space, with
// Approved meaning "paid".
type BillingStatus int32

const (
	BillingStatusUnspecified BillingStatus = 0
	BillingStatusPending     BillingStatus = 1
	BillingStatusProcessing  BillingStatus = 2
	BillingStatusApproved    BillingStatus = 3
	BillingStatusRejected    BillingStatus = 4
	BillingStatusRefunded    BillingStatus = 5
	BillingStatusCancelled   BillingStatus = 6
	BillingStatusExpired     BillingStatus = 7
)

func (s BillingStatus) String() string {
	switch s {
	case BillingStatusPending:
		return "pending"
	case BillingStatusProcessing:
		return "processing"
	case BillingStatusApproved:
		return "approved"
	case BillingStatusRejected:
		return "rejected"
	case BillingStatusRefunded:
		return "refunded"
	case BillingStatusCancelled:
		return "cancelled"
	case BillingStatusExpired:
		return "expired"
	default:
		return "unspecified"
	}
}

// Terminal reports whether no ordinary forward transition leaves s.
func (s BillingStatus) Terminal() bool {
	switch s {
	case BillingStatusRejected, BillingStatusRefunded, BillingStatusCancelled, BillingStatusExpired:
		return true
	default:
		return false
	}
}

// statusRank orders the canonical statuses for transition guarding.
// Refund and cancellation are the only moves allowed to cross ranks
// downward or out of a settled state.
func statusRank(s BillingStatus) int {
	switch s {
	case BillingStatusPending:
		return 1
	case BillingStatusProcessing:
		return 2
	case BillingStatusApproved, BillingStatusRejected, BillingStatusExpired:
		return 3
	case BillingStatusCancelled, BillingStatusRefunded:
		return 4
	default:
		return 0
	}
}

// ErrBackwardTransition marks a status change that would move a billing
// record backwards without being an explicit refund or cancellation.
var ErrBackwardTransition = errors.New("billing status transition moves backwards")

// GuardTransition decides whether a billing record may move from current
// to next. Re-asserting the current status is allowed (idempotent
// redelivery); moving backwards is not, unless next is an explicit
// refund or cancellation.
func GuardTransition(current, next BillingStatus) error {
	if next == BillingStatusUnspecified {
		return ErrBackwardTransition
	}
	if current == next {
		return nil
	}
	if next == BillingStatusRefunded || next == BillingStatusCancelled {
		if current == BillingStatusRefunded {
			return ErrBackwardTransition
		}
		return nil
	}
	if statusRank(next) < statusRank(current) {
		return ErrBackwardTransition
	}
	if current.Terminal() {
		return ErrBackwardTransition
	}
	return nil
}

// Gateway identifies an external payment gateway.
type Gateway int32

const (
	GatewayUnspecified Gateway = 0
	GatewayMercadoPago Gateway = 1
	GatewayPagarme     Gateway = 2
	GatewayAsaas       Gateway = 3
)

func (g Gateway) String() string {
	switch g {
	case GatewayMercadoPago:
		return "mercadopago"
	case GatewayPagarme:
		return "pagarme"
	case GatewayAsaas:
		return "asaas"
	default:
		return "unspecified"
	}
}

var ErrUnknownGateway = errors.New("unknown gateway")

func ParseGateway(raw string) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "mercadopago", "mercado-pago", "1":
		return GatewayMercadoPago, nil
	case "pagarme", "pagar-me", "2":
		return GatewayPagarme, nil
	case "asaas", "3":
		return GatewayAsaas, nil
	default:
		return GatewayUnspecified, ErrUnknownGateway
	}
}
