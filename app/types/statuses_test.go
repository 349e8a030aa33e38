package types

import (
	"errors"
	"testing"
)

func TestGuardTransitionForward(t *testing.T) {
	cases := []struct {
		name    string
		current BillingStatus
		next    BillingStatus
	}{
		{"pending to processing", BillingStatusPending, BillingStatusProcessing},
		{"pending to approved", BillingStatusPending, BillingStatusApproved},
		{"processing to approved", BillingStatusProcessing, BillingStatusApproved},
		{"processing to rejected", BillingStatusProcessing, BillingStatusRejected},
		{"pending to expired", BillingStatusPending, BillingStatusExpired},
		{"approved to refunded", BillingStatusApproved, BillingStatusRefunded},
		{"pending to cancelled", BillingStatusPending, BillingStatusCancelled},
		{"approved to cancelled", BillingStatusApproved, BillingStatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := GuardTransition(tc.current, tc.next); err != nil {
				t.Fatalf("expected transition to be allowed, got %v", err)
			}
		})
	}
}

func TestGuardTransitionSameStatusIsNoop(t *testing.T) {
	for _, status := range []BillingStatus{BillingStatusPending, BillingStatusApproved, BillingStatusRefunded} {
		if err := GuardTransition(status, status); err != nil {
			t.Fatalf("re-asserting %s should be allowed, got %v", status, err)
		}
	}
}

func TestGuardTransitionBackward(t *testing.T) {
	cases := []struct {
		name    string
		current BillingStatus
		next    BillingStatus
	}{
		{"approved to pending", BillingStatusApproved, BillingStatusPending},
		{"approved to processing", BillingStatusApproved, BillingStatusProcessing},
		{"processing to pending", BillingStatusProcessing, BillingStatusPending},
		{"rejected to approved", BillingStatusRejected, BillingStatusApproved},
		{"expired to approved", BillingStatusExpired, BillingStatusApproved},
		{"refunded to cancelled", BillingStatusRefunded, BillingStatusCancelled},
		{"refunded to refunded is allowed but to approved is not", BillingStatusRefunded, BillingStatusApproved},
		{"anything to unspecified", BillingStatusPending, BillingStatusUnspecified},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := GuardTransition(tc.current, tc.next); !errors.Is(err, ErrBackwardTransition) {
				t.Fatalf("expected ErrBackwardTransition, got %v", err)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	terminal := []BillingStatus{BillingStatusRejected, BillingStatusRefunded, BillingStatusCancelled, BillingStatusExpired}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}

	open := []BillingStatus{BillingStatusUnspecified, BillingStatusPending, BillingStatusProcessing, BillingStatusApproved}
	for _, status := range open {
		if status.Terminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestParseGateway(t *testing.T) {
	cases := []struct {
		raw      string
		expected Gateway
	}{
		{"mercadopago", GatewayMercadoPago},
		{"Mercado-Pago", GatewayMercadoPago},
		{" pagarme ", GatewayPagarme},
		{"ASAAS", GatewayAsaas},
		{"2", GatewayPagarme},
	}

	for _, tc := range cases {
		got, err := ParseGateway(tc.raw)
		if err != nil {
			t.Fatalf("ParseGateway(%q) returned %v", tc.raw, err)
		}
		if got != tc.expected {
			t.Fatalf("ParseGateway(%q) = %s, expected %s", tc.raw, got, tc.expected)
		}
	}

	if _, err := ParseGateway("paypal"); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected ErrUnknownGateway, got %v", err)
	}
}
