package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/condoflow/ms-go-reconciliation/app/types"
)

const asaasToken = "asaas-test-token"

func asaasBody(status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_000001",
		"event": "PAYMENT_RECEIVED",
		"payment": {
			"id": "pay_000042",
			"status": %q,
			"value": 150.75,
			"externalReference": "billing-42"
		}
	}`, status))
}

func TestAsaasVerifyAndParse(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{AccessToken: asaasToken})
	body := asaasBody("RECEIVED")

	header := http.Header{}
	header.Set("asaas-access-token", asaasToken)

	event, err := adapter.VerifyAndParse(context.Background(), body, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.WebhookID != "evt_000001" {
		t.Fatalf("unexpected webhook id: %s", event.WebhookID)
	}
	if event.EventType != "PAYMENT_RECEIVED" {
		t.Fatalf("unexpected event type: %s", event.EventType)
	}
	if event.Status != types.BillingStatusApproved {
		t.Fatalf("unexpected status: %s", event.Status)
	}
	if event.AmountCents != 15075 {
		t.Fatalf("expected 15075 cents, got %d", event.AmountCents)
	}
}

func TestAsaasRejectsWrongToken(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{AccessToken: asaasToken})

	header := http.Header{}
	header.Set("asaas-access-token", "wrong-token")

	if _, err := adapter.VerifyAndParse(context.Background(), asaasBody("RECEIVED"), header); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAsaasRejectsWhenTokenNotConfigured(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{})

	header := http.Header{}
	header.Set("asaas-access-token", asaasToken)

	if _, err := adapter.VerifyAndParse(context.Background(), asaasBody("RECEIVED"), header); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAsaasRejectsMissingHeader(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{AccessToken: asaasToken})

	if _, err := adapter.VerifyAndParse(context.Background(), asaasBody("RECEIVED"), http.Header{}); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestAsaasStatusMapping(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{AccessToken: asaasToken})

	cases := map[string]types.BillingStatus{
		"RECEIVED":             types.BillingStatusApproved,
		"RECEIVED_IN_CASH":     types.BillingStatusApproved,
		"CONFIRMED":            types.BillingStatusProcessing,
		"REFUNDED":             types.BillingStatusRefunded,
		"REFUND_REQUESTED":     types.BillingStatusRefunded,
		"CHARGEBACK_REQUESTED": types.BillingStatusRefunded,
		"DELETED":              types.BillingStatusCancelled,
		"OVERDUE":              types.BillingStatusExpired,
		"PENDING":              types.BillingStatusPending,
	}

	for raw, expected := range cases {
		event, err := adapter.Parse(context.Background(), asaasBody(raw))
		if err != nil {
			t.Fatalf("Parse(%s) returned %v", raw, err)
		}
		if event.Status != expected {
			t.Fatalf("status %q mapped to %s, expected %s", raw, event.Status, expected)
		}
	}
}

func TestCentsFromDecimalExactness(t *testing.T) {
	adapter := NewAsaasAdapter(AsaasConfig{AccessToken: asaasToken})

	cases := map[string]int64{
		"0.01":   1,
		"10":     1000,
		"19.99":  1999,
		"150.75": 15075,
	}

	for raw, expected := range cases {
		body := []byte(fmt.Sprintf(`{"id":"evt_1","event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","status":"RECEIVED","value":%s}}`, raw))
		event, err := adapter.Parse(context.Background(), body)
		if err != nil {
			t.Fatalf("Parse(value=%s) returned %v", raw, err)
		}
		if event.AmountCents != expected {
			t.Fatalf("value %s converted to %d cents, expected %d", raw, event.AmountCents, expected)
		}
	}
}
