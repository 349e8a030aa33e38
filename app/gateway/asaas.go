package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

type AsaasConfig struct {
	AccessToken string
}

// AsaasAdapter has no cryptographic signature to verify; authenticity
// rests on the asaas-access-token header matching the configured token
// over HTTPS. A missing or empty configured token rejects every request
// rather than accepting unsigned deliveries.
type AsaasAdapter struct {
	cfg    AsaasConfig
	logger logrus.FieldLogger
}

func NewAsaasAdapter(cfg AsaasConfig) *AsaasAdapter {
	return &AsaasAdapter{
		cfg:    cfg,
		logger: factory.NewModuleLogger("gateway-asaas"),
	}
}

func (a *AsaasAdapter) Gateway() types.Gateway {
	return types.GatewayAsaas
}

func (a *AsaasAdapter) VerifyAndParse(ctx context.Context, body []byte, header http.Header) (*Event, error) {
	configured := strings.TrimSpace(a.cfg.AccessToken)
	if configured == "" {
		return nil, fmt.Errorf("%w: access token is not configured", ErrSignatureInvalid)
	}
	received := strings.TrimSpace(header.Get("asaas-access-token"))
	if received == "" || subtle.ConstantTimeCompare([]byte(received), []byte(configured)) != 1 {
		return nil, ErrSignatureInvalid
	}
	return a.Parse(ctx, body)
}

func (a *AsaasAdapter) Parse(_ context.Context, body []byte) (*Event, error) {
	var payload struct {
		ID      string `json:"id"`
		Event   string `json:"event"`
		Payment struct {
			ID                string      `json:"id"`
			Status            string      `json:"status"`
			Value             json.Number `json:"value"`
			ExternalReference string      `json:"externalReference"`
		} `json:"payment"`
	}

	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	webhookID := strings.TrimSpace(payload.ID)
	chargeID := strings.TrimSpace(payload.Payment.ID)
	if webhookID == "" || chargeID == "" {
		return nil, fmt.Errorf("%w: missing event or payment id", ErrMalformedPayload)
	}

	amountCents, err := centsFromDecimal(payload.Payment.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: bad payment value: %v", ErrMalformedPayload, err)
	}

	return &Event{
		WebhookID:         webhookID,
		EventType:         strings.TrimSpace(payload.Event),
		Status:            a.mapStatus(payload.Payment.Status),
		AmountCents:       amountCents,
		ExternalReference: chargeID,
		Raw:               body,
	}, nil
}

func (a *AsaasAdapter) mapStatus(raw string) types.BillingStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING", "AWAITING_RISK_ANALYSIS":
		return types.BillingStatusPending
	case "CONFIRMED":
		return types.BillingStatusProcessing
	case "RECEIVED", "RECEIVED_IN_CASH":
		return types.BillingStatusApproved
	case "REFUND_REQUESTED", "REFUNDED", "CHARGEBACK_REQUESTED", "CHARGEBACK_DISPUTE":
		return types.BillingStatusRefunded
	case "DELETED":
		return types.BillingStatusCancelled
	case "OVERDUE":
		return types.BillingStatusExpired
	default:
		a.logger.WithField("status", raw).Warn("Unknown Asaas status, defaulting to pending")
		return types.BillingStatusPending
	}
}
