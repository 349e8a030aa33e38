package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

type PagarmeConfig struct {
	WebhookSecret string
}

// PagarmeAdapter verifies the X-Hub-Signature header (hex HMAC-SHA256 over
// the raw body, optionally prefixed with "sha256="). Pagar.me amounts are
// already integer cents.
type PagarmeAdapter struct {
	cfg    PagarmeConfig
	logger logrus.FieldLogger
}

func NewPagarmeAdapter(cfg PagarmeConfig) *PagarmeAdapter {
	return &PagarmeAdapter{
		cfg:    cfg,
		logger: factory.NewModuleLogger("gateway-pagarme"),
	}
}

func (a *PagarmeAdapter) Gateway() types.Gateway {
	return types.GatewayPagarme
}

func (a *PagarmeAdapter) VerifyAndParse(ctx context.Context, body []byte, header http.Header) (*Event, error) {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}
	if !verifyBodySignature(body, header.Get("X-Hub-Signature"), a.cfg.WebhookSecret) {
		return nil, ErrSignatureInvalid
	}
	return a.Parse(ctx, body)
}

func (a *PagarmeAdapter) Parse(_ context.Context, body []byte) (*Event, error) {
	var payload struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID     string `json:"id"`
			Code   string `json:"code"`
			Status string `json:"status"`
			Amount int64  `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	webhookID := strings.TrimSpace(payload.ID)
	chargeID := strings.TrimSpace(payload.Data.ID)
	if webhookID == "" || chargeID == "" {
		return nil, fmt.Errorf("%w: missing event or charge id", ErrMalformedPayload)
	}

	return &Event{
		WebhookID:         webhookID,
		EventType:         strings.TrimSpace(payload.Type),
		Status:            a.mapStatus(payload.Data.Status),
		AmountCents:       payload.Data.Amount,
		ExternalReference: chargeID,
		Raw:               body,
	}, nil
}

func (a *PagarmeAdapter) mapStatus(raw string) types.BillingStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "underpaid", "overpaid":
		return types.BillingStatusPending
	case "processing":
		return types.BillingStatusProcessing
	case "paid":
		return types.BillingStatusApproved
	case "failed":
		return types.BillingStatusRejected
	case "refunded", "chargedback":
		return types.BillingStatusRefunded
	case "canceled", "voided":
		return types.BillingStatusCancelled
	case "expired":
		return types.BillingStatusExpired
	default:
		a.logger.WithField("status", raw).Warn("Unknown Pagar.me status, defaulting to pending")
		return types.BillingStatusPending
	}
}

func verifyBodySignature(payload []byte, signatureHeader, secret string) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	signatureHeader = strings.TrimPrefix(signatureHeader, "sha256=")

	candidate, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(candidate, mac.Sum(nil))
}
