package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

type MercadoPagoConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

// MercadoPagoAdapter verifies the x-signature header (HMAC-SHA256 over
// "<ts>.<body>", ts within the freshness window) and maps Mercado Pago's
// payment status vocabulary onto the canonical one.
type MercadoPagoAdapter struct {
	cfg    MercadoPagoConfig
	logger logrus.FieldLogger
}

func NewMercadoPagoAdapter(cfg MercadoPagoConfig) *MercadoPagoAdapter {
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	return &MercadoPagoAdapter{
		cfg:    cfg,
		logger: factory.NewModuleLogger("gateway-mercadopago"),
	}
}

func (a *MercadoPagoAdapter) Gateway() types.Gateway {
	return types.GatewayMercadoPago
}

func (a *MercadoPagoAdapter) VerifyAndParse(ctx context.Context, body []byte, header http.Header) (*Event, error) {
	if strings.TrimSpace(a.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}
	if !verifyTimestampedSignature(body, header.Get("x-signature"), a.cfg.WebhookSecret, a.cfg.SignatureToleranceSeconds) {
		return nil, ErrSignatureInvalid
	}
	return a.Parse(ctx, body)
}

func (a *MercadoPagoAdapter) Parse(_ context.Context, body []byte) (*Event, error) {
	var payload struct {
		ID     json.Number `json:"id"`
		Type   string      `json:"type"`
		Action string      `json:"action"`
		Data   struct {
			ID                string      `json:"id"`
			Status            string      `json:"status"`
			TransactionAmount json.Number `json:"transaction_amount"`
			ExternalReference string      `json:"external_reference"`
		} `json:"data"`
	}

	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	webhookID := strings.TrimSpace(payload.ID.String())
	chargeID := strings.TrimSpace(payload.Data.ID)
	if webhookID == "" || chargeID == "" {
		return nil, fmt.Errorf("%w: missing event or payment id", ErrMalformedPayload)
	}

	amountCents, err := centsFromDecimal(payload.Data.TransactionAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad transaction_amount: %v", ErrMalformedPayload, err)
	}

	eventType := strings.TrimSpace(payload.Action)
	if eventType == "" {
		eventType = strings.TrimSpace(payload.Type)
	}

	return &Event{
		WebhookID:         webhookID,
		EventType:         eventType,
		Status:            a.mapStatus(payload.Data.Status),
		AmountCents:       amountCents,
		ExternalReference: chargeID,
		Raw:               body,
	}, nil
}

func (a *MercadoPagoAdapter) mapStatus(raw string) types.BillingStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "authorized", "in_mediation":
		return types.BillingStatusPending
	case "in_process":
		return types.BillingStatusProcessing
	case "approved":
		return types.BillingStatusApproved
	case "rejected":
		return types.BillingStatusRejected
	case "refunded", "charged_back":
		return types.BillingStatusRefunded
	case "cancelled":
		return types.BillingStatusCancelled
	case "expired":
		return types.BillingStatusExpired
	default:
		a.logger.WithField("status", raw).Warn("Unknown Mercado Pago status, defaulting to pending")
		return types.BillingStatusPending
	}
}

// verifyTimestampedSignature checks a "ts=...,v1=..." header where v1 is
// hex HMAC-SHA256 over "<ts>.<body>" and ts must be within the tolerance
// window of now.
func verifyTimestampedSignature(payload []byte, signatureHeader, secret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range strings.Split(signatureHeader, ",") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "ts=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "ts="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
