package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
	"github.com/condoflow/ms-go-reconciliation/app/factory"
)

// AlertNotifier is the operator-alert collaborator, invoked exactly once
// when a webhook event becomes failed_permanent.
type AlertNotifier interface {
	NotifyPermanentFailure(ctx context.Context, event *entity.WebhookEvent)
}

type alertPayload struct {
	Service   string `json:"service"`
	Gateway   int32  `json:"gateway"`
	WebhookID string `json:"webhook_id"`
	EventType string `json:"event_type"`
	Attempts  int32  `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	At        string `json:"at"`
}

// WebhookAlertNotifier posts permanent failures to an ops webhook. Delivery
// is best effort: a failed alert is logged, never retried through the
// event queue.
type WebhookAlertNotifier struct {
	serviceName string
	url         string
	client      *http.Client
	logger      logrus.FieldLogger
}

func NewWebhookAlertNotifier(serviceName, url string, timeout time.Duration) *WebhookAlertNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookAlertNotifier{
		serviceName: serviceName,
		url:         url,
		client:      &http.Client{Timeout: timeout},
		logger:      factory.NewModuleLogger("alert-notifier"),
	}
}

func (n *WebhookAlertNotifier) NotifyPermanentFailure(ctx context.Context, event *entity.WebhookEvent) {
	lastError := ""
	if event.LastError != nil {
		lastError = *event.LastError
	}

	entry := n.logger.WithFields(logrus.Fields{
		"gateway":    event.Gateway,
		"webhook_id": event.WebhookID,
		"attempts":   event.Attempts,
	})
	entry.Error("Webhook event failed permanently")

	if n.url == "" {
		return
	}

	body, err := json.Marshal(&alertPayload{
		Service:   n.serviceName,
		Gateway:   event.Gateway,
		WebhookID: event.WebhookID,
		EventType: event.EventType,
		Attempts:  event.Attempts,
		LastError: lastError,
		At:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		entry.WithError(err).Warn("Failed to encode alert payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		entry.WithError(err).Warn("Failed to build alert request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		entry.WithError(err).Warn("Failed to deliver operator alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		entry.WithError(fmt.Errorf("alert endpoint returned status=%d", resp.StatusCode)).Warn("Operator alert rejected")
	}
}
