package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/gateway"
	"github.com/condoflow/ms-go-reconciliation/app/metrics"
	"github.com/condoflow/ms-go-reconciliation/app/types"
	"github.com/condoflow/ms-go-reconciliation/config"
)

const defaultRetryBatchSize = int32(100)

type webhookEventRepository interface {
	InsertIfAbsent(ctx context.Context, event *entity.WebhookEvent) (bool, error)
	ClaimForProcessing(ctx context.Context, id uint64, now time.Time) (bool, error)
	UpdateOutcome(ctx context.Context, event *entity.WebhookEvent) error
	ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.WebhookEvent, error)
}

type billingRecordRepository interface {
	FindByGatewayChargeID(ctx context.Context, gateway int32, chargeID string) (*entity.BillingRecord, error)
	UpdateStatus(ctx context.Context, record *entity.BillingRecord, fromStatus int32, now time.Time) error
}

type ledgerPoster interface {
	PostAutomatic(ctx context.Context, input *AutomaticPostingInput) (*entity.LedgerEntry, error)
}

// HandleResult is what the webhook controller reports back to the gateway.
type HandleResult struct {
	Processed         bool
	AlreadyProcessed  bool
	ScheduledForRetry bool
}

// ReconciliationService owns the end-to-end flow for one webhook event and
// is the sole mutator of webhook event records.
type ReconciliationService struct {
	webhookRepo webhookEventRepository
	billingRepo billingRecordRepository
	ledger      ledgerPoster
	adapters    *gateway.Registry
	alerts      AlertNotifier
	retryCfg    config.RetryConfig
	logger      logrus.FieldLogger
}

func NewReconciliationService(
	webhookRepo webhookEventRepository,
	billingRepo billingRecordRepository,
	ledger ledgerPoster,
	adapters *gateway.Registry,
	alerts AlertNotifier,
	retryCfg config.RetryConfig,
) *ReconciliationService {
	if retryCfg.MaxAttempts <= 0 {
		retryCfg.MaxAttempts = 5
	}
	return &ReconciliationService{
		webhookRepo: webhookRepo,
		billingRepo: billingRepo,
		ledger:      ledger,
		adapters:    adapters,
		alerts:      alerts,
		retryCfg:    retryCfg,
		logger:      factory.NewModuleLogger("reconciliation-service"),
	}
}

// HandleGatewayWebhook runs the synchronous path: authenticate, normalize,
// guard, then reconcile inline. A transient downstream failure is handed to
// the retry queue and still acknowledged to the gateway.
func (s *ReconciliationService) HandleGatewayWebhook(ctx context.Context, gatewayName string, body []byte, header http.Header) (*HandleResult, error) {
	code, err := types.ParseGateway(gatewayName)
	if err != nil {
		return nil, ErrGatewayUnsupported
	}
	adapter, err := s.adapters.Get(code)
	if err != nil {
		return nil, ErrGatewayUnsupported
	}

	event, err := adapter.VerifyAndParse(ctx, body, header)
	if err != nil {
		if errors.Is(err, gateway.ErrSignatureInvalid) {
			metrics.WebhooksReceived.WithLabelValues(code.String(), "rejected").Inc()
			s.logger.WithField("gateway", code.String()).WithError(err).Warn("Webhook authenticity check failed")
			return nil, fmt.Errorf("%w: %v", ErrWebhookRejected, err)
		}
		metrics.WebhooksReceived.WithLabelValues(code.String(), "malformed").Inc()
		s.logger.WithField("gateway", code.String()).WithError(err).Warn("Webhook payload malformed")
		return nil, err
	}

	now := time.Now().UTC()
	record := &entity.WebhookEvent{
		Gateway:     int32(code),
		WebhookID:   event.WebhookID,
		EventType:   event.EventType,
		Payload:     string(body),
		Signature:   extractSignature(header),
		Status:      entity.WebhookEventProcessing,
		Attempts:    0,
		MaxAttempts: s.retryCfg.MaxAttempts,
		AttemptLog:  []entity.WebhookAttempt{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := s.webhookRepo.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		metrics.WebhooksReceived.WithLabelValues(code.String(), "duplicate").Inc()
		s.logger.WithFields(logrus.Fields{
			"gateway":    code.String(),
			"webhook_id": event.WebhookID,
		}).Info("Webhook already processed, skipping")
		return &HandleResult{AlreadyProcessed: true}, nil
	}

	start := time.Now()
	procErr := s.processEvent(ctx, code, event)
	if err := s.recordAttempt(ctx, record, start, procErr); err != nil {
		return nil, err
	}

	result := resultFromRecord(record)
	outcome := "processed"
	if result.ScheduledForRetry {
		outcome = "scheduled_retry"
	} else if record.Status == entity.WebhookEventFailedPermanent {
		outcome = "failed_permanent"
	}
	metrics.WebhooksReceived.WithLabelValues(code.String(), outcome).Inc()

	return result, nil
}

// ProcessRetryBatch is the poller path: claim due records one by one with
// the pending -> processing CAS, re-decode the stored payload, and re-run
// the same reconciliation core. Safe to run from multiple instances.
func (s *ReconciliationService) ProcessRetryBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.webhookRepo.ListDue(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, record := range items {
		if record == nil {
			continue
		}

		claimed, err := s.webhookRepo.ClaimForProcessing(ctx, record.ID, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !claimed {
			continue
		}
		record.Status = entity.WebhookEventProcessing

		code := types.Gateway(record.Gateway)
		start := time.Now()

		var procErr error
		adapter, err := s.adapters.Get(code)
		if err != nil {
			procErr = err
		} else {
			var event *gateway.Event
			event, procErr = adapter.Parse(ctx, []byte(record.Payload))
			if procErr == nil {
				procErr = s.processEvent(ctx, code, event)
			}
		}

		if err := s.recordAttempt(ctx, record, start, procErr); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

// processEvent reconciles one canonical event against its billing record.
// Every step is idempotent, so a retry after a partial failure converges:
// the ledger posting is unique per origin and the billing transition is a
// guarded compare-and-swap.
func (s *ReconciliationService) processEvent(ctx context.Context, code types.Gateway, event *gateway.Event) error {
	billing, err := s.billingRepo.FindByGatewayChargeID(ctx, int32(code), event.ExternalReference)
	if err != nil {
		return err
	}
	if billing == nil {
		return fmt.Errorf("%w: gateway=%s charge=%s", ErrBillingRecordNotFound, code.String(), event.ExternalReference)
	}

	current := types.BillingStatus(billing.Status)
	target := event.Status

	if current == target {
		return nil
	}
	if err := types.GuardTransition(current, target); err != nil {
		// Out-of-order or stale delivery; the billing record already moved
		// past this event's target state. Nothing to apply.
		s.logger.WithFields(logrus.Fields{
			"gateway":    code.String(),
			"billing_id": billing.ID,
			"current":    current.String(),
			"target":     target.String(),
		}).Warn("Rejected backward billing status transition")
		return nil
	}

	now := time.Now().UTC()

	switch target {
	case types.BillingStatusApproved:
		entry, err := s.ledger.PostAutomatic(ctx, &AutomaticPostingInput{
			CondoID:     billing.CondoID,
			OriginKind:  OriginBillingPayment,
			OriginID:    strconv.FormatUint(billing.ID, 10),
			AmountCents: billing.AmountCents,
			EntryDate:   now.Truncate(24 * time.Hour),
			Description: fmt.Sprintf("Payment received for billing record #%d", billing.ID),
			DebitRole:   entity.AccountRoleBank,
			CreditRole:  entity.AccountRoleReceivable,
		})
		if err != nil {
			return err
		}
		metrics.LedgerEntriesPosted.WithLabelValues(OriginBillingPayment).Inc()

		billing.Status = int32(target)
		billing.PaidAt = &now
		entryID := entry.ID
		billing.LedgerEntryID = &entryID
		return s.billingRepo.UpdateStatus(ctx, billing, int32(current), now)

	case types.BillingStatusRefunded:
		if _, err := s.ledger.PostAutomatic(ctx, &AutomaticPostingInput{
			CondoID:     billing.CondoID,
			OriginKind:  OriginBillingRefund,
			OriginID:    strconv.FormatUint(billing.ID, 10),
			AmountCents: billing.AmountCents,
			EntryDate:   now.Truncate(24 * time.Hour),
			Description: fmt.Sprintf("Refund for billing record #%d", billing.ID),
			DebitRole:   entity.AccountRoleReceivable,
			CreditRole:  entity.AccountRoleBank,
		}); err != nil {
			return err
		}
		metrics.LedgerEntriesPosted.WithLabelValues(OriginBillingRefund).Inc()

		billing.Status = int32(target)
		return s.billingRepo.UpdateStatus(ctx, billing, int32(current), now)

	default:
		billing.Status = int32(target)
		return s.billingRepo.UpdateStatus(ctx, billing, int32(current), now)
	}
}

// recordAttempt writes the attempt outcome through the processing-state
// CAS. Terminal records are sticky: once success or failed_permanent, no
// later attempt can touch them. The operator alert fires only in the call
// that wins the transition to failed_permanent.
func (s *ReconciliationService) recordAttempt(ctx context.Context, record *entity.WebhookEvent, start time.Time, procErr error) error {
	now := time.Now().UTC()
	code := types.Gateway(record.Gateway)

	attempt := entity.WebhookAttempt{
		At:         now,
		OK:         procErr == nil,
		DurationMS: time.Since(start).Milliseconds(),
	}

	if procErr == nil {
		record.Status = entity.WebhookEventSuccess
		record.NextAttemptAt = nil
		record.LastError = nil
		metrics.RetryAttempts.WithLabelValues(code.String(), "success").Inc()
	} else {
		msg := truncate(procErr.Error(), 1024)
		attempt.Error = msg
		record.LastError = &msg
		record.Attempts++

		switch {
		case s.isPermanentFailure(procErr):
			record.Status = entity.WebhookEventFailedPermanent
			record.NextAttemptAt = nil
			metrics.RetryAttempts.WithLabelValues(code.String(), "failed_permanent").Inc()
		case record.Attempts >= record.MaxAttempts:
			record.Status = entity.WebhookEventFailedPermanent
			record.NextAttemptAt = nil
			metrics.RetryAttempts.WithLabelValues(code.String(), "exhausted").Inc()
		default:
			next := now.Add(retryBackoff(record.Attempts, s.retryCfg.BackoffBase, s.retryCfg.BackoffCap))
			record.Status = entity.WebhookEventPending
			record.NextAttemptAt = &next
			metrics.RetryAttempts.WithLabelValues(code.String(), "retry_scheduled").Inc()
		}
	}

	record.AttemptLog = append(record.AttemptLog, attempt)
	record.UpdatedAt = now

	if err := s.webhookRepo.UpdateOutcome(ctx, record); err != nil {
		return err
	}

	if record.Status == entity.WebhookEventFailedPermanent {
		logEntry := s.logger.WithFields(logrus.Fields{
			"gateway":    code.String(),
			"webhook_id": record.WebhookID,
			"attempts":   record.Attempts,
		})
		if procErr != nil {
			logEntry = logEntry.WithError(procErr)
		}
		if errors.Is(procErr, ErrBillingRecordNotFound) {
			// Nothing to reconcile against; warn without paging anyone.
			logEntry.Warn("Webhook event references unknown billing record")
		} else {
			logEntry.Error("Webhook event failed permanently")
			metrics.AlertsFired.Inc()
			s.alerts.NotifyPermanentFailure(ctx, record)
		}
	}

	return nil
}

func (s *ReconciliationService) isPermanentFailure(err error) bool {
	return isPermanentProcessingError(err) || errors.Is(err, gateway.ErrMalformedPayload)
}

func (s *ReconciliationService) batchSize() int32 {
	if s.retryCfg.BatchSize > 0 {
		return s.retryCfg.BatchSize
	}
	return defaultRetryBatchSize
}

func resultFromRecord(record *entity.WebhookEvent) *HandleResult {
	return &HandleResult{
		Processed:         record.Status == entity.WebhookEventSuccess,
		ScheduledForRetry: record.Status == entity.WebhookEventPending,
	}
}

func extractSignature(header http.Header) string {
	for _, key := range []string{"x-signature", "X-Hub-Signature", "asaas-access-token"} {
		if v := header.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
