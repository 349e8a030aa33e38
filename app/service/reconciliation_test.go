package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
	"github.com/condoflow/ms-go-reconciliation/app/gateway"
	"github.com/condoflow/ms-go-reconciliation/app/repository"
	"github.com/condoflow/ms-go-reconciliation/app/types"
	"github.com/condoflow/ms-go-reconciliation/config"
)

type fakeWebhookRepo struct {
	events map[uint64]*entity.WebhookEvent
	nextID uint64
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{events: map[uint64]*entity.WebhookEvent{}, nextID: 1}
}

func (r *fakeWebhookRepo) InsertIfAbsent(_ context.Context, event *entity.WebhookEvent) (bool, error) {
	for _, item := range r.events {
		if item.Gateway == event.Gateway && item.WebhookID == event.WebhookID {
			return false, nil
		}
	}
	id := r.nextID
	r.nextID++
	event.ID = id
	copyItem := copyWebhookEvent(event)
	r.events[id] = copyItem
	return true, nil
}

func (r *fakeWebhookRepo) ClaimForProcessing(_ context.Context, id uint64, now time.Time) (bool, error) {
	item, ok := r.events[id]
	if !ok {
		return false, nil
	}
	if item.Status != entity.WebhookEventPending || item.NextAttemptAt == nil || item.NextAttemptAt.After(now) {
		return false, nil
	}
	item.Status = entity.WebhookEventProcessing
	return true, nil
}

func (r *fakeWebhookRepo) UpdateOutcome(_ context.Context, event *entity.WebhookEvent) error {
	item, ok := r.events[event.ID]
	if !ok {
		return repository.ErrWebhookEventNotFound
	}
	if item.Status != entity.WebhookEventProcessing {
		return repository.ErrWebhookEventStale
	}
	r.events[event.ID] = copyWebhookEvent(event)
	return nil
}

func (r *fakeWebhookRepo) ListDue(_ context.Context, now time.Time, limit int32) ([]*entity.WebhookEvent, error) {
	items := make([]*entity.WebhookEvent, 0)
	for _, item := range r.events {
		if item.Status == entity.WebhookEventPending && item.NextAttemptAt != nil && !item.NextAttemptAt.After(now) && item.Attempts < item.MaxAttempts {
			items = append(items, copyWebhookEvent(item))
		}
	}
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeWebhookRepo) findByWebhookID(gatewayCode int32, webhookID string) *entity.WebhookEvent {
	for _, item := range r.events {
		if item.Gateway == gatewayCode && item.WebhookID == webhookID {
			return copyWebhookEvent(item)
		}
	}
	return nil
}

// rewind makes a pending event immediately due so a test can run the
// poller without waiting out the backoff.
func (r *fakeWebhookRepo) rewind(id uint64, now time.Time) {
	if item, ok := r.events[id]; ok && item.NextAttemptAt != nil {
		past := now.Add(-time.Second)
		item.NextAttemptAt = &past
	}
}

func copyWebhookEvent(event *entity.WebhookEvent) *entity.WebhookEvent {
	copyItem := *event
	copyItem.AttemptLog = append([]entity.WebhookAttempt{}, event.AttemptLog...)
	return &copyItem
}

type fakeBillingRepo struct {
	records  map[uint64]*entity.BillingRecord
	findErr  error
	findErrs int
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{records: map[uint64]*entity.BillingRecord{}}
}

func (r *fakeBillingRepo) FindByGatewayChargeID(_ context.Context, gatewayCode int32, chargeID string) (*entity.BillingRecord, error) {
	if r.findErr != nil && r.findErrs != 0 {
		if r.findErrs > 0 {
			r.findErrs--
		}
		return nil, r.findErr
	}
	for _, item := range r.records {
		if item.Gateway == gatewayCode && item.GatewayChargeID != nil && *item.GatewayChargeID == chargeID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *fakeBillingRepo) UpdateStatus(_ context.Context, record *entity.BillingRecord, fromStatus int32, now time.Time) error {
	item, ok := r.records[record.ID]
	if !ok {
		return repository.ErrBillingRecordNotFound
	}
	if item.Status != fromStatus {
		return repository.ErrBillingRecordStale
	}
	copyItem := *record
	copyItem.UpdatedAt = now
	r.records[record.ID] = &copyItem
	return nil
}

// failFinds makes the next n billing lookups fail transiently; n < 0
// means fail forever.
func (r *fakeBillingRepo) failFinds(n int) {
	r.findErr = errors.New("billing store unavailable")
	r.findErrs = n
}

type fakeAlertNotifier struct {
	calls int
}

func (n *fakeAlertNotifier) NotifyPermanentFailure(_ context.Context, _ *entity.WebhookEvent) {
	n.calls++
}

type reconciliationFixture struct {
	svc      *ReconciliationService
	webhooks *fakeWebhookRepo
	billing  *fakeBillingRepo
	entries  *fakeEntryRepo
	alerts   *fakeAlertNotifier
}

func newReconciliationFixture(t *testing.T, retryCfg config.RetryConfig) *reconciliationFixture {
	t.Helper()

	accounts := newChartOfAccounts(1)
	entryRepo := newFakeEntryRepo(accounts)
	ledgerService := NewLedgerService(entryRepo, accounts)

	webhooks := newFakeWebhookRepo()
	billing := newFakeBillingRepo()
	alerts := &fakeAlertNotifier{}

	registry := gateway.NewRegistry(
		gateway.NewPagarmeAdapter(gateway.PagarmeConfig{WebhookSecret: testPagarmeSecret}),
		gateway.NewAsaasAdapter(gateway.AsaasConfig{AccessToken: "asaas-token"}),
	)

	svc := NewReconciliationService(webhooks, billing, ledgerService, registry, alerts, retryCfg)
	return &reconciliationFixture{
		svc:      svc,
		webhooks: webhooks,
		billing:  billing,
		entries:  entryRepo,
		alerts:   alerts,
	}
}

func defaultRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts: 5,
		BackoffBase: time.Minute,
		BackoffCap:  time.Hour,
		BatchSize:   100,
	}
}

const testPagarmeSecret = "pagarme-secret"

func pagarmeWebhook(webhookID, chargeID, status string, amountCents int64) ([]byte, http.Header) {
	body := []byte(fmt.Sprintf(
		`{"id":%q,"type":"charge.updated","data":{"id":%q,"status":%q,"amount":%d}}`,
		webhookID, chargeID, status, amountCents,
	))
	mac := hmac.New(sha256.New, []byte(testPagarmeSecret))
	mac.Write(body)

	header := http.Header{}
	header.Set("X-Hub-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return body, header
}

func seedBillingRecord(f *reconciliationFixture, id uint64, chargeID string, status types.BillingStatus, amountCents int64) {
	f.billing.records[id] = &entity.BillingRecord{
		ID:              id,
		CondoID:         1,
		ResidentRef:     "unit-101",
		AmountCents:     amountCents,
		Status:          int32(status),
		Gateway:         int32(types.GatewayPagarme),
		GatewayChargeID: &chargeID,
	}
}

func TestFirstDeliveryPostsAndApproves(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)

	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Processed || result.ScheduledForRetry || result.AlreadyProcessed {
		t.Fatalf("unexpected result: %+v", result)
	}

	billing := f.billing.records[7]
	if billing.Status != int32(types.BillingStatusApproved) {
		t.Fatalf("expected approved billing record, got %d", billing.Status)
	}
	if billing.PaidAt == nil {
		t.Fatal("expected paid_at to be stamped")
	}
	if billing.LedgerEntryID == nil {
		t.Fatal("expected ledger entry back-reference")
	}

	entry := f.entries.entries[*billing.LedgerEntryID]
	if entry == nil || entry.Status != entity.LedgerEntryConfirmed {
		t.Fatalf("expected a confirmed ledger entry, got %+v", entry)
	}
	if entry.TotalCents != 15075 {
		t.Fatalf("expected entry total 15075, got %d", entry.TotalCents)
	}
	if len(f.entries.entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(f.entries.entries))
	}

	event := f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	if event == nil || event.Status != entity.WebhookEventSuccess {
		t.Fatalf("expected a successful webhook event, got %+v", event)
	}
	if event.Attempts != 0 {
		t.Fatalf("expected 0 failed attempts, got %d", event.Attempts)
	}
	if len(event.AttemptLog) != 1 || !event.AttemptLog[0].OK {
		t.Fatalf("expected one successful attempt log entry, got %+v", event.AttemptLog)
	}
}

func TestRedeliveryIsNoop(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)

	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	if _, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatalf("expected AlreadyProcessed, got %+v", result)
	}

	if len(f.entries.entries) != 1 {
		t.Fatalf("expected exactly one ledger entry after redelivery, got %d", len(f.entries.entries))
	}
	if len(f.webhooks.events) != 1 {
		t.Fatalf("expected one webhook event row, got %d", len(f.webhooks.events))
	}
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)
	f.billing.failFinds(1)

	before := time.Now().UTC()
	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected the delivery to be acknowledged, got %v", err)
	}
	if !result.ScheduledForRetry || result.Processed {
		t.Fatalf("expected a scheduled retry, got %+v", result)
	}

	event := f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	if event.Status != entity.WebhookEventPending {
		t.Fatalf("expected pending status, got %d", event.Status)
	}
	if event.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", event.Attempts)
	}
	if event.LastError == nil {
		t.Fatal("expected last_error to be recorded")
	}
	if event.NextAttemptAt == nil {
		t.Fatal("expected next_attempt_at to be scheduled")
	}
	delay := event.NextAttemptAt.Sub(before)
	if delay < 55*time.Second || delay > 65*time.Second {
		t.Fatalf("expected ~1m backoff, got %v", delay)
	}

	// The billing store recovers; the poller picks the event up and the
	// reconciliation converges.
	f.webhooks.rewind(event.ID, time.Now().UTC())
	if err := f.svc.ProcessRetryBatch(context.Background()); err != nil {
		t.Fatalf("retry batch failed: %v", err)
	}

	event = f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	if event.Status != entity.WebhookEventSuccess {
		t.Fatalf("expected success after retry, got %d", event.Status)
	}
	if f.billing.records[7].Status != int32(types.BillingStatusApproved) {
		t.Fatalf("expected approved billing record, got %d", f.billing.records[7].Status)
	}
	if len(f.entries.entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(f.entries.entries))
	}
}

func TestExhaustedRetriesFailPermanentlyWithOneAlert(t *testing.T) {
	cfg := defaultRetryConfig()
	cfg.MaxAttempts = 3
	f := newReconciliationFixture(t, cfg)
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)
	f.billing.failFinds(-1)

	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected the delivery to be acknowledged, got %v", err)
	}
	if !result.ScheduledForRetry {
		t.Fatalf("expected a scheduled retry, got %+v", result)
	}

	event := f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	for i := 0; i < 5; i++ {
		f.webhooks.rewind(event.ID, time.Now().UTC())
		if err := f.svc.ProcessRetryBatch(context.Background()); err != nil {
			t.Fatalf("retry batch failed: %v", err)
		}
		event = f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
		if event.Status == entity.WebhookEventFailedPermanent {
			break
		}
	}

	if event.Status != entity.WebhookEventFailedPermanent {
		t.Fatalf("expected failed_permanent, got %d", event.Status)
	}
	if event.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", event.Attempts)
	}
	if event.NextAttemptAt != nil {
		t.Fatal("expected no further attempts to be scheduled")
	}
	if f.alerts.calls != 1 {
		t.Fatalf("expected exactly one alert, got %d", f.alerts.calls)
	}

	// A terminal record is sticky: the poller never touches it again.
	if err := f.svc.ProcessRetryBatch(context.Background()); err != nil {
		t.Fatalf("retry batch failed: %v", err)
	}
	after := f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	if after.Attempts != 3 || after.Status != entity.WebhookEventFailedPermanent {
		t.Fatalf("terminal event changed: %+v", after)
	}
	if f.alerts.calls != 1 {
		t.Fatalf("expected no additional alerts, got %d", f.alerts.calls)
	}
}

func TestUnknownBillingRecordFailsWithoutAlert(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())

	body, header := pagarmeWebhook("hook_1", "ch_unknown", "paid", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected the delivery to be acknowledged, got %v", err)
	}
	if result.Processed || result.ScheduledForRetry {
		t.Fatalf("unexpected result: %+v", result)
	}

	event := f.webhooks.findByWebhookID(int32(types.GatewayPagarme), "hook_1")
	if event.Status != entity.WebhookEventFailedPermanent {
		t.Fatalf("expected failed_permanent, got %d", event.Status)
	}
	if f.alerts.calls != 0 {
		t.Fatalf("expected no alert for an unknown billing record, got %d", f.alerts.calls)
	}
}

func TestBackwardTransitionIsIgnored(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusRefunded, 15075)

	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Processed {
		t.Fatalf("expected a stale delivery to count as processed, got %+v", result)
	}

	if f.billing.records[7].Status != int32(types.BillingStatusRefunded) {
		t.Fatalf("billing status changed: %d", f.billing.records[7].Status)
	}
	if len(f.entries.entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(f.entries.entries))
	}
}

func TestRefundPostsReversalEntry(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusApproved, 15075)

	body, header := pagarmeWebhook("hook_refund", "ch_1", "refunded", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Processed {
		t.Fatalf("expected processed result, got %+v", result)
	}

	if f.billing.records[7].Status != int32(types.BillingStatusRefunded) {
		t.Fatalf("expected refunded billing record, got %d", f.billing.records[7].Status)
	}

	entry, err := f.entries.FindByOrigin(context.Background(), OriginBillingRefund, "7")
	if err != nil || entry == nil {
		t.Fatalf("expected a refund ledger entry, got %v %v", entry, err)
	}
	if entry.Status != entity.LedgerEntryConfirmed || entry.TotalCents != 15075 {
		t.Fatalf("unexpected refund entry: %+v", entry)
	}
}

func TestRejectedSignatureIsNotRecorded(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)

	body, _ := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	header := http.Header{}
	header.Set("X-Hub-Signature", "sha256=deadbeef")

	if _, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header); !errors.Is(err, ErrWebhookRejected) {
		t.Fatalf("expected ErrWebhookRejected, got %v", err)
	}
	if len(f.webhooks.events) != 0 {
		t.Fatalf("expected no webhook event rows, got %d", len(f.webhooks.events))
	}
}

func TestUnknownGateway(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())

	body, header := pagarmeWebhook("hook_1", "ch_1", "paid", 15075)
	if _, err := f.svc.HandleGatewayWebhook(context.Background(), "paypal", body, header); !errors.Is(err, ErrGatewayUnsupported) {
		t.Fatalf("expected ErrGatewayUnsupported, got %v", err)
	}
}

func TestStatusOnlyTransition(t *testing.T) {
	f := newReconciliationFixture(t, defaultRetryConfig())
	seedBillingRecord(f, 7, "ch_1", types.BillingStatusPending, 15075)

	body, header := pagarmeWebhook("hook_1", "ch_1", "processing", 15075)
	result, err := f.svc.HandleGatewayWebhook(context.Background(), "pagarme", body, header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Processed {
		t.Fatalf("expected processed result, got %+v", result)
	}

	if f.billing.records[7].Status != int32(types.BillingStatusProcessing) {
		t.Fatalf("expected processing status, got %d", f.billing.records[7].Status)
	}
	if len(f.entries.entries) != 0 {
		t.Fatalf("status-only transitions must not post ledger entries, got %d", len(f.entries.entries))
	}
}
