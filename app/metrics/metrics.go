package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

const metricPrefix = "reconciliation_"

var (
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "webhooks_received_total",
			Help: "Inbound gateway webhooks by gateway and outcome",
		},
		[]string{"gateway", "outcome"},
	)

	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "retry_attempts_total",
			Help: "Webhook processing attempts by gateway and result",
		},
		[]string{"gateway", "result"},
	)

	AlertsFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "alerts_fired_total",
			Help: "Operator alerts fired for permanently failed events",
		},
	)

	LedgerEntriesPosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "ledger_entries_posted_total",
			Help: "Automatic ledger postings by origin kind",
		},
		[]string{"origin_kind"},
	)
)

// Register installs the counters plus queue-depth gauges computed from the
// webhook_events table at scrape time.
func Register(db *sql.DB) {
	prometheus.MustRegister(WebhooksReceived, RetryAttempts, AlertsFired, LedgerEntriesPosted)

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "webhook_events_pending",
			Help: "Webhook events waiting for a retry attempt",
		},
		func() float64 {
			return queryCount(db, `SELECT COUNT(*) FROM webhook_events WHERE status = ?`, entity.WebhookEventPending)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "webhook_events_failed_permanent",
			Help: "Webhook events requiring manual intervention",
		},
		func() float64 {
			return queryCount(db, `SELECT COUNT(*) FROM webhook_events WHERE status = ?`, entity.WebhookEventFailedPermanent)
		},
	))
}

func queryCount(db *sql.DB, query string, args ...interface{}) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query, args...).Scan(&count); err != nil {
		logrus.WithError(err).Warn("Metrics query failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
