package entity

import "time"

const (
	WebhookEventPending         int32 = 1
	WebhookEventProcessing      int32 = 2
	WebhookEventSuccess         int32 = 10
	WebhookEventFailedPermanent int32 = 20
)

// WebhookEvent is the durable record of one inbound gateway notification.
// One row per (gateway, webhook_id); the unique key doubles as the
// idempotency guard. The retry poller only ever sees rows left in
// pending after a failed first attempt.
type WebhookEvent struct {
	ID uint64

	Gateway   int32
	WebhookID string
	EventType string

	Payload   string
	Signature string

	Status        int32
	Attempts      int32
	MaxAttempts   int32
	NextAttemptAt *time.Time
	LastError     *string

	AttemptLog []WebhookAttempt

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookAttempt is one element of the append-only attempt log.
type WebhookAttempt struct {
	At         time.Time `json:"at"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
