package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

var (
	ErrWebhookEventNotFound = errors.New("webhook event not found")

	// ErrWebhookEventStale signals a conditional update that matched no row:
	// another worker already moved the record out of the expected status.
	ErrWebhookEventStale = errors.New("webhook event not in expected status")
)

const webhookEventColumns = `
	id, gateway, webhook_id, event_type, payload, signature,
	status, attempts, max_attempts, next_attempt_at, last_error, attempt_log,
	created_at, updated_at
`

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// InsertIfAbsent is the idempotency guard: it atomically claims the
// (gateway, webhook_id) pair via the table's unique key. The returned
// bool is false when the pair was already recorded, which is not an
// error but a signal to skip processing.
func (r *WebhookEventRepository) InsertIfAbsent(ctx context.Context, event *entity.WebhookEvent) (bool, error) {
	attemptLogJSON, err := serializeAttemptLog(event.AttemptLog)
	if err != nil {
		return false, err
	}

	query := `
		INSERT INTO webhook_events (
			gateway, webhook_id, event_type, payload, signature,
			status, attempts, max_attempts, next_attempt_at, last_error, attempt_log,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.Gateway,
		event.WebhookID,
		event.EventType,
		event.Payload,
		event.Signature,
		event.Status,
		event.Attempts,
		event.MaxAttempts,
		nullableTimeValue(event.NextAttemptAt),
		nullableStringValue(event.LastError),
		attemptLogJSON,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return false, nil
		}
		return false, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, err
	}
	event.ID = uint64(id)
	return true, nil
}

// ClaimForProcessing is the atomic pending -> processing transition the
// poller relies on; of two concurrent pollers only one sees a claim.
func (r *WebhookEventRepository) ClaimForProcessing(ctx context.Context, id uint64, now time.Time) (bool, error) {
	query := `
		UPDATE webhook_events
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query, entity.WebhookEventProcessing, now, id, entity.WebhookEventPending)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateOutcome writes the post-attempt state of a record conditionally on
// it still being in processing, so a terminal record can never be mutated
// again.
func (r *WebhookEventRepository) UpdateOutcome(ctx context.Context, event *entity.WebhookEvent) error {
	attemptLogJSON, err := serializeAttemptLog(event.AttemptLog)
	if err != nil {
		return err
	}

	query := `
		UPDATE webhook_events
		SET status = ?,
			attempts = ?,
			next_attempt_at = ?,
			last_error = ?,
			attempt_log = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		event.Status,
		event.Attempts,
		nullableTimeValue(event.NextAttemptAt),
		nullableStringValue(event.LastError),
		attemptLogJSON,
		event.UpdatedAt,
		event.ID,
		entity.WebhookEventProcessing,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrWebhookEventStale
	}
	return nil
}

// ListDue returns records eligible for a retry attempt, oldest due first.
func (r *WebhookEventRepository) ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE status = ?
		  AND next_attempt_at IS NOT NULL
		  AND next_attempt_at <= ?
		  AND attempts < max_attempts
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.WebhookEventPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*entity.WebhookEvent, 0)
	for rows.Next() {
		item, err := scanWebhookEventFromRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (r *WebhookEventRepository) FindByID(ctx context.Context, id uint64) (*entity.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE id = ?
	`

	event := &entity.WebhookEvent{}
	if err := scanWebhookEvent(r.db.QueryRowContext(ctx, query, id), event); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return event, nil
}

func (r *WebhookEventRepository) FindByGatewayWebhookID(ctx context.Context, gateway int32, webhookID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE gateway = ? AND webhook_id = ?
		LIMIT 1
	`

	event := &entity.WebhookEvent{}
	if err := scanWebhookEvent(r.db.QueryRowContext(ctx, query, gateway, webhookID), event); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return event, nil
}

// CountByStatus feeds the queue-depth metrics.
func (r *WebhookEventRepository) CountByStatus(ctx context.Context, status int32) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhookEvent(scan rowScanner, event *entity.WebhookEvent) error {
	var nextAttemptAt sql.NullTime
	var lastError sql.NullString
	var attemptLogJSON string

	err := scan.Scan(
		&event.ID,
		&event.Gateway,
		&event.WebhookID,
		&event.EventType,
		&event.Payload,
		&event.Signature,
		&event.Status,
		&event.Attempts,
		&event.MaxAttempts,
		&nextAttemptAt,
		&lastError,
		&attemptLogJSON,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return err
	}

	event.NextAttemptAt = timePtrFromNull(nextAttemptAt)
	event.LastError = stringPtrFromNull(lastError)

	attemptLog, err := parseAttemptLog(attemptLogJSON)
	if err != nil {
		return err
	}
	event.AttemptLog = attemptLog

	return nil
}

func scanWebhookEventFromRows(rows *sql.Rows) (*entity.WebhookEvent, error) {
	item := &entity.WebhookEvent{}
	if err := scanWebhookEvent(rows, item); err != nil {
		return nil, err
	}
	return item, nil
}
