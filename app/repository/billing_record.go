package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

var (
	ErrBillingRecordNotFound = errors.New("billing record not found")

	// ErrBillingRecordStale signals a status CAS that lost to a concurrent
	// writer; callers treat it as transient and let the retry path re-read.
	ErrBillingRecordStale = errors.New("billing record status changed concurrently")
)

const billingRecordColumns = `
	id, condo_id, resident_ref, description, amount_cents, status,
	gateway, gateway_charge_id, paid_at, ledger_entry_id, created_at, updated_at
`

type BillingRecordRepository struct {
	db DBTX
}

func NewBillingRecordRepository(db DBTX) *BillingRecordRepository {
	return &BillingRecordRepository{db: db}
}

func (r *BillingRecordRepository) FindByID(ctx context.Context, id uint64) (*entity.BillingRecord, error) {
	query := `SELECT ` + billingRecordColumns + ` FROM billing_records WHERE id = ?`

	record := &entity.BillingRecord{}
	if err := scanBillingRecord(r.db.QueryRowContext(ctx, query, id), record); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *BillingRecordRepository) FindByGatewayChargeID(ctx context.Context, gateway int32, chargeID string) (*entity.BillingRecord, error) {
	query := `
		SELECT ` + billingRecordColumns + `
		FROM billing_records
		WHERE gateway = ? AND gateway_charge_id = ?
		LIMIT 1
	`

	record := &entity.BillingRecord{}
	if err := scanBillingRecord(r.db.QueryRowContext(ctx, query, gateway, chargeID), record); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return record, nil
}

// UpdateStatus applies a guarded status change conditionally on the record
// still carrying the status the caller read, so two concurrent handlers
// cannot interleave a lost update.
func (r *BillingRecordRepository) UpdateStatus(ctx context.Context, record *entity.BillingRecord, fromStatus int32, now time.Time) error {
	query := `
		UPDATE billing_records
		SET status = ?, paid_at = ?, ledger_entry_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Status,
		nullableTimeValue(record.PaidAt),
		nullableUint64Value(record.LedgerEntryID),
		now,
		record.ID,
		fromStatus,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBillingRecordStale
	}

	record.UpdatedAt = now
	return nil
}

func scanBillingRecord(scan rowScanner, record *entity.BillingRecord) error {
	var chargeID sql.NullString
	var paidAt sql.NullTime
	var ledgerEntryID sql.NullInt64

	err := scan.Scan(
		&record.ID,
		&record.CondoID,
		&record.ResidentRef,
		&record.Description,
		&record.AmountCents,
		&record.Status,
		&record.Gateway,
		&chargeID,
		&paidAt,
		&ledgerEntryID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	record.GatewayChargeID = stringPtrFromNull(chargeID)
	record.PaidAt = timePtrFromNull(paidAt)
	record.LedgerEntryID = uint64PtrFromNull(ledgerEntryID)
	return nil
}
