package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

var (
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// ErrLedgerEntryAlreadyExists surfaces the unique (origin_kind,
	// origin_id) constraint backing idempotent automatic postings.
	ErrLedgerEntryAlreadyExists = errors.New("ledger entry already exists for origin")

	// ErrLedgerEntryStale signals a lifecycle CAS that matched no row.
	ErrLedgerEntryStale = errors.New("ledger entry not in expected status")
)

// TrialBalanceRow is one account's aggregated movement over confirmed
// entries in a period.
type TrialBalanceRow struct {
	AccountID   uint64
	FullCode    string
	Name        string
	Nature      string
	DebitCents  int64
	CreditCents int64
}

type TrialBalanceFilter struct {
	CondoID uint64
	From    sql.NullTime
	To      sql.NullTime
}

// LedgerEntryRepository holds *sql.DB rather than DBTX because entry and
// line rows must be written in one transaction.
type LedgerEntryRepository struct {
	db *sql.DB
}

func NewLedgerEntryRepository(db *sql.DB) *LedgerEntryRepository {
	return &LedgerEntryRepository{db: db}
}

// Create persists the entry with its lines and an initial audit log row in
// one transaction, and derives the human-readable entry number from the
// assigned id.
func (r *LedgerEntryRepository) Create(ctx context.Context, entry *entity.LedgerEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (
			condo_id, entry_number, entry_date, description, total_cents,
			status, origin_kind, origin_id, created_by, created_at, updated_at
		)
		VALUES (?, '', ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.CondoID,
		entry.EntryDate,
		entry.Description,
		entry.TotalCents,
		entry.Status,
		nullableStringValue(entry.OriginKind),
		nullableStringValue(entry.OriginID),
		nullableStringValue(entry.CreatedBy),
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrLedgerEntryAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	entry.EntryNumber = fmt.Sprintf("LC-%d-%06d", entry.EntryDate.Year(), entry.ID)

	if _, err := tx.ExecContext(ctx,
		`UPDATE ledger_entries SET entry_number = ? WHERE id = ?`,
		entry.EntryNumber, entry.ID,
	); err != nil {
		return err
	}

	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		line.Position = int32(i)

		lineResult, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entry_lines (
				entry_id, position, account_id, debit_cents, credit_cents, cost_center
			)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			line.EntryID,
			line.Position,
			line.AccountID,
			line.DebitCents,
			line.CreditCents,
			nullableStringValue(line.CostCenter),
		)
		if err != nil {
			return err
		}
		lineID, err := lineResult.LastInsertId()
		if err != nil {
			return err
		}
		line.ID = uint64(lineID)
	}

	for i := range entry.Logs {
		log := &entry.Logs[i]
		log.EntryID = entry.ID
		if err := insertLedgerLog(ctx, tx, log); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateStatus is the lifecycle compare-and-swap: the transition applies
// only if the entry is still in fromStatus, and the audit log row is
// written in the same transaction.
func (r *LedgerEntryRepository) UpdateStatus(ctx context.Context, id uint64, fromStatus, toStatus int32, log *entity.LedgerLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, toStatus, log.CreatedAt, id, fromStatus)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrLedgerEntryStale
	}

	log.EntryID = id
	if err := insertLedgerLog(ctx, tx, log); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *LedgerEntryRepository) FindByID(ctx context.Context, id uint64) (*entity.LedgerEntry, error) {
	entry := &entity.LedgerEntry{}
	err := scanLedgerEntry(r.db.QueryRowContext(ctx, `
		SELECT id, condo_id, entry_number, entry_date, description, total_cents,
			status, origin_kind, origin_id, created_by, created_at, updated_at
		FROM ledger_entries
		WHERE id = ?
	`, id), entry)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if err := r.loadLines(ctx, entry); err != nil {
		return nil, err
	}
	if err := r.loadLogs(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *LedgerEntryRepository) FindByOrigin(ctx context.Context, originKind, originID string) (*entity.LedgerEntry, error) {
	entry := &entity.LedgerEntry{}
	err := scanLedgerEntry(r.db.QueryRowContext(ctx, `
		SELECT id, condo_id, entry_number, entry_date, description, total_cents,
			status, origin_kind, origin_id, created_by, created_at, updated_at
		FROM ledger_entries
		WHERE origin_kind = ? AND origin_id = ?
		LIMIT 1
	`, originKind, originID), entry)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if err := r.loadLines(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// TrialBalance aggregates confirmed entries at query time; the ledger rows
// themselves are the only source of truth, so cancellations simply stop
// counting.
func (r *LedgerEntryRepository) TrialBalance(ctx context.Context, filter TrialBalanceFilter) ([]*TrialBalanceRow, error) {
	query := `
		SELECT a.id, a.full_code, a.name, a.nature,
			COALESCE(SUM(l.debit_cents), 0), COALESCE(SUM(l.credit_cents), 0)
		FROM accounts a
		JOIN ledger_entry_lines l ON l.account_id = a.id
		JOIN ledger_entries e ON e.id = l.entry_id
		WHERE e.condo_id = ? AND e.status = ?
	`
	args := []interface{}{filter.CondoID, entity.LedgerEntryConfirmed}

	if filter.From.Valid {
		query += " AND e.entry_date >= ?"
		args = append(args, filter.From.Time)
	}
	if filter.To.Valid {
		query += " AND e.entry_date <= ?"
		args = append(args, filter.To.Time)
	}

	query += `
		GROUP BY a.id, a.full_code, a.name, a.nature
		ORDER BY a.full_code ASC
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*TrialBalanceRow, 0)
	for rows.Next() {
		row := &TrialBalanceRow{}
		if err := rows.Scan(&row.AccountID, &row.FullCode, &row.Name, &row.Nature, &row.DebitCents, &row.CreditCents); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *LedgerEntryRepository) loadLines(ctx context.Context, entry *entity.LedgerEntry) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, position, account_id, debit_cents, credit_cents, cost_center
		FROM ledger_entry_lines
		WHERE entry_id = ?
		ORDER BY position ASC
	`, entry.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	lines := make([]entity.LedgerLine, 0, 2)
	for rows.Next() {
		var line entity.LedgerLine
		var costCenter sql.NullString
		if err := rows.Scan(&line.ID, &line.EntryID, &line.Position, &line.AccountID, &line.DebitCents, &line.CreditCents, &costCenter); err != nil {
			return err
		}
		line.CostCenter = stringPtrFromNull(costCenter)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	entry.Lines = lines
	return nil
}

func (r *LedgerEntryRepository) loadLogs(ctx context.Context, entry *entity.LedgerEntry) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entry_id, action, actor_id, reason, created_at
		FROM ledger_entry_logs
		WHERE entry_id = ?
		ORDER BY id ASC
	`, entry.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	logs := make([]entity.LedgerLog, 0, 2)
	for rows.Next() {
		var log entity.LedgerLog
		var actorID sql.NullString
		var reason sql.NullString
		if err := rows.Scan(&log.ID, &log.EntryID, &log.Action, &actorID, &reason, &log.CreatedAt); err != nil {
			return err
		}
		log.ActorID = stringPtrFromNull(actorID)
		log.Reason = stringPtrFromNull(reason)
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	entry.Logs = logs
	return nil
}

func insertLedgerLog(ctx context.Context, tx *sql.Tx, log *entity.LedgerLog) error {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entry_logs (entry_id, action, actor_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		log.EntryID,
		log.Action,
		nullableStringValue(log.ActorID),
		nullableStringValue(log.Reason),
		log.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	log.ID = uint64(id)
	return nil
}

func scanLedgerEntry(scan rowScanner, entry *entity.LedgerEntry) error {
	var originKind sql.NullString
	var originID sql.NullString
	var createdBy sql.NullString

	err := scan.Scan(
		&entry.ID,
		&entry.CondoID,
		&entry.EntryNumber,
		&entry.EntryDate,
		&entry.Description,
		&entry.TotalCents,
		&entry.Status,
		&originKind,
		&originID,
		&createdBy,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return err
	}

	entry.OriginKind = stringPtrFromNull(originKind)
	entry.OriginID = stringPtrFromNull(originID)
	entry.CreatedBy = stringPtrFromNull(createdBy)
	return nil
}
