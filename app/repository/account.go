package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

var ErrAccountNotFound = errors.New("account not found")

const accountColumns = `
	id, condo_id, code, full_code, parent_id, level,
	type, nature, accepts_postings, role, name, created_at, updated_at
`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint64) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	account := &entity.Account{}
	if err := scanAccount(r.db.QueryRowContext(ctx, query, id), account); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return account, nil
}

// FindByRole resolves a condominium's role account (bank, receivable, ...).
// Role accounts are unique per condominium and must accept postings.
func (r *AccountRepository) FindByRole(ctx context.Context, condoID uint64, role string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE condo_id = ? AND role = ? AND accepts_postings = 1
		LIMIT 1
	`

	account := &entity.Account{}
	if err := scanAccount(r.db.QueryRowContext(ctx, query, condoID, role), account); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return account, nil
}

// ListCondoIDs returns every condominium that owns a chart of accounts,
// for the startup role-account validation.
func (r *AccountRepository) ListCondoIDs(ctx context.Context) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT condo_id FROM accounts ORDER BY condo_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}

func scanAccount(scan rowScanner, account *entity.Account) error {
	var parentID sql.NullInt64
	var role sql.NullString

	err := scan.Scan(
		&account.ID,
		&account.CondoID,
		&account.Code,
		&account.FullCode,
		&parentID,
		&account.Level,
		&account.Type,
		&account.Nature,
		&account.AcceptsPostings,
		&role,
		&account.Name,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return err
	}

	account.ParentID = uint64PtrFromNull(parentID)
	account.Role = stringPtrFromNull(role)
	return nil
}
