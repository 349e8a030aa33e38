package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isDuplicateEntryError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

func nullableStringValue(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableTimeValue(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableUint64Value(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtrFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtrFromNull(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func uint64PtrFromNull(v sql.NullInt64) *uint64 {
	if !v.Valid {
		return nil
	}
	n := uint64(v.Int64)
	return &n
}

func serializeAttemptLog(log []entity.WebhookAttempt) (string, error) {
	if log == nil {
		log = []entity.WebhookAttempt{}
	}
	payload, err := json.Marshal(log)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func parseAttemptLog(raw string) ([]entity.WebhookAttempt, error) {
	if raw == "" {
		return []entity.WebhookAttempt{}, nil
	}
	var log []entity.WebhookAttempt
	if err := json.Unmarshal([]byte(raw), &log); err != nil {
		return nil, err
	}
	if log == nil {
		log = []entity.WebhookAttempt{}
	}
	return log, nil
}
