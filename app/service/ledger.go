package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/repository"
)

const (
	OriginBillingPayment = "billing_payment"
	OriginBillingRefund  = "billing_refund"
)

const (
	ledgerLogCreated   = "created"
	ledgerLogConfirmed = "confirmed"
	ledgerLogCancelled = "cancelled"
	ledgerLogPosted    = "posted_automatic"
)

type ledgerEntryRepository interface {
	Create(ctx context.Context, entry *entity.LedgerEntry) error
	UpdateStatus(ctx context.Context, id uint64, fromStatus, toStatus int32, log *entity.LedgerLog) error
	FindByID(ctx context.Context, id uint64) (*entity.LedgerEntry, error)
	FindByOrigin(ctx context.Context, originKind, originID string) (*entity.LedgerEntry, error)
	TrialBalance(ctx context.Context, filter repository.TrialBalanceFilter) ([]*repository.TrialBalanceRow, error)
}

type accountRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Account, error)
	FindByRole(ctx context.Context, condoID uint64, role string) (*entity.Account, error)
	ListCondoIDs(ctx context.Context) ([]uint64, error)
}

type DraftLineInput struct {
	AccountID   uint64
	DebitCents  int64
	CreditCents int64
	CostCenter  *string
}

type CreateDraftInput struct {
	CondoID     uint64
	EntryDate   time.Time
	Description string
	ActorID     string
	Lines       []DraftLineInput
}

type AutomaticPostingInput struct {
	CondoID     uint64
	OriginKind  string
	OriginID    string
	AmountCents int64
	EntryDate   time.Time
	Description string
	DebitRole   string
	CreditRole  string
}

// TrialBalanceLine is one account's totals with the balance signed by the
// account's nature.
type TrialBalanceLine struct {
	AccountID    uint64
	FullCode     string
	Name         string
	Nature       string
	DebitCents   int64
	CreditCents  int64
	BalanceCents int64
}

// LedgerService is the only writer of ledger entries; every write path
// funnels through its invariant checks.
type LedgerService struct {
	entryRepo   ledgerEntryRepository
	accountRepo accountRepository
	logger      logrus.FieldLogger
}

func NewLedgerService(entryRepo ledgerEntryRepository, accountRepo accountRepository) *LedgerService {
	return &LedgerService{
		entryRepo:   entryRepo,
		accountRepo: accountRepo,
		logger:      factory.NewModuleLogger("ledger-service"),
	}
}

// CreateDraft validates the double-entry invariants and persists a draft
// entry. Nothing is persisted when validation fails.
func (s *LedgerService) CreateDraft(ctx context.Context, input *CreateDraftInput) (*entity.LedgerEntry, error) {
	if input.CondoID == 0 || strings.TrimSpace(input.Description) == "" {
		return nil, ErrInvalidRequest
	}

	totalCents, err := s.validateLines(ctx, input.CondoID, input.Lines)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = now.Truncate(24 * time.Hour)
	}

	actorID := normalizeOptionalString(input.ActorID)
	entry := &entity.LedgerEntry{
		CondoID:     input.CondoID,
		EntryDate:   entryDate,
		Description: strings.TrimSpace(input.Description),
		TotalCents:  totalCents,
		Status:      entity.LedgerEntryDraft,
		CreatedBy:   actorID,
		Lines:       linesFromInput(input.Lines),
		Logs: []entity.LedgerLog{{
			Action:    ledgerLogCreated,
			ActorID:   actorID,
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Confirm transitions draft -> confirmed. Confirmed entries are immutable
// apart from cancellation.
func (s *LedgerService) Confirm(ctx context.Context, entryID uint64, actorID string) (*entity.LedgerEntry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.Status != entity.LedgerEntryDraft {
		return nil, fmt.Errorf("%w: only draft entries can be confirmed", ErrInvalidState)
	}

	now := time.Now().UTC()
	log := &entity.LedgerLog{
		Action:    ledgerLogConfirmed,
		ActorID:   normalizeOptionalString(actorID),
		CreatedAt: now,
	}
	if err := s.entryRepo.UpdateStatus(ctx, entry.ID, entity.LedgerEntryDraft, entity.LedgerEntryConfirmed, log); err != nil {
		if errors.Is(err, repository.ErrLedgerEntryStale) {
			return nil, fmt.Errorf("%w: entry left draft concurrently", ErrInvalidState)
		}
		return nil, err
	}

	entry.Status = entity.LedgerEntryConfirmed
	entry.UpdatedAt = now
	entry.Logs = append(entry.Logs, *log)
	return entry, nil
}

// Cancel transitions any non-cancelled entry to cancelled with a reason.
// Cancellation is terminal; double cancellation is rejected.
func (s *LedgerService) Cancel(ctx context.Context, entryID uint64, reason, actorID string) (*entity.LedgerEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrInvalidRequest
	}

	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if entry.Status == entity.LedgerEntryCancelled {
		return nil, fmt.Errorf("%w: entry is already cancelled", ErrInvalidState)
	}

	now := time.Now().UTC()
	log := &entity.LedgerLog{
		Action:    ledgerLogCancelled,
		ActorID:   normalizeOptionalString(actorID),
		Reason:    normalizeOptionalString(reason),
		CreatedAt: now,
	}
	if err := s.entryRepo.UpdateStatus(ctx, entry.ID, entry.Status, entity.LedgerEntryCancelled, log); err != nil {
		if errors.Is(err, repository.ErrLedgerEntryStale) {
			return nil, fmt.Errorf("%w: entry status changed concurrently", ErrInvalidState)
		}
		return nil, err
	}

	entry.Status = entity.LedgerEntryCancelled
	entry.UpdatedAt = now
	entry.Logs = append(entry.Logs, *log)
	return entry, nil
}

func (s *LedgerService) GetEntry(ctx context.Context, entryID uint64) (*entity.LedgerEntry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}

// PostAutomatic builds a balanced two-line entry from role accounts and
// creates it pre-confirmed. Idempotent per (origin_kind, origin_id): a
// repeat call returns the existing entry, backed by the unique constraint
// on the origin columns.
func (s *LedgerService) PostAutomatic(ctx context.Context, input *AutomaticPostingInput) (*entity.LedgerEntry, error) {
	if input.CondoID == 0 || input.OriginKind == "" || input.OriginID == "" || input.AmountCents <= 0 {
		return nil, ErrInvalidRequest
	}

	existing, err := s.entryRepo.FindByOrigin(ctx, input.OriginKind, input.OriginID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	debitAccount, err := s.resolveRoleAccount(ctx, input.CondoID, input.DebitRole)
	if err != nil {
		return nil, err
	}
	creditAccount, err := s.resolveRoleAccount(ctx, input.CondoID, input.CreditRole)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entryDate := input.EntryDate
	if entryDate.IsZero() {
		entryDate = now.Truncate(24 * time.Hour)
	}

	originKind := input.OriginKind
	originID := input.OriginID
	entry := &entity.LedgerEntry{
		CondoID:     input.CondoID,
		EntryDate:   entryDate,
		Description: strings.TrimSpace(input.Description),
		TotalCents:  input.AmountCents,
		Status:      entity.LedgerEntryConfirmed,
		OriginKind:  &originKind,
		OriginID:    &originID,
		Lines: []entity.LedgerLine{
			{AccountID: debitAccount.ID, DebitCents: input.AmountCents},
			{AccountID: creditAccount.ID, CreditCents: input.AmountCents},
		},
		Logs: []entity.LedgerLog{{
			Action:    ledgerLogPosted,
			Reason:    normalizeOptionalString(input.OriginKind + ":" + input.OriginID),
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrLedgerEntryAlreadyExists) {
			return s.entryRepo.FindByOrigin(ctx, input.OriginKind, input.OriginID)
		}
		return nil, err
	}
	return entry, nil
}

// TrialBalance aggregates confirmed entries per account over a period and
// signs the balance according to each account's nature.
func (s *LedgerService) TrialBalance(ctx context.Context, condoID uint64, from, to time.Time) ([]*TrialBalanceLine, error) {
	if condoID == 0 {
		return nil, ErrInvalidRequest
	}

	filter := repository.TrialBalanceFilter{CondoID: condoID}
	if !from.IsZero() {
		filter.From = sql.NullTime{Time: from, Valid: true}
	}
	if !to.IsZero() {
		filter.To = sql.NullTime{Time: to, Valid: true}
	}

	rows, err := s.entryRepo.TrialBalance(ctx, filter)
	if err != nil {
		return nil, err
	}

	lines := make([]*TrialBalanceLine, 0, len(rows))
	for _, row := range rows {
		balance := row.DebitCents - row.CreditCents
		if row.Nature == entity.AccountNatureCredit {
			balance = row.CreditCents - row.DebitCents
		}
		lines = append(lines, &TrialBalanceLine{
			AccountID:    row.AccountID,
			FullCode:     row.FullCode,
			Name:         row.Name,
			Nature:       row.Nature,
			DebitCents:   row.DebitCents,
			CreditCents:  row.CreditCents,
			BalanceCents: balance,
		})
	}
	return lines, nil
}

// ValidateRoleAccounts checks at startup that every condominium has leaf
// accounts provisioned for the roles automatic postings depend on, so a
// missing account surfaces as a boot failure instead of a per-event lookup
// miss.
func (s *LedgerService) ValidateRoleAccounts(ctx context.Context) error {
	condoIDs, err := s.accountRepo.ListCondoIDs(ctx)
	if err != nil {
		return err
	}

	requiredRoles := []string{entity.AccountRoleBank, entity.AccountRoleReceivable}
	var firstErr error
	for _, condoID := range condoIDs {
		for _, role := range requiredRoles {
			account, err := s.accountRepo.FindByRole(ctx, condoID, role)
			if err != nil {
				return err
			}
			if account == nil {
				s.logger.WithFields(logrus.Fields{
					"condo_id": condoID,
					"role":     role,
				}).Error("Role account is not provisioned")
				if firstErr == nil {
					firstErr = fmt.Errorf("%w: condo=%d role=%s", ErrRoleAccountMissing, condoID, role)
				}
			}
		}
	}
	return firstErr
}

func (s *LedgerService) resolveRoleAccount(ctx context.Context, condoID uint64, role string) (*entity.Account, error) {
	account, err := s.accountRepo.FindByRole(ctx, condoID, role)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: condo=%d role=%s", ErrRoleAccountMissing, condoID, role)
	}
	return account, nil
}

func (s *LedgerService) validateLines(ctx context.Context, condoID uint64, lines []DraftLineInput) (int64, error) {
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: at least two lines are required", ErrUnbalancedEntry)
	}

	var totalDebit, totalCredit int64
	for _, line := range lines {
		if line.DebitCents < 0 || line.CreditCents < 0 {
			return 0, fmt.Errorf("%w: negative amounts are not allowed", ErrUnbalancedEntry)
		}
		if (line.DebitCents > 0) == (line.CreditCents > 0) {
			return 0, fmt.Errorf("%w: each line must have exactly one of debit/credit", ErrUnbalancedEntry)
		}

		account, err := s.accountRepo.FindByID(ctx, line.AccountID)
		if err != nil {
			return 0, err
		}
		if account == nil || account.CondoID != condoID {
			return 0, fmt.Errorf("%w: account %d", ErrAccountNotPostable, line.AccountID)
		}
		if !account.AcceptsPostings {
			return 0, fmt.Errorf("%w: account %s is a summary node", ErrAccountNotPostable, account.FullCode)
		}

		totalDebit += line.DebitCents
		totalCredit += line.CreditCents
	}

	if totalDebit != totalCredit {
		return 0, fmt.Errorf("%w: debits=%d credits=%d", ErrUnbalancedEntry, totalDebit, totalCredit)
	}
	if totalDebit <= 0 {
		return 0, fmt.Errorf("%w: entry total must be positive", ErrUnbalancedEntry)
	}

	return totalDebit, nil
}

func linesFromInput(input []DraftLineInput) []entity.LedgerLine {
	lines := make([]entity.LedgerLine, 0, len(input))
	for _, line := range input {
		lines = append(lines, entity.LedgerLine{
			AccountID:   line.AccountID,
			DebitCents:  line.DebitCents,
			CreditCents: line.CreditCents,
			CostCenter:  line.CostCenter,
		})
	}
	return lines
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
