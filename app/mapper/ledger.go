package mapper

import (
	"time"

	"github.com/condoflow/ms-go-reconciliation/app/entity"
	"github.com/condoflow/ms-go-reconciliation/app/service"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

const entryDateLayout = "2006-01-02"

func LedgerEntryToResponse(item *entity.LedgerEntry) *types.LedgerEntryResponse {
	if item == nil {
		return nil
	}

	lines := make([]types.LedgerLineResponse, 0, len(item.Lines))
	for _, line := range item.Lines {
		lines = append(lines, types.LedgerLineResponse{
			AccountID:   line.AccountID,
			Position:    line.Position,
			DebitCents:  line.DebitCents,
			CreditCents: line.CreditCents,
			CostCenter:  derefString(line.CostCenter),
		})
	}

	logs := make([]types.LedgerLogResponse, 0, len(item.Logs))
	for _, log := range item.Logs {
		logs = append(logs, types.LedgerLogResponse{
			Action:    log.Action,
			ActorID:   derefString(log.ActorID),
			Reason:    derefString(log.Reason),
			CreatedAt: log.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return &types.LedgerEntryResponse{
		ID:          item.ID,
		CondoID:     item.CondoID,
		EntryNumber: item.EntryNumber,
		EntryDate:   item.EntryDate.UTC().Format(entryDateLayout),
		Description: item.Description,
		TotalCents:  item.TotalCents,
		Status:      ledgerStatusToString(item.Status),
		OriginKind:  derefString(item.OriginKind),
		OriginID:    derefString(item.OriginID),
		Lines:       lines,
		Logs:        logs,
		CreatedAt:   item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func TrialBalanceToResponse(condoID uint64, from, to time.Time, lines []*service.TrialBalanceLine) *types.TrialBalanceResponse {
	rows := make([]types.TrialBalanceRowResponse, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, types.TrialBalanceRowResponse{
			AccountID:    line.AccountID,
			FullCode:     line.FullCode,
			Name:         line.Name,
			Nature:       line.Nature,
			DebitCents:   line.DebitCents,
			CreditCents:  line.CreditCents,
			BalanceCents: line.BalanceCents,
		})
	}

	resp := &types.TrialBalanceResponse{CondoID: condoID, Rows: rows}
	if !from.IsZero() {
		resp.From = from.UTC().Format(entryDateLayout)
	}
	if !to.IsZero() {
		resp.To = to.UTC().Format(entryDateLayout)
	}
	return resp
}

func ledgerStatusToString(status int32) string {
	switch status {
	case entity.LedgerEntryDraft:
		return "draft"
	case entity.LedgerEntryConfirmed:
		return "confirmed"
	case entity.LedgerEntryCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
