package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/mapper"
	"github.com/condoflow/ms-go-reconciliation/app/service"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

type LedgerController struct {
	ledgerService *service.LedgerService
	logger        logrus.FieldLogger
}

func NewLedgerController(ledgerService *service.LedgerService) *LedgerController {
	return &LedgerController{
		ledgerService: ledgerService,
		logger:        factory.NewModuleLogger("ledger-controller"),
	}
}

func (c *LedgerController) CreateEntry(ctx echo.Context) error {
	req, err := types.NewCreateLedgerEntryRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	lines := make([]service.DraftLineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		input := service.DraftLineInput{
			AccountID:   line.AccountID,
			DebitCents:  line.DebitCents,
			CreditCents: line.CreditCents,
		}
		if line.CostCenter != "" {
			costCenter := line.CostCenter
			input.CostCenter = &costCenter
		}
		lines = append(lines, input)
	}

	item, err := c.ledgerService.CreateDraft(ctx.Request().Context(), &service.CreateDraftInput{
		CondoID:     req.CondoID,
		EntryDate:   req.ParsedEntryDate(),
		Description: req.Description,
		ActorID:     req.ActorID,
		Lines:       lines,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrUnbalancedEntry), errors.Is(err, service.ErrAccountNotPostable):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create ledger entry failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.LedgerEntryEnvelopeResponse{Entry: mapper.LedgerEntryToResponse(item)})
}

func (c *LedgerController) GetEntry(ctx echo.Context) error {
	req, err := types.NewGetLedgerEntryRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.ledgerService.GetEntry(ctx.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, service.ErrEntryNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "ledger entry not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get ledger entry failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.LedgerEntryEnvelopeResponse{Entry: mapper.LedgerEntryToResponse(item)})
}

func (c *LedgerController) ConfirmEntry(ctx echo.Context) error {
	req, err := types.NewConfirmLedgerEntryRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.ledgerService.Confirm(ctx.Request().Context(), req.ID, req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEntryNotFound):
			return c.writeError(ctx, http.StatusNotFound, "ledger entry not found")
		case errors.Is(err, service.ErrInvalidState):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Confirm ledger entry failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.LedgerEntryEnvelopeResponse{Entry: mapper.LedgerEntryToResponse(item)})
}

func (c *LedgerController) CancelEntry(ctx echo.Context) error {
	req, err := types.NewCancelLedgerEntryRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.ledgerService.Cancel(ctx.Request().Context(), req.ID, req.Reason, req.ActorID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrEntryNotFound):
			return c.writeError(ctx, http.StatusNotFound, "ledger entry not found")
		case errors.Is(err, service.ErrInvalidState):
			return c.writeError(ctx, http.StatusConflict, err.Error())
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Cancel ledger entry failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.LedgerEntryEnvelopeResponse{Entry: mapper.LedgerEntryToResponse(item)})
}

func (c *LedgerController) TrialBalance(ctx echo.Context) error {
	req, err := types.NewTrialBalanceRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	lines, err := c.ledgerService.TrialBalance(ctx.Request().Context(), req.CondoID, req.From, req.To)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Trial balance failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.TrialBalanceToResponse(req.CondoID, req.From, req.To, lines))
}

func (c *LedgerController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
