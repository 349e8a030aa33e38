package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/condoflow/ms-go-reconciliation/app/factory"
	"github.com/condoflow/ms-go-reconciliation/app/gateway"
	"github.com/condoflow/ms-go-reconciliation/app/service"
	"github.com/condoflow/ms-go-reconciliation/app/types"
)

type WebhookController struct {
	reconciliationService *service.ReconciliationService
	logger                logrus.FieldLogger
}

func NewWebhookController(reconciliationService *service.ReconciliationService) *WebhookController {
	return &WebhookController{
		reconciliationService: reconciliationService,
		logger:                factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

// HandleGatewayWebhook acknowledges every authenticated delivery with 200,
// even when processing failed and went to the retry queue. Only requests
// that fail authenticity checks get a non-2xx, so gateways never redeliver
// events we already own.
func (c *WebhookController) HandleGatewayWebhook(ctx echo.Context) error {
	req, err := types.NewGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.reconciliationService.HandleGatewayWebhook(ctx.Request().Context(), req.Gateway, req.Body, req.Header)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGatewayUnsupported):
			return c.writeError(ctx, http.StatusNotFound, "gateway not supported")
		case errors.Is(err, service.ErrWebhookRejected):
			return c.writeError(ctx, http.StatusUnauthorized, "webhook signature rejected")
		case errors.Is(err, gateway.ErrMalformedPayload):
			return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Success: false})
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle gateway webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{
		Success:           true,
		Processed:         result.Processed || result.AlreadyProcessed,
		ScheduledForRetry: result.ScheduledForRetry,
	})
}

func (c *WebhookController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
