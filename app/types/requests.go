package types

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const entryDateLayout = "2006-01-02"

type LedgerLineRequest struct {
	AccountID   uint64 `json:"account_id"`
	DebitCents  int64  `json:"debit_cents"`
	CreditCents int64  `json:"credit_cents"`
	CostCenter  string `json:"cost_center"`
}

type CreateLedgerEntryRequest struct {
	CondoID     uint64              `json:"condo_id"`
	EntryDate   string              `json:"entry_date"`
	Description string              `json:"description"`
	ActorID     string              `json:"actor_id"`
	Lines       []LedgerLineRequest `json:"lines"`
}

func NewCreateLedgerEntryRequestFromContext(ctx echo.Context) (*CreateLedgerEntryRequest, error) {
	var body CreateLedgerEntryRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.EntryDate = strings.TrimSpace(body.EntryDate)
	body.Description = strings.TrimSpace(body.Description)
	body.ActorID = strings.TrimSpace(body.ActorID)
	return &body, nil
}

func (r *CreateLedgerEntryRequest) Validate() error {
	if r.CondoID == 0 {
		return errors.New("condo_id is required")
	}
	if r.EntryDate != "" {
		if _, err := time.Parse(entryDateLayout, r.EntryDate); err != nil {
			return errors.New("entry_date must be formatted as YYYY-MM-DD")
		}
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("description is required")
	}
	if len(r.Lines) < 2 {
		return errors.New("at least two lines are required")
	}
	for i, line := range r.Lines {
		if line.AccountID == 0 {
			return errors.New("lines[" + strconv.Itoa(i) + "].account_id is required")
		}
		if line.DebitCents < 0 || line.CreditCents < 0 {
			return errors.New("lines[" + strconv.Itoa(i) + "] amounts must be >= 0")
		}
		if (line.DebitCents > 0) == (line.CreditCents > 0) {
			return errors.New("lines[" + strconv.Itoa(i) + "] must have exactly one of debit_cents/credit_cents")
		}
	}
	return nil
}

// ParsedEntryDate assumes Validate has passed; empty dates default to today.
func (r *CreateLedgerEntryRequest) ParsedEntryDate() time.Time {
	if r.EntryDate == "" {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	parsed, _ := time.Parse(entryDateLayout, r.EntryDate)
	return parsed
}

type GetLedgerEntryRequest struct {
	ID uint64
}

func NewGetLedgerEntryRequestFromContext(ctx echo.Context) (*GetLedgerEntryRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetLedgerEntryRequest{ID: id}, nil
}

func (r *GetLedgerEntryRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid entry id")
	}
	return nil
}

type ConfirmLedgerEntryRequest struct {
	ID      uint64 `json:"-"`
	ActorID string `json:"actor_id"`
}

func NewConfirmLedgerEntryRequestFromContext(ctx echo.Context) (*ConfirmLedgerEntryRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body ConfirmLedgerEntryRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ID = id
	body.ActorID = strings.TrimSpace(body.ActorID)
	return &body, nil
}

func (r *ConfirmLedgerEntryRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid entry id")
	}
	if r.ActorID == "" {
		return errors.New("actor_id is required")
	}
	return nil
}

type CancelLedgerEntryRequest struct {
	ID      uint64 `json:"-"`
	ActorID string `json:"actor_id"`
	Reason  string `json:"reason"`
}

func NewCancelLedgerEntryRequestFromContext(ctx echo.Context) (*CancelLedgerEntryRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body CancelLedgerEntryRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ID = id
	body.ActorID = strings.TrimSpace(body.ActorID)
	body.Reason = strings.TrimSpace(body.Reason)
	return &body, nil
}

func (r *CancelLedgerEntryRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid entry id")
	}
	if r.ActorID == "" {
		return errors.New("actor_id is required")
	}
	if r.Reason == "" {
		return errors.New("reason is required")
	}
	return nil
}

type TrialBalanceRequest struct {
	CondoID uint64
	From    time.Time
	To      time.Time
}

func NewTrialBalanceRequestFromContext(ctx echo.Context) (*TrialBalanceRequest, error) {
	condoID, err := strconv.ParseUint(strings.TrimSpace(ctx.QueryParam("condo_id")), 10, 64)
	if err != nil {
		return nil, errors.New("condo_id is required")
	}

	req := &TrialBalanceRequest{CondoID: condoID}

	if fromRaw := strings.TrimSpace(ctx.QueryParam("from")); fromRaw != "" {
		from, err := time.Parse(entryDateLayout, fromRaw)
		if err != nil {
			return nil, errors.New("from must be formatted as YYYY-MM-DD")
		}
		req.From = from
	}
	if toRaw := strings.TrimSpace(ctx.QueryParam("to")); toRaw != "" {
		to, err := time.Parse(entryDateLayout, toRaw)
		if err != nil {
			return nil, errors.New("to must be formatted as YYYY-MM-DD")
		}
		req.To = to
	}

	return req, nil
}

func (r *TrialBalanceRequest) Validate() error {
	if r.CondoID == 0 {
		return errors.New("condo_id is required")
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return errors.New("to must not be before from")
	}
	return nil
}

// GatewayWebhookRequest carries one inbound gateway notification: the raw
// body plus the headers the adapters verify against.
type GatewayWebhookRequest struct {
	Gateway   string
	Body      []byte
	Header    http.Header
	RequestID string
}

func NewGatewayWebhookRequestFromContext(ctx echo.Context) (*GatewayWebhookRequest, error) {
	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &GatewayWebhookRequest{
		Gateway:   strings.ToLower(strings.TrimSpace(ctx.Param("gateway"))),
		Body:      body,
		Header:    ctx.Request().Header.Clone(),
		RequestID: strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID)),
	}, nil
}

func (r *GatewayWebhookRequest) Validate() error {
	if r.Gateway == "" {
		return errors.New("gateway is required")
	}
	if len(r.Body) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
