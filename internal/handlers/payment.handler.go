package handlers

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/fasthttp/router"
	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/services"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type PaymentService interface {
	Initiate(ctx context.Context, req model.PaymentInitiateRequest) (*model.Transaction, error)
	Reconcile(ctx context.Context, res *model.CallbackResult) (model.ReconcileOutcome, error)
	QueryStatus(ctx context.Context, userID int64, reference string) (*model.Transaction, error)
	History(ctx context.Context, userID int64, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

// CallbackInbox takes callbacks that could not be reconciled inline.
type CallbackInbox interface {
	Defer(ctx context.Context, res *model.CallbackResult, reason error) error
}

type PaymentHandler struct {
	svc           PaymentService
	inbox         CallbackInbox
	callbackToken string
}

func RegisterPaymentRoutes(e *router.Group, auth xhttp.MiddlewareFunc, h *PaymentHandler) {
	e.POST("/payments", auth(h.Initiate))
	e.POST("/payments/callback", h.Callback)
	e.GET("/payments", auth(h.History))
	e.GET("/payments/{reference}", auth(h.Status))
}

// NewPaymentHandler builds the handler. inbox may be nil, in which case
// callbacks that fail inline are only logged. An empty callbackToken
// disables the token check.
func NewPaymentHandler(svc PaymentService, inbox CallbackInbox, callbackToken string) *PaymentHandler {
	return &PaymentHandler{
		svc:           svc,
		inbox:         inbox,
		callbackToken: callbackToken,
	}
}

type initiatePaymentRequest struct {
	PlanID *int64 `json:"planId,omitempty"`
	Amount uint   `json:"amount,omitempty"`
	Phone  string `json:"phone"`
}

type paymentResponse struct {
	Reference string                  `json:"reference"`
	Status    model.TransactionStatus `json:"status"`
}

type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	ackAccepted = callbackAck{ResultCode: 0, ResultDesc: "Accepted"}
	ackRejected = callbackAck{ResultCode: 1, ResultDesc: "Rejected"}
)

func (h *PaymentHandler) Initiate(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.Initiate(ctx, model.PaymentInitiateRequest{
		UserID: userID,
		Phone:  req.Phone,
		PlanID: req.PlanID,
		Amount: req.Amount,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, paymentResponse{Reference: txn.Reference(), Status: txn.Status})
}

// Callback always answers 200. A non-2xx makes the gateway retry without
// bound, and every failure here is either permanent or handled through the
// inbox.
func (h *PaymentHandler) Callback(ctx *xhttp.RequestCtx) {
	if h.callbackToken != "" {
		got := ctx.QueryArgs().Peek("token")
		if subtle.ConstantTimeCompare(got, []byte(h.callbackToken)) != 1 {
			logger.Warn("callback with invalid token", "remote", ctx.RemoteIP().String())
			writeJSON(ctx, xhttp.StatusOK, ackRejected)
			return
		}
	}

	res, err := gateway.ParseCallback(ctx.PostBody())
	if err != nil {
		logger.Warn("malformed payment callback", "error", err)
		writeJSON(ctx, xhttp.StatusOK, ackRejected)
		return
	}

	outcome, err := h.svc.Reconcile(ctx, res)
	switch {
	case err == nil:
		logger.Info("payment callback handled", "reference", res.Reference, "outcome", outcome, "result_code", res.ResultCode)
	case errors.Is(err, services.ErrMalformedCallback):
		logger.Warn("malformed payment callback", "reference", res.Reference, "error", err)
	default:
		h.deferCallback(ctx, res, err)
	}
	writeJSON(ctx, xhttp.StatusOK, ackAccepted)
}

func (h *PaymentHandler) deferCallback(ctx context.Context, res *model.CallbackResult, reason error) {
	if errors.Is(reason, services.ErrUnknownReference) {
		logger.Info("callback for unknown reference", "reference", res.Reference)
	} else {
		logger.Error("callback reconciliation failed", "reference", res.Reference, "error", reason)
	}

	if h.inbox == nil {
		return
	}
	if err := h.inbox.Defer(ctx, res, reason); err != nil {
		// the sweeper is the last line for this payment now
		logger.Error("failed to defer callback", "reference", res.Reference, "error", err)
	}
}

func (h *PaymentHandler) Status(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	txn, err := h.svc.QueryStatus(ctx, userID, pathParam(ctx, "reference"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, paymentResponse{Reference: txn.Reference(), Status: txn.Status})
}

func (h *PaymentHandler) History(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	p := parsePage(ctx)
	f := model.TransactionFilter{
		From:   p.from,
		Until:  p.until,
		Limit:  p.limit,
		Offset: p.offset,
		Desc:   p.desc,
	}
	for _, k := range queryList(ctx, "kind") {
		f.Kinds = append(f.Kinds, model.TransactionKind(k))
	}
	for _, s := range queryList(ctx, "status") {
		f.Statuses = append(f.Statuses, model.TransactionStatus(s))
	}

	items, total, err := h.svc.History(ctx, userID, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Transaction]{Items: items, Total: total})
}
