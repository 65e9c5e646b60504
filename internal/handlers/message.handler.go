package handlers

import (
	"bytes"
	"context"
	"errors"

	"github.com/fasthttp/router"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/services"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type DispatchService interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error)
	History(ctx context.Context, userID int64, f model.MessageFilter) ([]*model.Message, int64, error)
	Stats(ctx context.Context, userID int64) (*model.MessageStats, error)
	ApplyDeliveryReport(ctx context.Context, req model.DeliveryReportRequest) (*model.DeliveryReport, error)
}

type MessageHandler struct {
	svc DispatchService
}

func RegisterMessageRoutes(e *router.Group, auth xhttp.MiddlewareFunc, h *MessageHandler) {
	e.POST("/messages", auth(h.Dispatch))
	e.GET("/messages", auth(h.ListMessages))
	e.GET("/messages/stats", auth(h.Stats))
	e.POST("/messages/delivery-reports", h.DeliveryReport)
}

func NewMessageHandler(svc DispatchService) *MessageHandler {
	return &MessageHandler{
		svc: svc,
	}
}

type dispatchRequest struct {
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
}

type deliveryReportRequest struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason"`
}

func (h *MessageHandler) Dispatch(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req dispatchRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := h.svc.Dispatch(ctx, model.DispatchRequest{
		UserID:     userID,
		Recipients: req.Recipients,
		Body:       req.Body,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, res)
}

func (h *MessageHandler) ListMessages(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	p := parsePage(ctx)
	f := model.MessageFilter{
		From:     p.from,
		Until:    p.until,
		Limit:    p.limit,
		Offset:   p.offset,
		Desc:     p.desc,
		Statuses: queryList(ctx, "status"),
	}
	if v := query(ctx, "to"); v != "" {
		f.To = &v
	}

	items, total, err := h.svc.History(ctx, userID, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Message]{Items: items, Total: total})
}

func (h *MessageHandler) Stats(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	stats, err := h.svc.Stats(ctx, userID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

// DeliveryReport accepts the provider's form post as well as JSON. Reports
// for messages we never stored are acknowledged so the provider stops
// retrying them.
func (h *MessageHandler) DeliveryReport(ctx *xhttp.RequestCtx) {
	var req deliveryReportRequest
	if bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("application/json")) {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	} else {
		args := ctx.PostArgs()
		req.ID = string(args.Peek("id"))
		req.Status = string(args.Peek("status"))
		req.FailureReason = string(args.Peek("failureReason"))
	}

	report, err := h.svc.ApplyDeliveryReport(ctx, model.DeliveryReportRequest{
		ProviderMessageID: req.ID,
		Status:            req.Status,
		FailureReason:     req.FailureReason,
	})
	if errors.Is(err, services.ErrMessageNotFound) {
		logger.Info("delivery report for unknown message", "provider_message_id", req.ID)
		writeJSON(ctx, xhttp.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, report)
}
