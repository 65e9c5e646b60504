package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
)

type CreditService interface {
	Balance(ctx context.Context, userID int64) (uint, error)
}

type CreditHandler struct {
	svc CreditService
}

func RegisterCreditRoutes(e *router.Group, auth xhttp.MiddlewareFunc, h *CreditHandler) {
	e.GET("/credits", auth(h.GetCredits))
}

func NewCreditHandler(svc CreditService) *CreditHandler {
	return &CreditHandler{svc: svc}
}

func (h *CreditHandler) GetCredits(ctx *xhttp.RequestCtx) {
	userID, ok := requireUser(ctx)
	if !ok {
		return
	}

	credits, err := h.svc.Balance(ctx, userID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]uint{"credits": credits})
}
