package handlers

import (
	"context"
	"strconv"

	"github.com/fasthttp/router"
	"github.com/nimasrn/sms-credits/internal/model"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
)

type PlanService interface {
	List(ctx context.Context) ([]*model.Plan, error)
	Get(ctx context.Context, planID int64) (*model.Plan, error)
}

type PlanHandler struct {
	svc PlanService
}

func RegisterPlanRoutes(e *router.Group, h *PlanHandler) {
	e.GET("/plans", h.ListPlans)
	e.GET("/plans/{id}", h.GetPlan)
}

func NewPlanHandler(svc PlanService) *PlanHandler {
	return &PlanHandler{svc: svc}
}

func (h *PlanHandler) ListPlans(ctx *xhttp.RequestCtx) {
	plans, err := h.svc.List(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Plan]{Items: plans, Total: int64(len(plans))})
}

func (h *PlanHandler) GetPlan(ctx *xhttp.RequestCtx) {
	id, err := strconv.ParseInt(pathParam(ctx, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, xhttp.StatusBadRequest, "invalid plan id")
		return
	}

	plan, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, plan)
}
