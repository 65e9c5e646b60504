package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
)

type HealthService interface {
	Check(ctx context.Context) (map[string]string, bool)
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{
		svc: svc,
	}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	components, healthy := h.svc.Check(ctx)
	if !healthy {
		writeJSON(ctx, xhttp.StatusServiceUnavailable, healthResponse{Status: "degraded", Components: components})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, healthResponse{Status: "ok", Components: components})
}
