package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/sms-credits/internal/services"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto the HTTP taxonomy. Anything
// unrecognised is a 500 with a generic message; the detail only goes to the
// log.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		writeError(ctx, xhttp.StatusPaymentRequired, err.Error())
	case errors.Is(err, services.ErrUpstream):
		logger.Error("upstream provider failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "upstream provider error")
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, "internal error")
	}
}

// requireUser writes a 401 when no authenticated user is on the request.
func requireUser(ctx *xhttp.RequestCtx) (int64, bool) {
	id, ok := xhttp.UserID(ctx)
	if !ok {
		writeError(ctx, xhttp.StatusUnauthorized, "unauthenticated")
	}
	return id, ok
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return strings.TrimSpace(v)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryList(ctx *xhttp.RequestCtx, key string) []string {
	v := query(ctx, key)
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type page struct {
	from   *time.Time
	until  *time.Time
	limit  int
	offset int
	desc   bool
}

func parsePage(ctx *xhttp.RequestCtx) page {
	var p page
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			p.from = &t
		}
	}
	if v := query(ctx, "until"); v != "" {
		if t, e := parseTime(v); e == nil {
			p.until = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			p.limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			p.offset = n
		}
	}
	// newest first unless asked otherwise
	p.desc = !strings.EqualFold(query(ctx, "order"), "asc")
	return p
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
