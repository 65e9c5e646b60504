package client

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *APIClient {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })

	return NewAPIClient(Config{
		BaseURL: "http://api.test/api/v1/",
		Token:   "tok",
		Timeout: 2 * time.Second,
		Dial:    func(string) (net.Conn, error) { return ln.Dial() },
	})
}

func TestAPIClient_InitiatePayment(t *testing.T) {
	var got PaymentRequest
	var auth, path string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		auth = string(ctx.Request.Header.Peek("Authorization"))
		path = string(ctx.Path())
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString(`{"reference":"ws_CO_1","status":"PENDING"}`)
	})

	planID := int64(3)
	p, err := c.InitiatePayment(context.Background(), PaymentRequest{PlanID: &planID, Phone: "0712345678"})
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_1", p.Reference)
	assert.Equal(t, model.TransactionStatusPending, p.Status)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "/api/v1/payments", path)
	require.NotNil(t, got.PlanID)
	assert.Equal(t, int64(3), *got.PlanID)
}

func TestAPIClient_PaymentStatus(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/api/v1/payments/ws_CO_1":
			ctx.SetBodyString(`{"reference":"ws_CO_1","status":"SUCCESS"}`)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString(`{"error":"transaction not found"}`)
		}
	})

	status, err := c.PaymentStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusSuccess, status)

	_, err = c.PaymentStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "transaction not found", apiErr.Message)
}

func TestAPIClient_Credits(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetBodyString(`{"credits":42}`)
	})

	credits, err := c.Credits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(42), credits)
}

func TestAPIClient_ErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})

	_, err := c.Credits(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, fasthttp.StatusBadGateway, apiErr.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAPIClient_DrivesPoller(t *testing.T) {
	polls := 0
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		polls++
		if polls < 3 {
			ctx.SetBodyString(`{"status":"PENDING"}`)
			return
		}
		ctx.SetBodyString(`{"status":"FAILED"}`)
	})

	res := NewPoller(c, 5*time.Millisecond, 5*time.Second).Wait(context.Background(), "ws_CO_1")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 3, res.Polls)
}
