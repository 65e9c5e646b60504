package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/services"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/nimasrn/sms-credits/test/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingTxn(reference string) *model.Transaction {
	return &model.Transaction{
		ID:                1,
		ExternalReference: &reference,
		UserID:            7,
		Status:            model.TransactionStatusPending,
	}
}

func stkCallback(reference string, code int) []byte {
	return fixtures.StkCallback(reference, code, 100)
}

func decodeAck(t *testing.T, body []byte) callbackAck {
	t.Helper()
	var ack callbackAck
	require.NoError(t, json.Unmarshal(body, &ack))
	return ack
}

func TestPaymentHandler_Initiate(t *testing.T) {
	t.Run("plan purchase", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, nil, "")

		svc.On("Initiate", mock.Anything, mock.MatchedBy(func(r model.PaymentInitiateRequest) bool {
			return r.UserID == 7 && r.PlanID != nil && *r.PlanID == 3 && r.Phone == "0712345678" && r.Amount == 0
		})).Return(pendingTxn("ws_CO_1"), nil)

		ctx := authedContext("POST", "/api/v1/payments", []byte(`{"planId":3,"phone":"0712345678"}`), 7)
		handler.Initiate(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		var resp paymentResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		assert.Equal(t, "ws_CO_1", resp.Reference)
		assert.Equal(t, model.TransactionStatusPending, resp.Status)
		svc.AssertExpectations(t)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		svc := new(MockPaymentService)
		ctx := setupTestContext("POST", "/api/v1/payments", []byte(`{"amount":10,"phone":"0712345678"}`))
		NewPaymentHandler(svc, nil, "").Initiate(ctx)

		assert.Equal(t, 401, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		ctx := authedContext("POST", "/api/v1/payments", []byte("{"), 7)
		NewPaymentHandler(new(MockPaymentService), nil, "").Initiate(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Body()), "invalid JSON")
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"invalid phone", services.ErrInvalidPhone, 400, "invalid phone number"},
		{"unknown plan", services.ErrPlanNotFound, 404, "plan not found"},
		{"unknown user", services.ErrUserNotFound, 404, "user not found"},
		{"gateway down", fmt.Errorf("initiate payment: %w: timeout", services.ErrUpstream), 500, "upstream provider error"},
		{"store down", errors.New("connection refused"), 500, "internal error"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockPaymentService)
			svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, tc.err)

			ctx := authedContext("POST", "/api/v1/payments", []byte(`{"amount":10,"phone":"0712345678"}`), 7)
			NewPaymentHandler(svc, nil, "").Initiate(ctx)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			assert.Contains(t, string(ctx.Response.Body()), tc.body)
		})
	}
}

func TestPaymentHandler_Callback(t *testing.T) {
	t.Run("reconciled", func(t *testing.T) {
		svc := new(MockPaymentService)
		inbox := new(MockInbox)
		svc.On("Reconcile", mock.Anything, mock.MatchedBy(func(r *model.CallbackResult) bool {
			return r.Reference == "ws_CO_1" && r.Paid()
		})).Return(model.ReconcileApplied, nil)

		ctx := setupTestContext("POST", "/api/v1/payments/callback", stkCallback("ws_CO_1", 0))
		NewPaymentHandler(svc, inbox, "").Callback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, ackAccepted, decodeAck(t, ctx.Response.Body()))
		svc.AssertExpectations(t)
		inbox.AssertNotCalled(t, "Defer", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate is still accepted", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("Reconcile", mock.Anything, mock.Anything).Return(model.ReconcileDuplicate, nil)

		ctx := setupTestContext("POST", "/api/v1/payments/callback", stkCallback("ws_CO_1", 1032))
		NewPaymentHandler(svc, nil, "").Callback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, ackAccepted, decodeAck(t, ctx.Response.Body()))
	})

	t.Run("unknown reference is deferred", func(t *testing.T) {
		svc := new(MockPaymentService)
		inbox := new(MockInbox)
		svc.On("Reconcile", mock.Anything, mock.Anything).Return(model.ReconcileOutcome(""), services.ErrUnknownReference)
		inbox.On("Defer", mock.Anything, mock.MatchedBy(func(r *model.CallbackResult) bool {
			return r.Reference == "ws_CO_9"
		}), services.ErrUnknownReference).Return(nil)

		ctx := setupTestContext("POST", "/api/v1/payments/callback", stkCallback("ws_CO_9", 0))
		NewPaymentHandler(svc, inbox, "").Callback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		inbox.AssertExpectations(t)
	})

	t.Run("transient error is deferred even if the inbox fails", func(t *testing.T) {
		svc := new(MockPaymentService)
		inbox := new(MockInbox)
		transient := fmt.Errorf("reconcile: %w", pg.ErrTransient)
		svc.On("Reconcile", mock.Anything, mock.Anything).Return(model.ReconcileOutcome(""), transient)
		inbox.On("Defer", mock.Anything, mock.Anything, transient).Return(errors.New("redis down"))

		ctx := setupTestContext("POST", "/api/v1/payments/callback", stkCallback("ws_CO_2", 0))
		NewPaymentHandler(svc, inbox, "").Callback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		inbox.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		svc := new(MockPaymentService)
		ctx := setupTestContext("POST", "/api/v1/payments/callback", []byte(`{"Body":{}}`))
		NewPaymentHandler(svc, nil, "").Callback(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, ackRejected, decodeAck(t, ctx.Response.Body()))
		svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
	})

	t.Run("token required", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, nil, "cb-secret")

		ctx := setupTestContext("POST", "/api/v1/payments/callback?token=wrong", stkCallback("ws_CO_1", 0))
		handler.Callback(ctx)
		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, ackRejected, decodeAck(t, ctx.Response.Body()))
		svc.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)

		svc.On("Reconcile", mock.Anything, mock.Anything).Return(model.ReconcileApplied, nil)
		ctx = setupTestContext("POST", "/api/v1/payments/callback?token=cb-secret", stkCallback("ws_CO_1", 0))
		handler.Callback(ctx)
		assert.Equal(t, ackAccepted, decodeAck(t, ctx.Response.Body()))
		svc.AssertExpectations(t)
	})
}

func TestPaymentHandler_Status(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("QueryStatus", mock.Anything, int64(7), "ws_CO_1").Return(pendingTxn("ws_CO_1"), nil)

		ctx := authedContext("GET", "/api/v1/payments/ws_CO_1", nil, 7)
		ctx.SetUserValue("reference", "ws_CO_1")
		NewPaymentHandler(svc, nil, "").Status(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"reference":"ws_CO_1","status":"PENDING"}`, string(ctx.Response.Body()))
	})

	t.Run("missing reference", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("QueryStatus", mock.Anything, int64(7), "").Return(nil, services.ErrMissingReference)

		ctx := authedContext("GET", "/api/v1/payments/", nil, 7)
		NewPaymentHandler(svc, nil, "").Status(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("unknown reference", func(t *testing.T) {
		svc := new(MockPaymentService)
		svc.On("QueryStatus", mock.Anything, int64(7), "nope").Return(nil, services.ErrTransactionNotFound)

		ctx := authedContext("GET", "/api/v1/payments/nope", nil, 7)
		ctx.SetUserValue("reference", "nope")
		NewPaymentHandler(svc, nil, "").Status(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestPaymentHandler_History(t *testing.T) {
	svc := new(MockPaymentService)
	items := []*model.Transaction{pendingTxn("ws_CO_1")}
	svc.On("History", mock.Anything, int64(7), mock.MatchedBy(func(f model.TransactionFilter) bool {
		return f.Limit == 10 && f.Offset == 20 && f.Desc &&
			len(f.Kinds) == 2 && f.Kinds[1] == model.TransactionKindDeduction &&
			len(f.Statuses) == 1 && f.Statuses[0] == model.TransactionStatusSuccess &&
			f.From != nil && f.From.Format("2006-01-02") == "2024-03-01"
	})).Return(items, int64(21), nil)

	ctx := authedContext("GET", "/api/v1/payments?limit=10&offset=20&kind=RECHARGE,DEDUCTION&status=SUCCESS&from=2024-03-01", nil, 7)
	NewPaymentHandler(svc, nil, "").History(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var resp listResponse[*model.Transaction]
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, int64(21), resp.Total)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "ws_CO_1", resp.Items[0].Reference())
	svc.AssertExpectations(t)
}
