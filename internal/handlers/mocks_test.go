package handlers

import (
	"context"

	"github.com/nimasrn/sms-credits/internal/model"
	xhttp "github.com/nimasrn/sms-credits/pkg/http"
	"github.com/stretchr/testify/mock"
	"github.com/valyala/fasthttp"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, req model.PaymentInitiateRequest) (*model.Transaction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockPaymentService) Reconcile(ctx context.Context, res *model.CallbackResult) (model.ReconcileOutcome, error) {
	args := m.Called(ctx, res)
	return args.Get(0).(model.ReconcileOutcome), args.Error(1)
}

func (m *MockPaymentService) QueryStatus(ctx context.Context, userID int64, reference string) (*model.Transaction, error) {
	args := m.Called(ctx, userID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockPaymentService) History(ctx context.Context, userID int64, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	args := m.Called(ctx, userID, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Transaction), args.Get(1).(int64), args.Error(2)
}

type MockInbox struct {
	mock.Mock
}

func (m *MockInbox) Defer(ctx context.Context, res *model.CallbackResult, reason error) error {
	return m.Called(ctx, res, reason).Error(0)
}

type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) Dispatch(ctx context.Context, req model.DispatchRequest) (*model.DispatchResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchResult), args.Error(1)
}

func (m *MockDispatchService) History(ctx context.Context, userID int64, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, userID, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockDispatchService) Stats(ctx context.Context, userID int64) (*model.MessageStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MessageStats), args.Error(1)
}

func (m *MockDispatchService) ApplyDeliveryReport(ctx context.Context, req model.DeliveryReportRequest) (*model.DeliveryReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeliveryReport), args.Error(1)
}

type MockCreditService struct {
	mock.Mock
}

func (m *MockCreditService) Balance(ctx context.Context, userID int64) (uint, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(uint), args.Error(1)
}

type MockPlanService struct {
	mock.Mock
}

func (m *MockPlanService) List(ctx context.Context) ([]*model.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Plan), args.Error(1)
}

func (m *MockPlanService) Get(ctx context.Context, planID int64) (*model.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Plan), args.Error(1)
}

type staticHealth struct {
	components map[string]string
	healthy    bool
}

func (s staticHealth) Check(context.Context) (map[string]string, bool) {
	return s.components, s.healthy
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

// authedContext is setupTestContext with the user AuthMiddleware would set.
func authedContext(method, path string, body []byte, userID int64) *xhttp.RequestCtx {
	ctx := setupTestContext(method, path, body)
	xhttp.WithUserID(ctx, userID)
	return ctx
}
