package services

import (
	"context"

	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Initiate(ctx context.Context, req gateway.StkPushRequest) (*gateway.StkPushResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StkPushResponse), args.Error(1)
}

func (m *MockPaymentGateway) Query(ctx context.Context, checkoutRequestID string) (*gateway.StkQueryResult, error) {
	args := m.Called(ctx, checkoutRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.StkQueryResult), args.Error(1)
}

type MockMessagingGateway struct {
	mock.Mock
}

func (m *MockMessagingGateway) Send(ctx context.Context, recipients []string, body string) (*gateway.SendResult, error) {
	args := m.Called(ctx, recipients, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.SendResult), args.Error(1)
}

type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) List(ctx context.Context) ([]*model.Plan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Plan), args.Error(1)
}

func (m *MockPlanRepository) Get(ctx context.Context, planID int64) (*model.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Plan), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
