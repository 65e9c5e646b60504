package model

import (
	"github.com/shopspring/decimal"
)

type PaymentInitiateRequest struct {
	UserID int64
	Phone  string
	PlanID *int64
	Amount uint
}

type CallbackOutcome string

const (
	CallbackOutcomePaid     CallbackOutcome = "PAID"
	CallbackOutcomeDeclined CallbackOutcome = "DECLINED"
)

// CallbackResult is a validated gateway notification. ResultCode 0 is the
// only paid outcome.
type CallbackResult struct {
	Reference         string           `json:"reference"`
	MerchantRequestID string           `json:"merchant_request_id,omitempty"`
	ResultCode        int              `json:"result_code"`
	ResultDesc        string           `json:"result_desc"`
	Outcome           CallbackOutcome  `json:"outcome"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
}

func NewCallbackResult(reference string, resultCode int, resultDesc string) *CallbackResult {
	outcome := CallbackOutcomeDeclined
	if resultCode == 0 {
		outcome = CallbackOutcomePaid
	}
	return &CallbackResult{
		Reference:  reference,
		ResultCode: resultCode,
		ResultDesc: resultDesc,
		Outcome:    outcome,
	}
}

func (c *CallbackResult) Paid() bool {
	return c.Outcome == CallbackOutcomePaid
}

func (c *CallbackResult) Status() TransactionStatus {
	if c.Paid() {
		return TransactionStatusSuccess
	}
	return TransactionStatusFailed
}

type ReconcileOutcome string

const (
	ReconcileApplied   ReconcileOutcome = "applied"
	ReconcileDuplicate ReconcileOutcome = "duplicate"
)
