package model

import "time"

type TransactionKind string

const (
	TransactionKindSubscription TransactionKind = "SUBSCRIPTION"
	TransactionKindRecharge     TransactionKind = "RECHARGE"
	TransactionKindDeduction    TransactionKind = "DEDUCTION"
)

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "PENDING"
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

// Transaction is one payment attempt or one credit deduction. Rows are never
// deleted.
type Transaction struct {
	ID                int64             `json:"id"`
	ExternalReference *string           `json:"reference,omitempty"`
	AccountReference  string            `json:"account_reference,omitempty"`
	UserID            int64             `json:"user_id"`
	PlanID            *int64            `json:"plan_id,omitempty"`
	Amount            uint              `json:"amount"`
	Credits           uint              `json:"credits"`
	Kind              TransactionKind   `json:"kind"`
	Status            TransactionStatus `json:"status"`
	Phone             string            `json:"phone,omitempty"`
	ResultCode        *int              `json:"result_code,omitempty"`
	ResultDesc        string            `json:"result_desc,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (t *Transaction) Reference() string {
	if t == nil || t.ExternalReference == nil {
		return ""
	}
	return *t.ExternalReference
}

// TransactionFilter controls List queries.
type TransactionFilter struct {
	UserID   *int64
	Kinds    []TransactionKind
	Statuses []TransactionStatus
	From     *time.Time
	Until    *time.Time
	Limit    int // default 50
	Offset   int
	Desc     bool
}
