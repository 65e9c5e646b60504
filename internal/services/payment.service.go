package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/msisdn"
	"github.com/nimasrn/sms-credits/pkg/prom"
	"github.com/shopspring/decimal"
)

const (
	descInitiationFailed = "gateway initiation failed"
	descExpired          = "expired by sweeper"
	resultCodeExpired    = -1
)

type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Get(ctx context.Context, userID int64) (*model.User, error)
	GetCredits(ctx context.Context, userID int64) (uint, error)
	Grant(ctx context.Context, userID int64, amount uint) error
	SpendIfAvailable(ctx context.Context, userID int64, amount uint) error
	SetPlan(ctx context.Context, userID int64, planID int64) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	AttachReference(ctx context.Context, id int64, reference string) error
	FailUnreferenced(ctx context.Context, id int64, desc string) (bool, error)
	Transition(ctx context.Context, reference string, status model.TransactionStatus, resultCode *int, resultDesc string, metadata map[string]any) (bool, error)
	GetByReference(ctx context.Context, reference string) (*model.Transaction, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
	ListPending(ctx context.Context, createdBefore time.Time, limit int) ([]*model.Transaction, error)
}

type PlanCatalog interface {
	Get(ctx context.Context, planID int64) (*model.Plan, error)
}

type PaymentGateway interface {
	Initiate(ctx context.Context, req gateway.StkPushRequest) (*gateway.StkPushResponse, error)
	Query(ctx context.Context, checkoutRequestID string) (*gateway.StkQueryResult, error)
}

type PaymentConfig struct {
	// RechargeCreditsPerUnit is how many credits one KES of a recharge buys.
	RechargeCreditsPerUnit uint
	SweepGracePeriod       time.Duration
	SweepExpireAfter       time.Duration
	SweepBatchSize         int
}

type PaymentService struct {
	db           Transactor
	users        UserRepository
	transactions TransactionRepository
	plans        PlanCatalog
	gateway      PaymentGateway
	cfg          PaymentConfig
	now          func() time.Time
}

func NewPaymentService(db Transactor, users UserRepository, transactions TransactionRepository, plans PlanCatalog, gw PaymentGateway, cfg PaymentConfig) *PaymentService {
	if cfg.RechargeCreditsPerUnit == 0 {
		cfg.RechargeCreditsPerUnit = 1
	}
	if cfg.SweepGracePeriod <= 0 {
		cfg.SweepGracePeriod = 10 * time.Minute
	}
	if cfg.SweepExpireAfter <= 0 {
		cfg.SweepExpireAfter = 24 * time.Hour
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &PaymentService{
		db:           db,
		users:        users,
		transactions: transactions,
		plans:        plans,
		gateway:      gw,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Initiate records a PENDING payment and sends the STK push. The row is
// written before the gateway call but only becomes visible once the
// checkout id is attached; if the gateway fails the row is failed and the
// caller gets ErrUpstream without a reference.
func (s *PaymentService) Initiate(ctx context.Context, req model.PaymentInitiateRequest) (*model.Transaction, error) {
	phone, err := msisdn.Normalize(req.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}

	txn := &model.Transaction{
		UserID: req.UserID,
		Status: model.TransactionStatusPending,
		Phone:  phone,
	}
	description := "Recharge"

	switch {
	case req.PlanID != nil && req.Amount > 0:
		return nil, ErrPlanOrAmount
	case req.PlanID != nil:
		plan, err := s.plans.Get(ctx, *req.PlanID)
		if err != nil {
			return nil, translate(err)
		}
		txn.Kind = model.TransactionKindSubscription
		txn.PlanID = &plan.ID
		txn.Amount = plan.Price
		txn.Credits = plan.Credits
		txn.AccountReference = fmt.Sprintf("Plan_%d_%d", plan.ID, req.UserID)
		description = plan.Name
	case req.Amount > 0:
		txn.Kind = model.TransactionKindRecharge
		txn.Amount = req.Amount
		txn.Credits = req.Amount * s.cfg.RechargeCreditsPerUnit
		txn.AccountReference = fmt.Sprintf("Recharge_%d", req.UserID)
	default:
		return nil, ErrInvalidAmount
	}

	if _, err := s.users.Get(ctx, req.UserID); err != nil {
		return nil, translate(err)
	}

	var created *model.Transaction
	err = retryTransient(ctx, "create payment", func(ctx context.Context) error {
		var err error
		created, err = s.transactions.Create(ctx, txn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	resp, err := s.gateway.Initiate(ctx, gateway.StkPushRequest{
		Phone:            phone,
		Amount:           txn.Amount,
		AccountReference: txn.AccountReference,
		Description:      description,
	})
	if err != nil {
		logger.Error("stk push failed", "transaction_id", created.ID, "user_id", req.UserID, "error", err)
		s.failUnreferenced(ctx, created.ID)
		prom.PaymentInitiated(string(txn.Kind), "gateway_error")
		return nil, upstream("initiate payment", err)
	}

	err = retryTransient(ctx, "attach reference", func(ctx context.Context) error {
		return s.transactions.AttachReference(ctx, created.ID, resp.CheckoutRequestID)
	})
	if err != nil {
		// the push went out but nobody can poll for it; the sweeper and the
		// gateway will never match this row
		logger.Error("failed to attach checkout id", "transaction_id", created.ID, "reference", resp.CheckoutRequestID, "error", err)
		s.failUnreferenced(ctx, created.ID)
		prom.PaymentInitiated(string(txn.Kind), "store_error")
		return nil, fmt.Errorf("attach reference: %w", translate(err))
	}

	reference := resp.CheckoutRequestID
	created.ExternalReference = &reference
	prom.PaymentInitiated(string(txn.Kind), "ok")
	logger.Info("payment initiated", "reference", reference, "user_id", req.UserID, "kind", txn.Kind, "amount", txn.Amount)
	return created, nil
}

func (s *PaymentService) failUnreferenced(ctx context.Context, id int64) {
	err := retryTransient(ctx, "fail payment", func(ctx context.Context) error {
		_, err := s.transactions.FailUnreferenced(ctx, id, descInitiationFailed)
		return err
	})
	if err != nil {
		logger.Error("failed to mark payment failed", "transaction_id", id, "error", err)
	}
}

// Reconcile applies a gateway result to the payment it references, exactly
// once. The PENDING check and the status write are a single conditional
// UPDATE and the credit grant runs in the same transaction, so concurrent or
// repeated deliveries of one result grant credits once and report
// ReconcileDuplicate for the rest.
func (s *PaymentService) Reconcile(ctx context.Context, res *model.CallbackResult) (model.ReconcileOutcome, error) {
	if res == nil || res.Reference == "" {
		return "", ErrMalformedCallback
	}

	var (
		outcome model.ReconcileOutcome
		granted uint
	)
	err := retryTransient(ctx, "reconcile", func(ctx context.Context) error {
		granted = 0
		return s.db.WithinTransaction(ctx, func(ctx context.Context) error {
			code := res.ResultCode
			moved, err := s.transactions.Transition(ctx, res.Reference, res.Status(), &code, res.ResultDesc, res.Metadata)
			if err != nil {
				return err
			}

			txn, err := s.transactions.GetByReference(ctx, res.Reference)
			if err != nil {
				if errors.Is(translate(err), ErrTransactionNotFound) {
					return ErrUnknownReference
				}
				return err
			}
			if !moved {
				outcome = model.ReconcileDuplicate
				return nil
			}
			outcome = model.ReconcileApplied

			if !res.Paid() {
				return nil
			}
			if res.Amount != nil && !res.Amount.Equal(decimal.NewFromInt(int64(txn.Amount))) {
				logger.Warn("paid amount differs from requested amount", "reference", res.Reference, "requested", txn.Amount, "paid", res.Amount.String())
			}
			if txn.Credits > 0 {
				if err := s.users.Grant(ctx, txn.UserID, txn.Credits); err != nil {
					return err
				}
				granted = txn.Credits
			}
			if txn.PlanID != nil {
				if err := s.users.SetPlan(ctx, txn.UserID, *txn.PlanID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			logger.Info("callback for unknown reference", "reference", res.Reference, "result_code", res.ResultCode)
			prom.CallbackReconciled("unknown")
			return "", ErrUnknownReference
		}
		logger.Error("reconcile failed", "reference", res.Reference, "error", err)
		prom.CallbackReconciled("error")
		return "", translate(err)
	}

	prom.CallbackReconciled(string(outcome))
	if outcome == model.ReconcileDuplicate {
		logger.Info("duplicate callback ignored", "reference", res.Reference, "result_code", res.ResultCode)
		return outcome, nil
	}
	if granted > 0 {
		prom.CreditsGranted(granted)
	}
	logger.Info("payment reconciled", "reference", res.Reference, "status", res.Status(), "credits", granted)
	return outcome, nil
}

// QueryStatus reads the state of a payment. A reference owned by another
// user is reported as not found.
func (s *PaymentService) QueryStatus(ctx context.Context, userID int64, reference string) (*model.Transaction, error) {
	if reference == "" {
		return nil, ErrMissingReference
	}
	var txn *model.Transaction
	err := retryTransient(ctx, "query status", func(ctx context.Context) error {
		var err error
		txn, err = s.transactions.GetByReference(ctx, reference)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	if txn.UserID != userID {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// History lists a user's payments and deductions.
func (s *PaymentService) History(ctx context.Context, userID int64, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	f.UserID = &userID
	return s.transactions.List(ctx, f)
}

type SweepStats struct {
	Checked   int
	Succeeded int
	Failed    int
	Pending   int
}

// Sweep settles payments left PENDING past the grace period. Each one is
// queried at the gateway and the answer goes through Reconcile, so a
// callback arriving at the same time is still applied once. Payments the
// gateway cannot settle are expired as FAILED after SweepExpireAfter.
func (s *PaymentService) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now()

	pending, err := s.transactions.ListPending(ctx, now.Add(-s.cfg.SweepGracePeriod), s.cfg.SweepBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list pending: %w", err)
	}

	for _, txn := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++

		if txn.ExternalReference == nil {
			s.failUnreferenced(ctx, txn.ID)
			prom.SweeperTransition(string(model.TransactionStatusFailed))
			stats.Failed++
			continue
		}

		reference := *txn.ExternalReference
		res, err := s.gateway.Query(ctx, reference)
		var result *model.CallbackResult
		switch {
		case err == nil:
			result = model.NewCallbackResult(reference, res.ResultCode, res.ResultDesc)
		case now.Sub(txn.CreatedAt) >= s.cfg.SweepExpireAfter:
			result = model.NewCallbackResult(reference, resultCodeExpired, descExpired)
		default:
			if !errors.Is(err, gateway.ErrQueryPending) {
				logger.Warn("sweeper query failed", "reference", reference, "error", err)
			}
			stats.Pending++
			continue
		}

		outcome, err := s.Reconcile(ctx, result)
		if err != nil {
			logger.Error("sweeper reconcile failed", "reference", reference, "error", err)
			stats.Pending++
			continue
		}
		if outcome != model.ReconcileApplied {
			continue
		}
		prom.SweeperTransition(string(result.Status()))
		logger.Info("sweeper settled payment", "reference", reference, "status", result.Status(), "result_code", result.ResultCode)
		if result.Paid() {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats, nil
}
