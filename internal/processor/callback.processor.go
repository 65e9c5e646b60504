package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/internal/queue"
	"github.com/nimasrn/sms-credits/internal/services"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type Reconciler interface {
	Reconcile(ctx context.Context, res *model.CallbackResult) (model.ReconcileOutcome, error)
}

// CallbackProcessor replays deferred callbacks through the same
// reconciliation path the HTTP handler uses.
type CallbackProcessor struct {
	reconciler  Reconciler
	idempotency *IdempotencyService
}

func NewCallbackProcessor(reconciler Reconciler, idempotency *IdempotencyService) *CallbackProcessor {
	return &CallbackProcessor{
		reconciler:  reconciler,
		idempotency: idempotency,
	}
}

func (p *CallbackProcessor) GetType() string {
	return "callback"
}

func (p *CallbackProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var res model.CallbackResult
	if err := json.Unmarshal(msg.Data, &res); err != nil || res.Reference == "" {
		// replaying garbage never helps
		logger.Error("dropping undecodable inbox entry", "entry", msg.ID, "error", err)
		return nil
	}

	pc, err := p.idempotency.AcquireProcessingLock(ctx, res.Reference)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("callback already reconciled", "reference", res.Reference)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("giving up on deferred callback, sweeper will settle it",
			"reference", res.Reference, "error", err)
		return nil
	case err != nil:
		return err
	}

	outcome, err := p.reconciler.Reconcile(ctx, &res)
	if err != nil {
		if errors.Is(err, services.ErrMalformedCallback) {
			_ = p.idempotency.ReleaseLock(ctx, pc)
			logger.Error("dropping malformed deferred callback", "reference", res.Reference, "error", err)
			return nil
		}
		if markErr := p.idempotency.MarkFailure(ctx, pc, err); markErr != nil {
			logger.Warn("failed to record callback failure", "reference", res.Reference, "error", markErr)
		}
		return err
	}

	if err := p.idempotency.MarkSuccess(ctx, pc); err != nil {
		logger.Warn("failed to mark callback processed", "reference", res.Reference, "error", err)
	}

	logger.Info("deferred callback reconciled",
		"reference", res.Reference,
		"outcome", outcome,
		"attempts", msg.Attempts,
		"is_retry", pc.IsRetry)
	return nil
}
