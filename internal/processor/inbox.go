package processor

import (
	"context"
	"fmt"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// Inbox parks callbacks that could not be reconciled inline so the
// processor can replay them.
type Inbox struct {
	publisher Publisher
}

func NewInbox(publisher Publisher) *Inbox {
	return &Inbox{publisher: publisher}
}

func (i *Inbox) Defer(ctx context.Context, res *model.CallbackResult, reason error) error {
	meta := map[string]string{"reference": res.Reference}
	if reason != nil {
		meta["reason"] = reason.Error()
	}

	id, err := i.publisher.PublishJSON(ctx, res, meta)
	if err != nil {
		return fmt.Errorf("defer callback %s: %w", res.Reference, err)
	}

	logger.Info("callback deferred to inbox", "reference", res.Reference, "entry", id, "reason", reason)
	return nil
}
