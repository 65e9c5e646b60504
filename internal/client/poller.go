package client

import (
	"context"
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 120 * time.Second
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	// OutcomeTimedOut means we stopped asking, not that the payment failed.
	// The callback or the sweeper may still settle it.
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

type StatusFetcher interface {
	PaymentStatus(ctx context.Context, reference string) (model.TransactionStatus, error)
}

type PollResult struct {
	Outcome Outcome
	// Status is the last status the server reported, empty if no poll
	// succeeded.
	Status model.TransactionStatus
	Polls  int
}

// Poller waits for a payment to reach a terminal status. The first request
// goes out one interval after Wait is called, giving the payer time to
// answer the prompt.
type Poller struct {
	fetcher  StatusFetcher
	interval time.Duration
	timeout  time.Duration
	// OnPoll, when set, sees every status the server reports.
	OnPoll func(status model.TransactionStatus)
}

func NewPoller(fetcher StatusFetcher, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
	}
}

// Wait polls until the payment is terminal, the timeout passes or ctx is
// cancelled. Fetch errors are logged and polling carries on.
func (p *Poller) Wait(ctx context.Context, reference string) PollResult {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	var res PollResult
	for {
		select {
		case <-ctx.Done():
			res.Outcome = OutcomeCancelled
			return res
		case <-deadline.C:
			logger.Info("stopped polling payment", "reference", reference, "polls", res.Polls, "last_status", res.Status)
			res.Outcome = OutcomeTimedOut
			return res
		case <-ticker.C:
		}

		res.Polls++
		status, err := p.fetcher.PaymentStatus(ctx, reference)
		if err != nil {
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
				return res
			}
			logger.Warn("payment status poll failed", "reference", reference, "error", err)
			continue
		}

		res.Status = status
		if p.OnPoll != nil {
			p.OnPoll(status)
		}
		switch status {
		case model.TransactionStatusSuccess:
			res.Outcome = OutcomeSucceeded
			return res
		case model.TransactionStatusFailed:
			res.Outcome = OutcomeFailed
			return res
		}
	}
}
