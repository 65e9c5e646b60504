package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/stretchr/testify/assert"
)

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	status model.TransactionStatus
	err    error
}

// PaymentStatus replays steps in order and repeats the last one.
func (f *scriptedFetcher) PaymentStatus(context.Context, string) (model.TransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	return f.steps[i].status, f.steps[i].err
}

func pending() step { return step{status: model.TransactionStatusPending} }

func TestPoller_Wait(t *testing.T) {
	cases := []struct {
		name    string
		steps   []step
		outcome Outcome
		status  model.TransactionStatus
		polls   int
	}{
		{
			name:    "succeeds after a few polls",
			steps:   []step{pending(), pending(), {status: model.TransactionStatusSuccess}},
			outcome: OutcomeSucceeded,
			status:  model.TransactionStatusSuccess,
			polls:   3,
		},
		{
			name:    "fails",
			steps:   []step{pending(), {status: model.TransactionStatusFailed}},
			outcome: OutcomeFailed,
			status:  model.TransactionStatusFailed,
			polls:   2,
		},
		{
			name:    "fetch errors do not stop polling",
			steps:   []step{{err: errors.New("connection reset")}, {err: errors.New("502")}, {status: model.TransactionStatusSuccess}},
			outcome: OutcomeSucceeded,
			status:  model.TransactionStatusSuccess,
			polls:   3,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &scriptedFetcher{steps: tc.steps}
			res := NewPoller(f, 5*time.Millisecond, 5*time.Second).Wait(context.Background(), "ws_CO_1")

			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.polls, res.Polls)
		})
	}
}

func TestPoller_TimeoutIsNotFailure(t *testing.T) {
	f := &scriptedFetcher{steps: []step{pending()}}
	var seen []model.TransactionStatus
	p := NewPoller(f, 5*time.Millisecond, 60*time.Millisecond)
	p.OnPoll = func(s model.TransactionStatus) { seen = append(seen, s) }

	res := p.Wait(context.Background(), "ws_CO_1")

	assert.Equal(t, OutcomeTimedOut, res.Outcome)
	assert.Equal(t, model.TransactionStatusPending, res.Status)
	assert.NotZero(t, res.Polls)
	assert.Len(t, seen, res.Polls)
}

func TestPoller_Cancelled(t *testing.T) {
	f := &scriptedFetcher{steps: []step{pending()}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan PollResult, 1)
	go func() { done <- NewPoller(f, 5*time.Millisecond, time.Minute).Wait(ctx, "ws_CO_1") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, OutcomeCancelled, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("poller ignored cancellation")
	}
}

func TestPoller_WaitsOneIntervalBeforeFirstPoll(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: model.TransactionStatusSuccess}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := NewPoller(f, time.Hour, time.Hour).Wait(ctx, "ws_CO_1")

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Equal(t, 0, res.Polls)
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&scriptedFetcher{}, 0, 0)
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, DefaultPollTimeout, p.timeout)
}
