package main

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const (
	resultCancelled      = 1032
	descCancelled        = "Request cancelled by user"
	descProcessed        = "The service request is processed successfully."
	errorStillProcessing = "500.001.1001"
)

// Options controls how the sandbox behaves. SuccessRate applies to both
// STK pushes and SMS recipients.
type Options struct {
	SuccessRate        float64
	CallbackDelay      time.Duration
	DuplicateCallbacks int
	DeliveryReportURL  string
	DeliveryDelay      time.Duration
}

type stkPush struct {
	merchantID  string
	checkoutID  string
	amount      int64
	phone       string
	callbackURL string
	settled     bool
	resultCode  int
	resultDesc  string
	receipt     string
}

// Sandbox stands in for the payment and messaging providers in local runs.
// It answers STK pushes, later posts their callbacks, and answers bulk sends
// with per recipient results followed by delivery reports.
type Sandbox struct {
	mu     sync.Mutex
	opts   Options
	rng    *rand.Rand
	pushes map[string]*stkPush
	client *fasthttp.Client
	now    func() time.Time
}

func NewSandbox(opts Options) *Sandbox {
	if opts.DuplicateCallbacks < 0 {
		opts.DuplicateCallbacks = 0
	}
	return &Sandbox{
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		pushes: make(map[string]*stkPush),
		client: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (s *Sandbox) succeed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.opts.SuccessRate
}

func (s *Sandbox) options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Sandbox) newPush(amount int64, phone, callbackURL string) *stkPush {
	push := &stkPush{
		merchantID:  "29115-" + shortID(),
		checkoutID:  "ws_CO_" + s.now().Format("02012006150405") + shortID(),
		amount:      amount,
		phone:       phone,
		callbackURL: callbackURL,
	}
	s.mu.Lock()
	s.pushes[push.checkoutID] = push
	s.mu.Unlock()
	return push
}

func (s *Sandbox) lookup(checkoutID string) (stkPush, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	push, ok := s.pushes[checkoutID]
	if !ok {
		return stkPush{}, false
	}
	return *push, true
}

// settle decides the outcome of a push once. Later calls keep the first
// outcome so duplicate callbacks carry the same result.
func (s *Sandbox) settle(checkoutID string) (stkPush, bool) {
	ok := s.succeed()

	s.mu.Lock()
	defer s.mu.Unlock()
	push, found := s.pushes[checkoutID]
	if !found {
		return stkPush{}, false
	}
	if !push.settled {
		push.settled = true
		if ok {
			push.resultDesc = descProcessed
			push.receipt = strings.ToUpper(shortID() + shortID())[:10]
		} else {
			push.resultCode = resultCancelled
			push.resultDesc = descCancelled
		}
	}
	return *push, true
}

// scheduleCallback posts the callback after the configured delay, plus
// DuplicateCallbacks replays of the same body.
func (s *Sandbox) scheduleCallback(checkoutID string) {
	opts := s.options()
	time.AfterFunc(opts.CallbackDelay, func() {
		push, ok := s.settle(checkoutID)
		if !ok || push.callbackURL == "" {
			return
		}
		body, err := json.Marshal(callbackBody(push, s.now()))
		if err != nil {
			log.Error().Err(err).Str("checkout_request_id", checkoutID).Msg("encode callback")
			return
		}
		for i := 0; i <= opts.DuplicateCallbacks; i++ {
			s.post(push.callbackURL, "application/json", body, "callback")
		}
	})
}

func (s *Sandbox) post(target, contentType string, body []byte, kind string) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.SetBody(body)

	if err := s.client.Do(req, resp); err != nil {
		log.Warn().Err(err).Str("kind", kind).Str("url", target).Msg("post failed")
		return
	}
	log.Info().
		Str("kind", kind).
		Str("url", target).
		Int("status", resp.StatusCode()).
		Bytes("response", resp.Body()).
		Msg("posted")
}

type callbackItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value"`
}

func callbackBody(push stkPush, at time.Time) map[string]any {
	stk := map[string]any{
		"MerchantRequestID": push.merchantID,
		"CheckoutRequestID": push.checkoutID,
		"ResultCode":        push.resultCode,
		"ResultDesc":        push.resultDesc,
	}
	if push.resultCode == 0 {
		date, _ := strconv.ParseInt(at.Format("20060102150405"), 10, 64)
		stk["CallbackMetadata"] = map[string]any{
			"Item": []callbackItem{
				{Name: "Amount", Value: push.amount},
				{Name: "MpesaReceiptNumber", Value: push.receipt},
				{Name: "TransactionDate", Value: date},
				{Name: "PhoneNumber", Value: push.phone},
			},
		}
	}
	return map[string]any{"Body": map[string]any{"stkCallback": stk}}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
