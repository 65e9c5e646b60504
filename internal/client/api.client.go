package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/valyala/fasthttp"
)

var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == fasthttp.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Dial    fasthttp.DialFunc
}

// APIClient talks to the public HTTP API with a bearer token.
type APIClient struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *fasthttp.Client
}

func NewAPIClient(cfg Config) *APIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: cfg.Timeout,
		http: &fasthttp.Client{
			Name:         "sms-credits-client",
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			Dial:         cfg.Dial,
		},
	}
}

type PaymentRequest struct {
	PlanID *int64 `json:"planId,omitempty"`
	Amount uint   `json:"amount,omitempty"`
	Phone  string `json:"phone"`
}

type Payment struct {
	Reference string                  `json:"reference"`
	Status    model.TransactionStatus `json:"status"`
}

func (c *APIClient) InitiatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, fasthttp.MethodPost, "/payments", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) PaymentStatus(ctx context.Context, reference string) (model.TransactionStatus, error) {
	var out Payment
	if err := c.do(ctx, fasthttp.MethodGet, "/payments/"+url.PathEscape(reference), nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *APIClient) Credits(ctx context.Context) (uint, error) {
	var out struct {
		Credits uint `json:"credits"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/credits", nil, &out); err != nil {
		return 0, err
	}
	return out.Credits, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if status := resp.StatusCode(); status < 200 || status > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &e)
		if e.Error == "" {
			e.Error = fasthttp.StatusMessage(status)
		}
		return &APIError{StatusCode: status, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}
