package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nimasrn/sms-credits/pkg/logger"
)

const (
	pathOAuth    = "/oauth/v1/generate?grant_type=client_credentials"
	pathStkPush  = "/mpesa/stkpush/v1/processrequest"
	pathStkQuery = "/mpesa/stkpushquery/v1/query"

	tokenCacheKey   = "mpesa:access_token"
	tokenSafetyTime = 60 * time.Second

	// Daraja answers a query for an STK push the payer has not acted on yet
	// with HTTP 500 and this error code.
	errorCodeStillProcessing = "500.001.1001"
)

var (
	// ErrQueryPending means the payer has not completed or declined yet.
	ErrQueryPending = errors.New("stk push still being processed")

	eat = time.FixedZone("EAT", 3*60*60)
)

type MpesaConfig struct {
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
}

// TokenCache keeps the OAuth token between calls and across instances.
// redis.RedisAdapter satisfies it.
type TokenCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type StkPushRequest struct {
	Phone            string
	Amount           uint
	AccountReference string
	Description      string
}

type StkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type StkQueryResult struct {
	ResultCode int
	ResultDesc string
}

type MpesaClient struct {
	pool   *Pool
	cfg    MpesaConfig
	tokens TokenCache
	now    func() time.Time
}

func NewMpesaClient(pool *Pool, cfg MpesaConfig, tokens TokenCache) *MpesaClient {
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	return &MpesaClient{
		pool:   pool,
		cfg:    cfg,
		tokens: tokens,
		now:    time.Now,
	}
}

// Initiate sends an STK push to the payer's phone. A returned
// CheckoutRequestID is the reference the callback will carry.
func (c *MpesaClient) Initiate(ctx context.Context, req StkPushRequest) (*StkPushResponse, error) {
	timestamp := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   c.cfg.TransactionType,
		"Amount":            req.Amount,
		"PartyA":            req.Phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       req.Phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	body, err := c.call(ctx, pathStkPush, payload)
	if err != nil {
		return nil, err
	}

	var resp StkPushResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode stk push response: %v", ErrUpstream, err)
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: stk push rejected: code=%s desc=%s", ErrUpstream, resp.ResponseCode, resp.ResponseDescription)
	}

	logger.Info("stk push accepted", "checkout_request_id", resp.CheckoutRequestID, "account_reference", req.AccountReference)
	return &resp, nil
}

// Query asks the gateway for the outcome of an STK push. ErrQueryPending is
// returned while the payer has not acted on the prompt.
func (c *MpesaClient) Query(ctx context.Context, checkoutRequestID string) (*StkQueryResult, error) {
	timestamp := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	body, err := c.call(ctx, pathStkQuery, payload)
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && strings.Contains(upstream.Body, errorCodeStillProcessing) {
			return nil, ErrQueryPending
		}
		return nil, err
	}

	var resp struct {
		ResponseCode string          `json:"ResponseCode"`
		ResultCode   json.RawMessage `json:"ResultCode"`
		ResultDesc   string          `json:"ResultDesc"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode stk query response: %v", ErrUpstream, err)
	}
	code, err := parseResultCode(resp.ResultCode)
	if err != nil {
		return nil, fmt.Errorf("%w: stk query without result code", ErrUpstream)
	}

	return &StkQueryResult{ResultCode: code, ResultDesc: resp.ResultDesc}, nil
}

func (c *MpesaClient) call(ctx context.Context, path string, payload any) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.pool.Do(ctx, &Request{
		Method:      "POST",
		Path:        path,
		ContentType: "application/json",
		Headers:     map[string]string{"Authorization": "Bearer " + token},
		Body:        raw,
	})
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.StatusCode == 401 {
			// next call fetches a fresh token
			_ = c.tokens.Del(ctx, tokenCacheKey)
		}
		return nil, err
	}
	return body, nil
}

func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	if cached, err := c.tokens.Get(ctx, tokenCacheKey); err == nil && len(cached) > 0 {
		return string(cached), nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	body, err := c.pool.Do(ctx, &Request{
		Method:  "GET",
		Path:    pathOAuth,
		Headers: map[string]string{"Authorization": "Basic " + basic},
	})
	if err != nil {
		return "", err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.AccessToken == "" {
		return "", fmt.Errorf("%w: invalid oauth response", ErrUpstream)
	}

	ttl := tokenSafetyTime
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil {
		ttl = time.Duration(secs)*time.Second - tokenSafetyTime
	}
	if ttl > 0 {
		if err := c.tokens.Set(ctx, tokenCacheKey, []byte(resp.AccessToken), ttl); err != nil {
			logger.Warn("failed to cache mpesa token", "error", err)
		}
	}
	return resp.AccessToken, nil
}

func (c *MpesaClient) timestamp() string {
	return c.now().In(eat).Format("20060102150405")
}

func (c *MpesaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

// parseResultCode accepts both 1032 and "1032".
func parseResultCode(raw json.RawMessage) (int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, errors.New("missing result code")
	}
	return strconv.Atoi(s)
}
