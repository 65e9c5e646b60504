package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nimasrn/sms-credits/internal/model"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/msisdn"
)

const pathMessaging = "/version1/messaging"

type SMSConfig struct {
	Username string
	APIKey   string
	SenderID string
}

type SendResult struct {
	Message    string
	Recipients []model.RecipientResult
}

// SMSClient talks to an Africa's Talking compatible bulk SMS API.
type SMSClient struct {
	pool *Pool
	cfg  SMSConfig
}

func NewSMSClient(pool *Pool, cfg SMSConfig) *SMSClient {
	return &SMSClient{pool: pool, cfg: cfg}
}

// Send submits one body to all recipients in a single request. Recipients
// are 254XXXXXXXXX numbers and come back in the same form.
func (c *SMSClient) Send(ctx context.Context, recipients []string, body string) (*SendResult, error) {
	to := make([]string, len(recipients))
	for i, r := range recipients {
		to[i] = msisdn.International(r)
	}

	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("to", strings.Join(to, ","))
	form.Set("message", body)
	if c.cfg.SenderID != "" {
		form.Set("from", c.cfg.SenderID)
	}

	raw, err := c.pool.Do(ctx, &Request{
		Method:      "POST",
		Path:        pathMessaging,
		ContentType: "application/x-www-form-urlencoded",
		Headers: map[string]string{
			"apiKey": c.cfg.APIKey,
			"Accept": "application/json",
		},
		Body: []byte(form.Encode()),
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		SMSMessageData struct {
			Message    string `json:"Message"`
			Recipients []struct {
				StatusCode int    `json:"statusCode"`
				Number     string `json:"number"`
				Status     string `json:"status"`
				Cost       string `json:"cost"`
				MessageID  string `json:"messageId"`
			} `json:"Recipients"`
		} `json:"SMSMessageData"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode sms response: %v", ErrUpstream, err)
	}

	result := &SendResult{
		Message:    resp.SMSMessageData.Message,
		Recipients: make([]model.RecipientResult, 0, len(resp.SMSMessageData.Recipients)),
	}
	for _, r := range resp.SMSMessageData.Recipients {
		result.Recipients = append(result.Recipients, model.RecipientResult{
			Number:     strings.TrimPrefix(r.Number, "+"),
			Status:     model.NormalizeDeliveryStatus(r.Status),
			MessageID:  r.MessageID,
			Cost:       r.Cost,
			StatusCode: r.StatusCode,
		})
	}

	logger.Info("sms batch submitted", "recipients", len(recipients), "provider_message", result.Message)
	return result, nil
}
