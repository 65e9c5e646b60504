package model

import (
	"strings"
	"time"
)

// Delivery statuses reported by the provider on submission, plus the ones
// that arrive later through delivery reports.
const (
	DeliveryStatusSuccess   = "SUCCESS"
	DeliveryStatusSent      = "SENT"
	DeliveryStatusSubmitted = "SUBMITTED"
	DeliveryStatusBuffered  = "BUFFERED"
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusFailed    = "FAILED"
	DeliveryStatusUnknown   = "UNKNOWN"
)

var successfulStatuses = []string{
	DeliveryStatusSuccess,
	DeliveryStatusSent,
	DeliveryStatusSubmitted,
	DeliveryStatusBuffered,
	DeliveryStatusDelivered,
}

// SuccessfulDeliveryStatuses lists statuses counted as successful in stats.
func SuccessfulDeliveryStatuses() []string {
	return append([]string(nil), successfulStatuses...)
}

// NormalizeDeliveryStatus upper-cases provider statuses, so "Success" and
// "success" are stored the same way.
func NormalizeDeliveryStatus(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DeliveryStatusUnknown
	}
	return s
}

type Message struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	To                string    `json:"to"`
	Body              string    `json:"body"`
	DeliveryStatus    string    `json:"delivery_status"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Cost              string    `json:"cost,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}

// MessageFilter controls List queries.
type MessageFilter struct {
	UserID   *int64
	To       *string
	Statuses []string
	From     *time.Time
	Until    *time.Time
	Limit    int // default 50
	Offset   int
	Desc     bool // order by sent_at
}

type MessageStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
}

type DispatchRequest struct {
	UserID     int64
	Recipients []string
	Body       string
}

type RecipientResult struct {
	Number     string `json:"number"`
	Status     string `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	Cost       string `json:"cost,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

type DispatchResult struct {
	Results []RecipientResult `json:"results"`
	Charged uint              `json:"charged"`
	Credits uint              `json:"credits"`
}
