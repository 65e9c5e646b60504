package model

import "time"

type DeliveryReport struct {
	ID            int64      `json:"id"`
	MessageID     int64      `json:"message_id"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DeliveryReportRequest is what the provider posts back once a message
// reaches, or fails to reach, the handset.
type DeliveryReportRequest struct {
	ProviderMessageID string
	Status            string
	FailureReason     string
}
