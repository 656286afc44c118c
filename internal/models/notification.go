package models

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Notification is a decision to alert a user about a specific CheckResult
// over one channel. The dispatcher enforces at most one per
// (monitor, channel) within the cooldown window.
type Notification struct {
	ID            string         `json:"id"`
	MonitorID     string         `json:"monitor_id"`
	CheckResultID string         `json:"check_result_id"`
	Channel       Channel        `json:"channel"`
	Status        DeliveryStatus `json:"status"`
	Subject       string         `json:"subject"`
	Message       string         `json:"message"`
	Recipient     string         `json:"recipient"`
	FailReason    string         `json:"fail_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	SentAt        *time.Time     `json:"sent_at"`
}
