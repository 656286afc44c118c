package models

import "time"

type MonitorStatus string

const (
	MonitorActive MonitorStatus = "active"
	MonitorPaused MonitorStatus = "paused"
	MonitorError  MonitorStatus = "error"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Monitor is a user's watch on one (URL, keyword) pair.
// Timestamps and failure state are mutated only by the check executor;
// url/keyword/interval/paused-status only by user edits.
type Monitor struct {
	ID                string        `json:"id"`
	OwnerID           string        `json:"owner_id"`
	URL               string        `json:"url"`
	Keyword           string        `json:"keyword"`
	CheckIntervalDays int           `json:"check_interval_days"`
	Status            MonitorStatus `json:"status"`
	LastCheckedAt     *time.Time    `json:"last_checked_at"`
	LastFoundAt       *time.Time    `json:"last_found_at"`
	ConsecutiveFails  int           `json:"consecutive_fails"`
	AlertChannels     []Channel     `json:"alert_channels"`
	ContactEmail      string        `json:"contact_email,omitempty"`
	ContactPhone      string        `json:"contact_phone,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	ClaimedUntil      *time.Time    `json:"-"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// NeedsCheck reports whether the monitor is due at the given instant.
func (m *Monitor) NeedsCheck(now time.Time) bool {
	if m.Status != MonitorActive {
		return false
	}
	if m.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(m.CheckIntervalDays) * 24 * time.Hour
	return now.Sub(*m.LastCheckedAt) >= interval
}

// Claimed reports whether an unexpired lease is held on the monitor.
func (m *Monitor) Claimed(now time.Time) bool {
	return m.ClaimedUntil != nil && m.ClaimedUntil.After(now)
}

// HasChannel reports whether the given alert channel is configured.
func (m *Monitor) HasChannel(ch Channel) bool {
	for _, c := range m.AlertChannels {
		if c == ch {
			return true
		}
	}
	return false
}
