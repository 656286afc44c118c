// Package notify implements the delivery backends for monitor alerts.
package notify

import (
	"context"

	"kwatch/internal/models"
	"kwatch/internal/structures"
)

// ChannelSender delivers one alert over one channel. Implementations report
// delivery failure through the returned error; retry and cooldown policy
// live with the dispatcher, not here.
type ChannelSender interface {
	Channel() models.Channel
	Enabled() bool
	Send(ctx context.Context, n *models.Notification) error
}

// BuildSenders constructs one sender per supported channel. Disabled
// channels still get a sender so the dispatcher can record the skip.
func BuildSenders(conf *structures.Config) []ChannelSender {
	return []ChannelSender{
		NewEmailSender(conf.Notifier.Email),
		NewSMSSender(conf.Notifier.SMS),
		NewInAppSender(),
	}
}
