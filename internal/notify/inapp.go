package notify

import (
	"context"

	"kwatch/internal/models"
)

// InAppSender delivers alerts to the user's in-app inbox. The notification
// row itself is the inbox entry, so delivery has nothing left to do; the
// dispatcher persists the row and this sender acknowledges it.
type InAppSender struct{}

func NewInAppSender() *InAppSender { return &InAppSender{} }

func (s *InAppSender) Channel() models.Channel { return models.ChannelInApp }

func (s *InAppSender) Enabled() bool { return true }

func (s *InAppSender) Send(ctx context.Context, n *models.Notification) error {
	return nil
}
