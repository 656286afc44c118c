package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kwatch/internal/models"
	"kwatch/internal/notify"
	"kwatch/internal/providers"
	"kwatch/internal/storage"
	"kwatch/internal/structures"
)

// DispatcherInterface fans a match out to the monitor's configured alert
// channels. Each channel is handled independently: a failure or cooldown on
// one never blocks the others.
type DispatcherInterface interface {
	Notify(ctx context.Context, monitor *models.Monitor, result *models.CheckResult) []*models.Notification
}

type NotificationDispatcher struct {
	store    storage.Store
	senders  map[models.Channel]notify.ChannelSender
	cooldown time.Duration
	logger   providers.Logger
	metrics  providers.MetricsProviderInterface
	now      func() time.Time
}

func NewNotificationDispatcher(conf *structures.Config, store storage.Store,
	senders []notify.ChannelSender, logger providers.Logger,
	metrics providers.MetricsProviderInterface) DispatcherInterface {
	byChannel := make(map[models.Channel]notify.ChannelSender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	return &NotificationDispatcher{
		store:    store,
		senders:  byChannel,
		cooldown: conf.Notifier.Cooldown,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Notify dispatches one alert per configured channel, skipping channels
// still inside their cooldown window. Returns the notifications it
// persisted, in channel order.
func (nd *NotificationDispatcher) Notify(ctx context.Context, monitor *models.Monitor, result *models.CheckResult) []*models.Notification {
	var sent []*models.Notification
	for _, ch := range monitor.AlertChannels {
		n, err := nd.dispatchChannel(ctx, monitor, result, ch)
		if err != nil {
			nd.logger.Errorf(providers.TypeNotify, "Dispatch on %s for monitor %s failed: %s",
				ch, monitor.ID, err)
			continue
		}
		if n != nil {
			sent = append(sent, n)
		}
	}
	return sent
}

func (nd *NotificationDispatcher) dispatchChannel(ctx context.Context, monitor *models.Monitor,
	result *models.CheckResult, ch models.Channel) (*models.Notification, error) {
	sender, ok := nd.senders[ch]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel %q", ch)
	}

	inCooldown, err := nd.withinCooldown(ctx, monitor.ID, ch)
	if err != nil {
		return nil, err
	}
	if inCooldown {
		nd.metrics.IncNotificationsSuppressed(string(ch))
		nd.logger.Debugf(providers.TypeNotify, "Cooldown active on %s for monitor %s, alert suppressed",
			ch, monitor.ID)
		return nil, nil
	}

	n := &models.Notification{
		ID:            models.NewID("ntf"),
		MonitorID:     monitor.ID,
		CheckResultID: result.ID,
		Channel:       ch,
		Status:        models.DeliveryPending,
		Subject:       fmt.Sprintf("Alert: %q found on %s", monitor.Keyword, monitor.URL),
		Message:       buildMessage(monitor, result),
		Recipient:     recipientFor(monitor, ch),
		CreatedAt:     nd.now().UTC(),
	}
	if err := nd.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persisting notification: %w", err)
	}

	if !sender.Enabled() {
		return nd.markFailed(ctx, n, "channel is disabled")
	}
	if err := sender.Send(ctx, n); err != nil {
		return nd.markFailed(ctx, n, err.Error())
	}

	sentAt := nd.now().UTC()
	n.Status = models.DeliverySent
	n.SentAt = &sentAt
	if err := nd.store.SetNotificationStatus(ctx, n.ID, models.DeliverySent, "", &sentAt); err != nil {
		return nil, fmt.Errorf("marking notification sent: %w", err)
	}
	nd.metrics.IncNotificationsTotal(string(ch), string(models.DeliverySent))
	nd.logger.Infof(providers.TypeNotify, "Alert %s delivered on %s for monitor %s",
		n.ID, ch, monitor.ID)
	return n, nil
}

// withinCooldown reports whether a pending or sent notification exists for
// the pair inside the cooldown window. Failed deliveries do not start a
// cooldown, so a broken channel is retried on the next match.
func (nd *NotificationDispatcher) withinCooldown(ctx context.Context, monitorID string, ch models.Channel) (bool, error) {
	last, err := nd.store.LatestNotification(ctx, monitorID, ch)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if last.Status == models.DeliveryFailed {
		return false, nil
	}
	return nd.now().Sub(last.CreatedAt) < nd.cooldown, nil
}

func (nd *NotificationDispatcher) markFailed(ctx context.Context, n *models.Notification, reason string) (*models.Notification, error) {
	n.Status = models.DeliveryFailed
	n.FailReason = reason
	if err := nd.store.SetNotificationStatus(ctx, n.ID, models.DeliveryFailed, reason, nil); err != nil {
		return nil, fmt.Errorf("marking notification failed: %w", err)
	}
	nd.metrics.IncNotificationsTotal(string(n.Channel), string(models.DeliveryFailed))
	nd.logger.Warnf(providers.TypeNotify, "Alert %s on %s failed: %s", n.ID, n.Channel, reason)
	return n, nil
}

func recipientFor(monitor *models.Monitor, ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return monitor.ContactEmail
	case models.ChannelSMS:
		return monitor.ContactPhone
	default:
		return monitor.OwnerID
	}
}

func buildMessage(monitor *models.Monitor, result *models.CheckResult) string {
	msg := fmt.Sprintf("The keyword %q appeared %d time(s) on %s.",
		monitor.Keyword, result.MatchCount, monitor.URL)
	if result.PageTitle != "" {
		msg += fmt.Sprintf("\nPage: %s", result.PageTitle)
	}
	if result.PageExcerpt != "" {
		msg += fmt.Sprintf("\nContext: %s", result.PageExcerpt)
	}
	return msg
}
