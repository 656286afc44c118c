package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwatch/internal/models"
	"kwatch/internal/notify"
	"kwatch/internal/storage/sqlite"
	"kwatch/internal/structures"
	"kwatch/internal/testutil"
)

type dispatcherFixture struct {
	store      *sqlite.SQLiteStore
	dispatcher *NotificationDispatcher
	email      *testutil.MockSender
	sms        *testutil.MockSender
	inApp      *testutil.MockSender
	metrics    *testutil.MockMetrics
	clock      time.Time
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "kwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &dispatcherFixture{
		store:   store,
		email:   &testutil.MockSender{Ch: models.ChannelEmail},
		sms:     &testutil.MockSender{Ch: models.ChannelSMS},
		inApp:   &testutil.MockSender{Ch: models.ChannelInApp},
		metrics: testutil.NewMockMetrics(),
		clock:   time.Now().UTC(),
	}

	conf := &structures.Config{
		Notifier: structures.NotifierConfig{Cooldown: 24 * time.Hour},
	}
	d := NewNotificationDispatcher(conf, store,
		[]notify.ChannelSender{f.email, f.sms, f.inApp},
		&testutil.MockLogger{}, f.metrics).(*NotificationDispatcher)
	d.now = func() time.Time { return f.clock }
	f.dispatcher = d
	return f
}

func (f *dispatcherFixture) createMonitor(t *testing.T, channels ...models.Channel) *models.Monitor {
	t.Helper()
	now := f.clock
	m := &models.Monitor{
		ID:                models.NewID("mon"),
		OwnerID:           "usr_1",
		URL:               "https://example.com/page",
		Keyword:           "breach",
		CheckIntervalDays: 1,
		Status:            models.MonitorActive,
		AlertChannels:     channels,
		ContactEmail:      "user@example.com",
		ContactPhone:      "+15550100",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.store.CreateMonitor(context.Background(), m))
	return m
}

func checkResultFor(m *models.Monitor) *models.CheckResult {
	return &models.CheckResult{
		ID:         models.NewID("chk"),
		MonitorID:  m.ID,
		Outcome:    models.OutcomeMatchFound,
		MatchCount: 2,
		PageTitle:  "Paste #42",
	}
}

func TestDispatcherSendsOnEachConfiguredChannel(t *testing.T) {
	f := newDispatcherFixture(t)
	m := f.createMonitor(t, models.ChannelEmail, models.ChannelSMS)

	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 2)
	assert.Equal(t, 1, f.email.SentCount())
	assert.Equal(t, 1, f.sms.SentCount())
	assert.Equal(t, 0, f.inApp.SentCount())

	assert.Equal(t, "user@example.com", f.email.Delivered[0].Recipient)
	assert.Equal(t, "+15550100", f.sms.Delivered[0].Recipient)
	assert.Contains(t, f.email.Delivered[0].Subject, "breach")
	assert.Contains(t, f.email.Delivered[0].Subject, m.URL)

	notifications, err := f.store.ListNotifications(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, models.DeliverySent, n.Status)
		assert.NotNil(t, n.SentAt)
	}
}

func TestDispatcherCooldownSuppressesRepeats(t *testing.T) {
	f := newDispatcherFixture(t)
	m := f.createMonitor(t, models.ChannelEmail)

	first := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, first, 1)

	f.clock = f.clock.Add(time.Hour)
	second := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	assert.Empty(t, second)
	assert.Equal(t, 1, f.email.SentCount())
	assert.Equal(t, 1, f.metrics.NotificationsSuppressed["email"])
}

func TestDispatcherCooldownExpires(t *testing.T) {
	f := newDispatcherFixture(t)
	m := f.createMonitor(t, models.ChannelEmail)

	f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	f.clock = f.clock.Add(25 * time.Hour)
	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 1)
	assert.Equal(t, 2, f.email.SentCount())
}

func TestDispatcherChannelsCoolDownIndependently(t *testing.T) {
	f := newDispatcherFixture(t)
	m := f.createMonitor(t, models.ChannelEmail)

	f.dispatcher.Notify(context.Background(), m, checkResultFor(m))

	// Adding SMS later must not inherit the email cooldown.
	m.AlertChannels = []models.Channel{models.ChannelEmail, models.ChannelSMS}
	f.clock = f.clock.Add(time.Hour)
	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 1)
	assert.Equal(t, models.ChannelSMS, sent[0].Channel)
	assert.Equal(t, 1, f.email.SentCount())
	assert.Equal(t, 1, f.sms.SentCount())
}

func TestDispatcherRecordsDeliveryFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.email.Err = errors.New("smtp unreachable")
	m := f.createMonitor(t, models.ChannelEmail, models.ChannelInApp)

	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 2)

	notifications, err := f.store.ListNotifications(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	byChannel := map[models.Channel]*models.Notification{}
	for _, n := range notifications {
		byChannel[n.Channel] = n
	}
	assert.Equal(t, models.DeliveryFailed, byChannel[models.ChannelEmail].Status)
	assert.Equal(t, "smtp unreachable", byChannel[models.ChannelEmail].FailReason)
	assert.Equal(t, models.DeliverySent, byChannel[models.ChannelInApp].Status)
}

func TestDispatcherFailedDeliveryDoesNotStartCooldown(t *testing.T) {
	f := newDispatcherFixture(t)
	f.email.Err = errors.New("smtp unreachable")
	m := f.createMonitor(t, models.ChannelEmail)

	f.dispatcher.Notify(context.Background(), m, checkResultFor(m))

	f.email.Err = nil
	f.clock = f.clock.Add(time.Hour)
	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 1)
	assert.Equal(t, models.DeliverySent, sent[0].Status)
}

func TestDispatcherDisabledChannelMarkedFailed(t *testing.T) {
	f := newDispatcherFixture(t)
	f.sms.Disabled = true
	m := f.createMonitor(t, models.ChannelSMS)

	sent := f.dispatcher.Notify(context.Background(), m, checkResultFor(m))
	require.Len(t, sent, 1)
	assert.Equal(t, models.DeliveryFailed, sent[0].Status)
	assert.Equal(t, 0, f.sms.SentCount())
}
