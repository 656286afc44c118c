package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"kwatch/internal/models"
	"kwatch/internal/providers"
	"kwatch/internal/storage"
)

// MonitorServiceInterface is the user-facing monitor lifecycle: creation,
// listing, edits and status resets. Check execution is the scheduler's job.
type MonitorServiceInterface interface {
	Create(ctx context.Context, m *models.Monitor) (*models.Monitor, error)
	Get(ctx context.Context, id string) (*models.Monitor, error)
	List(ctx context.Context, ownerID string) ([]*models.Monitor, error)
	Update(ctx context.Context, m *models.Monitor) error
	// Reset moves an errored monitor back to active and clears its
	// failure count. Manual acknowledgement is the only way out of the
	// error status.
	Reset(ctx context.Context, id string) (*models.Monitor, error)
	Results(ctx context.Context, monitorID string, limit int) ([]*models.CheckResult, error)
	Notifications(ctx context.Context, monitorID string) ([]*models.Notification, error)
}

type MonitorService struct {
	store  storage.Store
	logger providers.Logger
}

func NewMonitorService(store storage.Store, logger providers.Logger) MonitorServiceInterface {
	return &MonitorService{store: store, logger: logger}
}

func validateMonitor(m *models.Monitor) error {
	u, err := url.Parse(m.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(m.Keyword) == "" {
		return fmt.Errorf("keyword must not be empty")
	}
	if m.CheckIntervalDays < 1 {
		return fmt.Errorf("check interval must be at least 1 day")
	}
	for _, ch := range m.AlertChannels {
		switch ch {
		case models.ChannelEmail, models.ChannelSMS, models.ChannelInApp:
		default:
			return fmt.Errorf("unknown alert channel %q", ch)
		}
	}
	return nil
}

func (ms *MonitorService) Create(ctx context.Context, m *models.Monitor) (*models.Monitor, error) {
	if err := validateMonitor(m); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	m.ID = models.NewID("mon")
	m.Status = models.MonitorActive
	m.LastCheckedAt = nil
	m.LastFoundAt = nil
	m.ConsecutiveFails = 0
	m.CreatedAt = now
	m.UpdatedAt = now
	if len(m.AlertChannels) == 0 {
		m.AlertChannels = []models.Channel{models.ChannelInApp}
	}
	if err := ms.store.CreateMonitor(ctx, m); err != nil {
		return nil, err
	}
	ms.logger.Infof(providers.TypeApp, "Created monitor %s for %q on %s", m.ID, m.Keyword, m.URL)
	return m, nil
}

func (ms *MonitorService) Get(ctx context.Context, id string) (*models.Monitor, error) {
	return ms.store.GetMonitor(ctx, id)
}

func (ms *MonitorService) List(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	return ms.store.ListMonitors(ctx, ownerID)
}

func (ms *MonitorService) Update(ctx context.Context, m *models.Monitor) error {
	if err := validateMonitor(m); err != nil {
		return err
	}
	return ms.store.UpdateMonitor(ctx, m)
}

func (ms *MonitorService) Reset(ctx context.Context, id string) (*models.Monitor, error) {
	m, err := ms.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Status = models.MonitorActive
	m.ConsecutiveFails = 0
	if err := ms.store.UpdateMonitor(ctx, m); err != nil {
		return nil, err
	}
	ms.logger.Infof(providers.TypeApp, "Monitor %s reset to active", id)
	return m, nil
}

func (ms *MonitorService) Results(ctx context.Context, monitorID string, limit int) ([]*models.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	return ms.store.ListCheckResults(ctx, monitorID, limit)
}

func (ms *MonitorService) Notifications(ctx context.Context, monitorID string) ([]*models.Notification, error) {
	return ms.store.ListNotifications(ctx, monitorID)
}
