package testutil

import (
	"context"
	"sync"
	"time"

	"kwatch/internal/models"
	"kwatch/internal/providers"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// HasLevel reports whether any recorded entry carries the level.
func (m *MockLogger) HasLevel(level string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Logs {
		if e.Level == level {
			return true
		}
	}
	return false
}

// MockMetrics implements providers.MetricsProviderInterface and counts calls.
type MockMetrics struct {
	mu                      sync.Mutex
	RequestsTotal           int
	CacheHits               int
	CacheMisses             int
	ChecksByOutcome         map[string]int
	FetchRetries            int
	CycleObservations       int
	MonitorsDue             int
	NotificationsByKey      map[string]int
	NotificationsSuppressed map[string]int
	AllocationsTotal        int
	AllocationMismatches    int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		ChecksByOutcome:         make(map[string]int),
		NotificationsByKey:      make(map[string]int),
		NotificationsSuppressed: make(map[string]int),
	}
}

func (m *MockMetrics) IncRequestsTotal(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestsTotal++
}

func (m *MockMetrics) ObserveRequestDuration(endpoint string, duration time.Duration) {}

func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}

func (m *MockMetrics) IncChecksTotal(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChecksByOutcome[outcome]++
}

func (m *MockMetrics) IncFetchRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchRetries++
}

func (m *MockMetrics) ObserveFetchDuration(duration time.Duration) {}

func (m *MockMetrics) ObserveCycleDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CycleObservations++
}

func (m *MockMetrics) SetMonitorsDue(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MonitorsDue = count
}

func (m *MockMetrics) IncNotificationsTotal(channel string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsByKey[channel+"/"+status]++
}

func (m *MockMetrics) IncNotificationsSuppressed(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsSuppressed[channel]++
}

func (m *MockMetrics) IncAllocationsTotal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllocationsTotal++
}

func (m *MockMetrics) IncAllocationMismatches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllocationMismatches++
}

// MockCache is an in-memory providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string][]byte)}
}

func (c *MockCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *MockCache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

// MockSender implements notify.ChannelSender for one channel.
type MockSender struct {
	mu        sync.Mutex
	Ch        models.Channel
	Disabled  bool
	Err       error
	Delivered []*models.Notification
}

func (s *MockSender) Channel() models.Channel { return s.Ch }

func (s *MockSender) Enabled() bool { return !s.Disabled }

func (s *MockSender) Send(ctx context.Context, n *models.Notification) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *n
	s.Delivered = append(s.Delivered, &copied)
	return nil
}

// SentCount returns how many notifications the sender delivered.
func (s *MockSender) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Delivered)
}

// MockDispatcher implements services.DispatcherInterface and records calls.
type MockDispatcher struct {
	mu    sync.Mutex
	Calls []DispatchCall
}

type DispatchCall struct {
	Monitor *models.Monitor
	Result  *models.CheckResult
}

func (d *MockDispatcher) Notify(ctx context.Context, monitor *models.Monitor, result *models.CheckResult) []*models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, DispatchCall{Monitor: monitor, Result: result})
	return nil
}

// CallCount returns how many times Notify was invoked.
func (d *MockDispatcher) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}
