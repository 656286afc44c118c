package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwatch/internal/controllers"
	"kwatch/internal/models"
	"kwatch/internal/monitoring/interfaces"
	"kwatch/internal/providers"
	"kwatch/internal/structures"
)

type routeTestLogger struct{}

func (l *routeTestLogger) Errorf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (l *routeTestLogger) Warnf(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (l *routeTestLogger) Debugf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (l *routeTestLogger) Infof(_ providers.TypeEnum, _ string, _ ...interface{})  {}
func (l *routeTestLogger) Fatalf(_ providers.TypeEnum, _ string, _ ...interface{}) {}
func (l *routeTestLogger) Close()                                                  {}

type routeTestCache struct{}

func (c *routeTestCache) Get(_ string) ([]byte, bool) { return nil, false }
func (c *routeTestCache) Set(_ string, _ []byte)      {}

type routeTestMonitors struct{}

func (m *routeTestMonitors) Create(_ context.Context, mon *models.Monitor) (*models.Monitor, error) {
	return mon, nil
}
func (m *routeTestMonitors) Get(_ context.Context, id string) (*models.Monitor, error) {
	return &models.Monitor{ID: id}, nil
}
func (m *routeTestMonitors) List(_ context.Context, _ string) ([]*models.Monitor, error) {
	return nil, nil
}
func (m *routeTestMonitors) Update(_ context.Context, _ *models.Monitor) error { return nil }
func (m *routeTestMonitors) Reset(_ context.Context, id string) (*models.Monitor, error) {
	return &models.Monitor{ID: id}, nil
}
func (m *routeTestMonitors) Results(_ context.Context, _ string, _ int) ([]*models.CheckResult, error) {
	return nil, nil
}
func (m *routeTestMonitors) Notifications(_ context.Context, _ string) ([]*models.Notification, error) {
	return nil, nil
}

type routeTestAllocations struct{}

func (a *routeTestAllocations) Allocate(_ context.Context, _ string, _ int64) ([]*models.AllocationEntry, error) {
	return nil, nil
}
func (a *routeTestAllocations) GetAllocations(_ context.Context, _ string) ([]*models.AllocationEntry, error) {
	return nil, nil
}

type routeTestScheduler struct{}

func (s *routeTestScheduler) Init() {}
func (s *routeTestScheduler) Stop() {}
func (s *routeTestScheduler) RunCycle(_ context.Context, _ time.Time) (interfaces.CycleReport, error) {
	return interfaces.CycleReport{}, nil
}
func (s *routeTestScheduler) CheckNow(_ context.Context, _ string) error { return nil }

func newRouteTestController() *controllers.ApiController {
	return controllers.NewApiController(&routeTestLogger{}, &routeTestMonitors{},
		&routeTestAllocations{}, &routeTestScheduler{}, &routeTestCache{})
}

func TestInitRoutes_RegistersAllRoutes(t *testing.T) {
	routes := InitRoutes(newRouteTestController(), &structures.Config{}).GetRoutes()

	urls := make(map[string]bool, len(routes))
	for _, route := range routes {
		require.NotNil(t, route.Handler)
		urls[route.Url] = true
	}

	expected := []string{
		"/monitors",
		"/monitor",
		"/monitor/reset",
		"/results",
		"/notifications",
		"/cycle",
		"/check",
		"/payments/confirmed",
		"/allocations",
	}
	assert.Len(t, routes, len(expected))
	for _, url := range expected {
		assert.True(t, urls[url], "missing route %s", url)
	}
}

func TestInitRoutes_MonitorsDispatchesByMethod(t *testing.T) {
	routes := InitRoutes(newRouteTestController(), &structures.Config{}).GetRoutes()

	var handler http.Handler
	for _, route := range routes {
		if route.Url == "/monitors" {
			handler = route.Handler
		}
	}
	require.NotNil(t, handler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/monitors", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/monitors", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
