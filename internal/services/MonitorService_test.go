package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kwatch/internal/models"
	"kwatch/internal/storage/sqlite"
	"kwatch/internal/testutil"
)

func newMonitorFixture(t *testing.T) (MonitorServiceInterface, *sqlite.SQLiteStore) {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "kwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewMonitorService(store, &testutil.MockLogger{}), store
}

func TestMonitorCreateAssignsDefaults(t *testing.T) {
	svc, _ := newMonitorFixture(t)

	m, err := svc.Create(context.Background(), &models.Monitor{
		OwnerID:           "usr_1",
		URL:               "https://example.com",
		Keyword:           "breach",
		CheckIntervalDays: 7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, models.MonitorActive, m.Status)
	assert.Nil(t, m.LastCheckedAt)
	assert.Equal(t, []models.Channel{models.ChannelInApp}, m.AlertChannels)
}

func TestMonitorCreateValidation(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		monitor models.Monitor
	}{
		{"relative url", models.Monitor{URL: "/path", Keyword: "k", CheckIntervalDays: 1}},
		{"bad scheme", models.Monitor{URL: "ftp://example.com", Keyword: "k", CheckIntervalDays: 1}},
		{"empty keyword", models.Monitor{URL: "https://example.com", Keyword: "  ", CheckIntervalDays: 1}},
		{"zero interval", models.Monitor{URL: "https://example.com", Keyword: "k", CheckIntervalDays: 0}},
		{"unknown channel", models.Monitor{URL: "https://example.com", Keyword: "k",
			CheckIntervalDays: 1, AlertChannels: []models.Channel{"pigeon"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, &tc.monitor)
			assert.Error(t, err)
		})
	}
}

func TestMonitorResetClearsErrorState(t *testing.T) {
	svc, store := newMonitorFixture(t)

	m, err := svc.Create(context.Background(), &models.Monitor{
		OwnerID:           "usr_1",
		URL:               "https://example.com",
		Keyword:           "breach",
		CheckIntervalDays: 1,
	})
	require.NoError(t, err)

	m.Status = models.MonitorError
	m.ConsecutiveFails = 5
	require.NoError(t, store.UpdateMonitor(context.Background(), m))

	got, err := svc.Reset(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MonitorActive, got.Status)
	assert.Equal(t, 0, got.ConsecutiveFails)
}

func TestMonitorListScopedToOwner(t *testing.T) {
	svc, _ := newMonitorFixture(t)
	ctx := context.Background()

	for _, owner := range []string{"usr_1", "usr_1", "usr_2"} {
		_, err := svc.Create(ctx, &models.Monitor{
			OwnerID:           owner,
			URL:               "https://example.com",
			Keyword:           "breach",
			CheckIntervalDays: 1,
		})
		require.NoError(t, err)
	}

	mine, err := svc.List(ctx, "usr_1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
