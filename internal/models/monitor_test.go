package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_NeedsCheck_NeverChecked(t *testing.T) {
	m := &Monitor{Status: MonitorActive, CheckIntervalDays: 1}
	assert.True(t, m.NeedsCheck(time.Now()))
}

func TestMonitor_NeedsCheck_NotDueYet(t *testing.T) {
	last := time.Now().Add(-12 * time.Hour)
	m := &Monitor{Status: MonitorActive, CheckIntervalDays: 1, LastCheckedAt: &last}
	assert.False(t, m.NeedsCheck(time.Now()))
}

func TestMonitor_NeedsCheck_Due(t *testing.T) {
	last := time.Now().Add(-25 * time.Hour)
	m := &Monitor{Status: MonitorActive, CheckIntervalDays: 1, LastCheckedAt: &last}
	assert.True(t, m.NeedsCheck(time.Now()))
}

func TestMonitor_NeedsCheck_ExactBoundary(t *testing.T) {
	now := time.Now()
	last := now.Add(-24 * time.Hour)
	m := &Monitor{Status: MonitorActive, CheckIntervalDays: 1, LastCheckedAt: &last}
	assert.True(t, m.NeedsCheck(now))
}

func TestMonitor_NeedsCheck_PausedAndError(t *testing.T) {
	m := &Monitor{Status: MonitorPaused, CheckIntervalDays: 1}
	assert.False(t, m.NeedsCheck(time.Now()))

	m.Status = MonitorError
	assert.False(t, m.NeedsCheck(time.Now()))
}

func TestMonitor_NeedsCheck_MultiDayInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-2 * 24 * time.Hour)
	m := &Monitor{Status: MonitorActive, CheckIntervalDays: 3, LastCheckedAt: &last}
	assert.False(t, m.NeedsCheck(now))

	last = now.Add(-3 * 24 * time.Hour)
	assert.True(t, m.NeedsCheck(now))
}

func TestMonitor_Claimed(t *testing.T) {
	now := time.Now()
	m := &Monitor{}
	assert.False(t, m.Claimed(now))

	until := now.Add(time.Minute)
	m.ClaimedUntil = &until
	assert.True(t, m.Claimed(now))

	expired := now.Add(-time.Minute)
	m.ClaimedUntil = &expired
	assert.False(t, m.Claimed(now))
}

func TestMonitor_HasChannel(t *testing.T) {
	m := &Monitor{AlertChannels: []Channel{ChannelEmail, ChannelInApp}}
	assert.True(t, m.HasChannel(ChannelEmail))
	assert.True(t, m.HasChannel(ChannelInApp))
	assert.False(t, m.HasChannel(ChannelSMS))
}

func TestNewID_PrefixAndUniqueness(t *testing.T) {
	a := NewID("mon")
	b := NewID("mon")
	require.NotEqual(t, a, b)
	assert.Equal(t, "mon", IDPrefix(a))
	assert.Equal(t, "", IDPrefix("noseparator"))
}

func TestFundShares_SumToWhole(t *testing.T) {
	var total int64
	for _, c := range FundCategories {
		total += FundShareBP[c]
	}
	assert.Equal(t, int64(10000), total)
}
