package storage

import (
	"context"
	"errors"
	"time"

	"kwatch/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when attempting to create a duplicate record.
	ErrDuplicateKey = errors.New("duplicate")
	// ErrClaimed is returned when a monitor already holds an unexpired lease.
	ErrClaimed = errors.New("monitor is claimed")
	// ErrAlreadyAllocated is returned when a payment's entries already exist.
	ErrAlreadyAllocated = errors.New("payment already allocated")
)

// MonitorPatch carries the executor's post-check mutation of a monitor.
// Applying a patch also releases the monitor's claim, but only while
// ClaimedUntil still matches the lease the caller was granted: a run that
// outlived its lease must not release a claim another worker holds.
type MonitorPatch struct {
	LastCheckedAt    time.Time
	LastFoundAt      *time.Time
	ConsecutiveFails int
	Status           models.MonitorStatus
	ClaimedUntil     *time.Time
}

// Store is the persistence contract for the monitoring core and the ledger.
// RecordCheck and AllocatePayment are transactional: either everything in
// them is persisted or nothing is.
type Store interface {
	CreateMonitor(ctx context.Context, m *models.Monitor) error
	GetMonitor(ctx context.Context, id string) (*models.Monitor, error)
	ListMonitors(ctx context.Context, ownerID string) ([]*models.Monitor, error)
	UpdateMonitor(ctx context.Context, m *models.Monitor) error

	// ClaimDue atomically leases up to limit due monitors until now+lease.
	// Monitors with an unexpired lease are skipped: two concurrent callers
	// never receive the same monitor.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Monitor, error)
	// ClaimOne leases a single monitor regardless of due time (manual
	// trigger). Returns ErrClaimed when an unexpired lease is held.
	ClaimOne(ctx context.Context, id string, now time.Time, lease time.Duration) (*models.Monitor, error)
	// ReleaseClaim drops a lease without applying a patch, for runs that
	// failed before producing a persistable result.
	ReleaseClaim(ctx context.Context, id string) error

	// RecordCheck appends the check result, applies the monitor patch and
	// releases the claim in one transaction. The claim is released only
	// while it still equals patch.ClaimedUntil.
	RecordCheck(ctx context.Context, result *models.CheckResult, patch *MonitorPatch) error
	ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*models.CheckResult, error)
	PurgeCheckResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	SetNotificationStatus(ctx context.Context, id string, status models.DeliveryStatus, failReason string, sentAt *time.Time) error
	// LatestNotification returns the most recent notification for the
	// (monitor, channel) pair, or ErrNotFound.
	LatestNotification(ctx context.Context, monitorID string, ch models.Channel) (*models.Notification, error)
	ListNotifications(ctx context.Context, monitorID string) ([]*models.Notification, error)

	// AllocatePayment persists the payment with allocated=true together
	// with its entries. Returns ErrAlreadyAllocated when entries for the
	// payment are already present.
	AllocatePayment(ctx context.Context, p *models.Payment, entries []*models.AllocationEntry) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	ListAllocations(ctx context.Context, paymentID string) ([]*models.AllocationEntry, error)

	Close() error
}
