package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kwatch/internal/models"
	"kwatch/internal/storage"
)

// SQLiteStore implements the storage.Store interface for SQLite.
// Timestamps are stored as unix seconds so lease and due-time comparisons
// stay integer arithmetic inside SQL.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database file and bootstraps the schema.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	// The scheduler and executors share this handle; sqlite allows a
	// single writer, so serialize through one connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS monitors (
	id                  TEXT PRIMARY KEY,
	owner_id            TEXT NOT NULL,
	url                 TEXT NOT NULL,
	keyword             TEXT NOT NULL,
	check_interval_days INTEGER NOT NULL CHECK (check_interval_days >= 1),
	status              TEXT NOT NULL,
	last_checked_at     INTEGER,
	last_found_at       INTEGER,
	consecutive_fails   INTEGER NOT NULL DEFAULT 0,
	alert_channels      TEXT NOT NULL,
	notes               TEXT NOT NULL DEFAULT '',
	contact_email       TEXT NOT NULL DEFAULT '',
	contact_phone       TEXT NOT NULL DEFAULT '',
	claimed_until       INTEGER,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors (owner_id, status);
CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors (status, last_checked_at);

CREATE TABLE IF NOT EXISTS check_results (
	id           TEXT PRIMARY KEY,
	monitor_id   TEXT NOT NULL,
	executed_at  INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	http_status  INTEGER,
	match_count  INTEGER NOT NULL DEFAULT 0,
	duration_ms  INTEGER NOT NULL,
	page_title   TEXT NOT NULL DEFAULT '',
	page_excerpt TEXT NOT NULL DEFAULT '',
	error_detail TEXT NOT NULL DEFAULT '',
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_check_results_monitor ON check_results (monitor_id, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_check_results_executed ON check_results (executed_at);

CREATE TABLE IF NOT EXISTS notifications (
	id              TEXT PRIMARY KEY,
	monitor_id      TEXT NOT NULL,
	check_result_id TEXT NOT NULL,
	channel         TEXT NOT NULL,
	status          TEXT NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	message         TEXT NOT NULL DEFAULT '',
	recipient       TEXT NOT NULL DEFAULT '',
	fail_reason     TEXT NOT NULL DEFAULT '',
	created_at      INTEGER NOT NULL,
	sent_at         INTEGER,
	FOREIGN KEY(monitor_id) REFERENCES monitors(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_notifications_monitor_channel ON notifications (monitor_id, channel, created_at DESC);

CREATE TABLE IF NOT EXISTS payments (
	id           TEXT PRIMARY KEY,
	amount_cents INTEGER NOT NULL CHECK (amount_cents >= 1),
	allocated    INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	allocated_at INTEGER
);

CREATE TABLE IF NOT EXISTS allocation_entries (
	id           TEXT PRIMARY KEY,
	payment_id   TEXT NOT NULL,
	category     TEXT NOT NULL,
	amount_cents INTEGER NOT NULL CHECK (amount_cents >= 0),
	created_at   INTEGER NOT NULL,
	UNIQUE (payment_id, category),
	FOREIGN KEY(payment_id) REFERENCES payments(id)
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func joinChannels(chs []models.Channel) string {
	parts := make([]string, len(chs))
	for i, c := range chs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitChannels(s string) []models.Channel {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	chs := make([]models.Channel, len(parts))
	for i, p := range parts {
		chs[i] = models.Channel(p)
	}
	return chs
}

const monitorColumns = `id, owner_id, url, keyword, check_interval_days, status,
	last_checked_at, last_found_at, consecutive_fails, alert_channels, notes,
	contact_email, contact_phone, claimed_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var lastChecked, lastFound, claimedUntil sql.NullInt64
	var channels string
	var createdAt, updatedAt int64
	err := row.Scan(&m.ID, &m.OwnerID, &m.URL, &m.Keyword, &m.CheckIntervalDays,
		&m.Status, &lastChecked, &lastFound, &m.ConsecutiveFails, &channels,
		&m.Notes, &m.ContactEmail, &m.ContactPhone, &claimedUntil, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.LastCheckedAt = timePtr(lastChecked)
	m.LastFoundAt = timePtr(lastFound)
	m.ClaimedUntil = timePtr(claimedUntil)
	m.AlertChannels = splitChannels(channels)
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &m, nil
}

func (s *SQLiteStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	query := `
INSERT INTO monitors (` + monitorColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, m.ID, m.OwnerID, m.URL, m.Keyword,
		m.CheckIntervalDays, m.Status, unixPtr(m.LastCheckedAt), unixPtr(m.LastFoundAt),
		m.ConsecutiveFails, joinChannels(m.AlertChannels), m.Notes,
		m.ContactEmail, m.ContactPhone,
		unixPtr(m.ClaimedUntil), m.CreatedAt.Unix(), m.UpdatedAt.Unix())
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return storage.ErrDuplicateKey
	}
	return err
}

func (s *SQLiteStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) ListMonitors(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []*models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, rows.Err()
}

func (s *SQLiteStore) UpdateMonitor(ctx context.Context, m *models.Monitor) error {
	query := `
UPDATE monitors SET url = ?, keyword = ?, check_interval_days = ?, status = ?,
	alert_channels = ?, notes = ?, contact_email = ?, contact_phone = ?,
	consecutive_fails = ?, updated_at = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, m.URL, m.Keyword, m.CheckIntervalDays,
		m.Status, joinChannels(m.AlertChannels), m.Notes, m.ContactEmail, m.ContactPhone,
		m.ConsecutiveFails, time.Now().Unix(), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimDue leases due monitors in one UPDATE so two concurrent scheduler
// instances never receive the same monitor.
func (s *SQLiteStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Monitor, error) {
	query := `
UPDATE monitors SET claimed_until = ?, updated_at = ?
WHERE id IN (
	SELECT id FROM monitors
	WHERE status = ?
	  AND (claimed_until IS NULL OR claimed_until < ?)
	  AND (last_checked_at IS NULL OR ? - last_checked_at >= check_interval_days * 86400)
	ORDER BY COALESCE(last_checked_at, 0) ASC
	LIMIT ?
)
RETURNING ` + monitorColumns
	rows, err := s.db.QueryContext(ctx, query,
		now.Add(lease).Unix(), now.Unix(),
		models.MonitorActive, now.Unix(), now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []*models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, m)
	}
	return claimed, rows.Err()
}

func (s *SQLiteStore) ClaimOne(ctx context.Context, id string, now time.Time, lease time.Duration) (*models.Monitor, error) {
	query := `
UPDATE monitors SET claimed_until = ?, updated_at = ?
WHERE id = ? AND (claimed_until IS NULL OR claimed_until < ?)
RETURNING ` + monitorColumns
	row := s.db.QueryRowContext(ctx, query, now.Add(lease).Unix(), now.Unix(), id, now.Unix())
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetMonitor(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, storage.ErrClaimed
	}
	return m, err
}

func (s *SQLiteStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE monitors SET claimed_until = NULL WHERE id = ?`, id)
	return err
}

// RecordCheck appends the result, applies the monitor patch and releases
// the claim in one transaction. A stale run whose lease was reclaimed by
// another worker leaves the newer claim in place.
func (s *SQLiteStore) RecordCheck(ctx context.Context, result *models.CheckResult, patch *storage.MonitorPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
INSERT INTO check_results (id, monitor_id, executed_at, outcome, http_status,
	match_count, duration_ms, page_title, page_excerpt, error_detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var httpStatus any
	if result.HTTPStatus != nil {
		httpStatus = *result.HTTPStatus
	}
	if _, err := tx.ExecContext(ctx, insert, result.ID, result.MonitorID,
		result.ExecutedAt.Unix(), result.Outcome, httpStatus, result.MatchCount,
		result.DurationMs, result.PageTitle, result.PageExcerpt, result.ErrorDetail); err != nil {
		return fmt.Errorf("failed to insert check result: %w", err)
	}

	update := `
UPDATE monitors SET last_checked_at = ?, last_found_at = COALESCE(?, last_found_at),
	consecutive_fails = ?, status = ?,
	claimed_until = CASE WHEN claimed_until IS ? THEN NULL ELSE claimed_until END,
	updated_at = ?
WHERE id = ?`
	res, err := tx.ExecContext(ctx, update, patch.LastCheckedAt.Unix(),
		unixPtr(patch.LastFoundAt), patch.ConsecutiveFails, patch.Status,
		unixPtr(patch.ClaimedUntil), time.Now().Unix(), result.MonitorID)
	if err != nil {
		return fmt.Errorf("failed to update monitor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*models.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, monitor_id, executed_at, outcome, http_status, match_count,
	duration_ms, page_title, page_excerpt, error_detail
FROM check_results WHERE monitor_id = ?
ORDER BY executed_at DESC, id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, monitorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.CheckResult
	for rows.Next() {
		var r models.CheckResult
		var executedAt int64
		var httpStatus sql.NullInt64
		if err := rows.Scan(&r.ID, &r.MonitorID, &executedAt, &r.Outcome,
			&httpStatus, &r.MatchCount, &r.DurationMs, &r.PageTitle,
			&r.PageExcerpt, &r.ErrorDetail); err != nil {
			return nil, err
		}
		r.ExecutedAt = time.Unix(executedAt, 0).UTC()
		if httpStatus.Valid {
			v := int(httpStatus.Int64)
			r.HTTPStatus = &v
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) PurgeCheckResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM check_results WHERE executed_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
INSERT INTO notifications (id, monitor_id, check_result_id, channel, status,
	subject, message, recipient, fail_reason, created_at, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, n.ID, n.MonitorID, n.CheckResultID,
		n.Channel, n.Status, n.Subject, n.Message, n.Recipient, n.FailReason,
		n.CreatedAt.Unix(), unixPtr(n.SentAt))
	return err
}

func (s *SQLiteStore) SetNotificationStatus(ctx context.Context, id string, status models.DeliveryStatus, failReason string, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, fail_reason = ?, sent_at = ? WHERE id = ?`,
		status, failReason, unixPtr(sentAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var createdAt int64
	var sentAt sql.NullInt64
	err := row.Scan(&n.ID, &n.MonitorID, &n.CheckResultID, &n.Channel, &n.Status,
		&n.Subject, &n.Message, &n.Recipient, &n.FailReason, &createdAt, &sentAt)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = time.Unix(createdAt, 0).UTC()
	n.SentAt = timePtr(sentAt)
	return &n, nil
}

const notificationColumns = `id, monitor_id, check_result_id, channel, status,
	subject, message, recipient, fail_reason, created_at, sent_at`

func (s *SQLiteStore) LatestNotification(ctx context.Context, monitorID string, ch models.Channel) (*models.Notification, error) {
	query := `
SELECT ` + notificationColumns + ` FROM notifications
WHERE monitor_id = ? AND channel = ?
ORDER BY created_at DESC, id DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, monitorID, ch)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return n, err
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, monitorID string) ([]*models.Notification, error) {
	query := `
SELECT ` + notificationColumns + ` FROM notifications
WHERE monitor_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, monitorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AllocatePayment writes the payment row with allocated=1 and all entries
// in one transaction. A pre-existing allocated payment aborts with
// ErrAlreadyAllocated so the caller can return the stored entries instead.
func (s *SQLiteStore) AllocatePayment(ctx context.Context, p *models.Payment, entries []*models.AllocationEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var allocated bool
	err = tx.QueryRowContext(ctx, `SELECT allocated FROM payments WHERE id = ?`, p.ID).Scan(&allocated)
	switch {
	case err == nil && allocated:
		return storage.ErrAlreadyAllocated
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE payments SET allocated = 1, allocated_at = ? WHERE id = ?`,
			unixPtr(p.AllocatedAt), p.ID); err != nil {
			return fmt.Errorf("failed to flip payment flag: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payments (id, amount_cents, allocated, created_at, allocated_at) VALUES (?, ?, 1, ?, ?)`,
			p.ID, p.AmountCents, p.CreatedAt.Unix(), unixPtr(p.AllocatedAt)); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	default:
		return fmt.Errorf("failed to check payment: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO allocation_entries (id, payment_id, category, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.PaymentID, e.Category, e.AmountCents, e.CreatedAt.Unix()); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") {
				return storage.ErrAlreadyAllocated
			}
			return fmt.Errorf("failed to insert allocation entry: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	var createdAt int64
	var allocatedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, amount_cents, allocated, created_at, allocated_at FROM payments WHERE id = ?`, id).
		Scan(&p.ID, &p.AmountCents, &p.Allocated, &createdAt, &allocatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.AllocatedAt = timePtr(allocatedAt)
	return &p, nil
}

func (s *SQLiteStore) ListAllocations(ctx context.Context, paymentID string) ([]*models.AllocationEntry, error) {
	query := `
SELECT id, payment_id, category, amount_cents, created_at
FROM allocation_entries WHERE payment_id = ?
ORDER BY CASE category
	WHEN 'bug_hunter_bounty' THEN 0
	WHEN 'operations' THEN 1
	ELSE 2 END`
	rows, err := s.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AllocationEntry
	for rows.Next() {
		var e models.AllocationEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Category, &e.AmountCents, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
