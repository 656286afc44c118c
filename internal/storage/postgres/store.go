package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kwatch/internal/models"
	"kwatch/internal/storage"
)

// PostgresStore implements the storage.Store interface for PostgreSQL.
// Claims use FOR UPDATE SKIP LOCKED so concurrent scheduler instances
// never receive the same monitor.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New creates the connection pool and bootstraps the schema.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS monitors (
		id                  TEXT PRIMARY KEY,
		owner_id            TEXT NOT NULL,
		url                 TEXT NOT NULL,
		keyword             TEXT NOT NULL,
		check_interval_days INTEGER NOT NULL CHECK (check_interval_days >= 1),
		status              TEXT NOT NULL,
		last_checked_at     TIMESTAMPTZ,
		last_found_at       TIMESTAMPTZ,
		consecutive_fails   INTEGER NOT NULL DEFAULT 0,
		alert_channels      TEXT[] NOT NULL,
		notes               TEXT NOT NULL DEFAULT '',
		contact_email       TEXT NOT NULL DEFAULT '',
		contact_phone       TEXT NOT NULL DEFAULT '',
		claimed_until       TIMESTAMPTZ,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors (owner_id, status);
	CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors (status, last_checked_at);

	CREATE TABLE IF NOT EXISTS check_results (
		id           TEXT PRIMARY KEY,
		monitor_id   TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		executed_at  TIMESTAMPTZ NOT NULL,
		outcome      TEXT NOT NULL,
		http_status  INTEGER,
		match_count  INTEGER NOT NULL DEFAULT 0,
		duration_ms  BIGINT NOT NULL,
		page_title   TEXT NOT NULL DEFAULT '',
		page_excerpt TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_check_results_monitor ON check_results (monitor_id, executed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_check_results_executed ON check_results (executed_at);

	CREATE TABLE IF NOT EXISTS notifications (
		id              TEXT PRIMARY KEY,
		monitor_id      TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
		check_result_id TEXT NOT NULL,
		channel         TEXT NOT NULL,
		status          TEXT NOT NULL,
		subject         TEXT NOT NULL DEFAULT '',
		message         TEXT NOT NULL DEFAULT '',
		recipient       TEXT NOT NULL DEFAULT '',
		fail_reason     TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		sent_at         TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_monitor_channel ON notifications (monitor_id, channel, created_at DESC);

	CREATE TABLE IF NOT EXISTS payments (
		id           TEXT PRIMARY KEY,
		amount_cents BIGINT NOT NULL CHECK (amount_cents >= 1),
		allocated    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   TIMESTAMPTZ NOT NULL,
		allocated_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS allocation_entries (
		id           TEXT PRIMARY KEY,
		payment_id   TEXT NOT NULL REFERENCES payments(id),
		category     TEXT NOT NULL,
		amount_cents BIGINT NOT NULL CHECK (amount_cents >= 0),
		created_at   TIMESTAMPTZ NOT NULL,
		UNIQUE (payment_id, category)
	);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

const monitorColumns = `id, owner_id, url, keyword, check_interval_days, status,
	last_checked_at, last_found_at, consecutive_fails, alert_channels, notes,
	contact_email, contact_phone, claimed_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var channels []string
	err := row.Scan(&m.ID, &m.OwnerID, &m.URL, &m.Keyword, &m.CheckIntervalDays,
		&m.Status, &m.LastCheckedAt, &m.LastFoundAt, &m.ConsecutiveFails,
		&channels, &m.Notes, &m.ContactEmail, &m.ContactPhone,
		&m.ClaimedUntil, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.AlertChannels = make([]models.Channel, len(channels))
	for i, c := range channels {
		m.AlertChannels[i] = models.Channel(c)
	}
	return &m, nil
}

func channelStrings(chs []models.Channel) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateMonitor(ctx context.Context, m *models.Monitor) error {
	query := `
INSERT INTO monitors (` + monitorColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.db.Exec(ctx, query, m.ID, m.OwnerID, m.URL, m.Keyword,
		m.CheckIntervalDays, m.Status, m.LastCheckedAt, m.LastFoundAt,
		m.ConsecutiveFails, channelStrings(m.AlertChannels), m.Notes,
		m.ContactEmail, m.ContactPhone, m.ClaimedUntil, m.CreatedAt, m.UpdatedAt)
	if isUniqueViolation(err) {
		return storage.ErrDuplicateKey
	}
	return err
}

func (s *PostgresStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return m, err
}

func (s *PostgresStore) ListMonitors(ctx context.Context, ownerID string) ([]*models.Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM monitors`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, query, args...)
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

func (s *PostgresStore) UpdateMonitor(ctx context.Context, m *models.Monitor) error {
	query := `
UPDATE monitors SET url = $1, keyword = $2, check_interval_days = $3, status = $4,
	alert_channels = $5, notes = $6, contact_email = $7, contact_phone = $8,
	consecutive_fails = $9, updated_at = NOW()
WHERE id = $10`
	tag, err := s.db.Exec(ctx, query, m.URL, m.Keyword, m.CheckIntervalDays,
		m.Status, channelStrings(m.AlertChannels), m.Notes, m.ContactEmail,
		m.ContactPhone, m.ConsecutiveFails, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Monitor, error) {
	query := `
UPDATE monitors SET claimed_until = $1, updated_at = $2
WHERE id IN (
	SELECT id FROM monitors
	WHERE status = $3
	  AND (claimed_until IS NULL OR claimed_until < $2)
	  AND (last_checked_at IS NULL OR $2 - last_checked_at >= check_interval_days * INTERVAL '1 day')
	ORDER BY last_checked_at ASC NULLS FIRST
	LIMIT $4
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + monitorColumns
	rows, err := s.db.Query(ctx, query, now.Add(lease), now, models.MonitorActive, limit)
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

func (s *PostgresStore) ClaimOne(ctx context.Context, id string, now time.Time, lease time.Duration) (*models.Monitor, error) {
	query := `
UPDATE monitors SET claimed_until = $1, updated_at = $2
WHERE id = $3 AND (claimed_until IS NULL OR claimed_until < $2)
RETURNING ` + monitorColumns
	row := s.db.QueryRow(ctx, query, now.Add(lease), now, id)
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetMonitor(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, storage.ErrClaimed
	}
	return m, err
}

func (s *PostgresStore) ReleaseClaim(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE monitors SET claimed_until = NULL WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) RecordCheck(ctx context.Context, result *models.CheckResult, patch *storage.MonitorPatch) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	insert := `
INSERT INTO check_results (id, monitor_id, executed_at, outcome, http_status,
	match_count, duration_ms, page_title, page_excerpt, error_detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.Exec(ctx, insert, result.ID, result.MonitorID,
		result.ExecutedAt, result.Outcome, result.HTTPStatus, result.MatchCount,
		result.DurationMs, result.PageTitle, result.PageExcerpt, result.ErrorDetail); err != nil {
		return fmt.Errorf("failed to insert check result: %w", err)
	}

	update := `
UPDATE monitors SET last_checked_at = $1, last_found_at = COALESCE($2, last_found_at),
	consecutive_fails = $3, status = $4,
	claimed_until = CASE WHEN claimed_until IS NOT DISTINCT FROM $5 THEN NULL
		ELSE claimed_until END,
	updated_at = NOW()
WHERE id = $6`
	tag, err := tx.Exec(ctx, update, patch.LastCheckedAt, patch.LastFoundAt,
		patch.ConsecutiveFails, patch.Status, patch.ClaimedUntil, result.MonitorID)
	if err != nil {
		return fmt.Errorf("failed to update monitor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*models.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, monitor_id, executed_at, outcome, http_status, match_count,
	duration_ms, page_title, page_excerpt, error_detail
FROM check_results WHERE monitor_id = $1
ORDER BY executed_at DESC, id DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, monitorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.CheckResult
	for rows.Next() {
		var r models.CheckResult
		if err := rows.Scan(&r.ID, &r.MonitorID, &r.ExecutedAt, &r.Outcome,
			&r.HTTPStatus, &r.MatchCount, &r.DurationMs, &r.PageTitle,
			&r.PageExcerpt, &r.ErrorDetail); err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) PurgeCheckResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM check_results WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const notificationColumns = `id, monitor_id, check_result_id, channel, status,
	subject, message, recipient, fail_reason, created_at, sent_at`

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
INSERT INTO notifications (` + notificationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.Exec(ctx, query, n.ID, n.MonitorID, n.CheckResultID,
		n.Channel, n.Status, n.Subject, n.Message, n.Recipient, n.FailReason,
		n.CreatedAt, n.SentAt)
	return err
}

func (s *PostgresStore) SetNotificationStatus(ctx context.Context, id string, status models.DeliveryStatus, failReason string, sentAt *time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE notifications SET status = $1, fail_reason = $2, sent_at = $3 WHERE id = $4`,
		status, failReason, sentAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(&n.ID, &n.MonitorID, &n.CheckResultID, &n.Channel, &n.Status,
		&n.Subject, &n.Message, &n.Recipient, &n.FailReason, &n.CreatedAt, &n.SentAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *PostgresStore) LatestNotification(ctx context.Context, monitorID string, ch models.Channel) (*models.Notification, error) {
	query := `
SELECT ` + notificationColumns + ` FROM notifications
WHERE monitor_id = $1 AND channel = $2
ORDER BY created_at DESC, id DESC LIMIT 1`
	row := s.db.QueryRow(ctx, query, monitorID, ch)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return n, err
}

func (s *PostgresStore) ListNotifications(ctx context.Context, monitorID string) ([]*models.Notification, error) {
	query := `
SELECT ` + notificationColumns + ` FROM notifications
WHERE monitor_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := s.db.Query(ctx, query, monitorID)
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

func (s *PostgresStore) AllocatePayment(ctx context.Context, p *models.Payment, entries []*models.AllocationEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var allocated bool
	err = tx.QueryRow(ctx, `SELECT allocated FROM payments WHERE id = $1 FOR UPDATE`, p.ID).Scan(&allocated)
	switch {
	case err == nil && allocated:
		return storage.ErrAlreadyAllocated
	case err == nil:
		if _, err := tx.Exec(ctx,
			`UPDATE payments SET allocated = TRUE, allocated_at = $1 WHERE id = $2`,
			p.AllocatedAt, p.ID); err != nil {
			return fmt.Errorf("failed to flip payment flag: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := tx.Exec(ctx,
			`INSERT INTO payments (id, amount_cents, allocated, created_at, allocated_at) VALUES ($1, $2, TRUE, $3, $4)`,
			p.ID, p.AmountCents, p.CreatedAt, p.AllocatedAt); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	default:
		return fmt.Errorf("failed to check payment: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO allocation_entries (id, payment_id, category, amount_cents, created_at) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.PaymentID, e.Category, e.AmountCents, e.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyAllocated
			}
			return fmt.Errorf("failed to insert allocation entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.QueryRow(ctx,
		`SELECT id, amount_cents, allocated, created_at, allocated_at FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.AmountCents, &p.Allocated, &p.CreatedAt, &p.AllocatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) ListAllocations(ctx context.Context, paymentID string) ([]*models.AllocationEntry, error) {
	query := `
SELECT id, payment_id, category, amount_cents, created_at
FROM allocation_entries WHERE payment_id = $1
ORDER BY CASE category
	WHEN 'bug_hunter_bounty' THEN 0
	WHEN 'operations' THEN 1
	ELSE 2 END`
	rows, err := s.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AllocationEntry
	for rows.Next() {
		var e models.AllocationEntry
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Category, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
