package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type WebhookEventsStore interface {
	// RecordEvent persists the raw delivery before any auth decision is made,
	// so rejected requests still leave an audit trail.
	RecordEvent(ctx context.Context, ev *WebhookEvent) (int64, error)
	ListEvents(ctx context.Context, source string, limit int) ([]WebhookEvent, error)
	// PurgeOlderThan drops events past the retention horizon; returns the
	// number of rows removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type webhookEventsStore struct {
	db *sql.DB
}

func NewWebhookEventsStore(db *sql.DB) WebhookEventsStore {
	return &webhookEventsStore{db: db}
}

func (s *webhookEventsStore) RecordEvent(ctx context.Context, ev *WebhookEvent) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events(event_uid, source, remote_ip, hmac_valid, body, created_at)
		VALUES(?,?,?,?,?,?)`,
		ev.EventUID, strings.TrimSpace(ev.Source), strings.TrimSpace(ev.RemoteIP),
		boolToInt(ev.HMACValid), ev.Body, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	ev.ID = id
	ev.CreatedAt = now
	return id, nil
}

func (s *webhookEventsStore) ListEvents(ctx context.Context, source string, limit int) ([]WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, event_uid, source, remote_ip, hmac_valid, body, created_at FROM webhook_events`
	var args []any
	if source != "" {
		query += ` WHERE source=?`
		args = append(args, strings.TrimSpace(source))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []WebhookEvent
	for rows.Next() {
		var ev WebhookEvent
		var hmacValid int
		if err := rows.Scan(&ev.ID, &ev.EventUID, &ev.Source, &ev.RemoteIP, &hmacValid, &ev.Body, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.HMACValid = hmacValid == 1
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *webhookEventsStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
