package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type IncidentFilter struct {
	Status   string
	Severity string
	DedupKey string
	OrgID    *int64
	PonID    *int64
	Limit    int
	Offset   int
}

// BreachedIncident is what the sweep returns for advisory counter updates.
type BreachedIncident struct {
	ID       int64
	PonID    *int64
	Severity Severity
}

type IncidentsStore interface {
	// UpsertActiveIncident inserts a new open incident or, when an
	// open/acknowledged row already holds the dedup key, bumps its repeat
	// count in the same statement. The partial unique index makes this
	// decision server-side; created reports which branch ran.
	UpsertActiveIncident(ctx context.Context, inc *Incident, now time.Time) (*Incident, bool, error)
	// ResolveActiveByDedupKey resolves the most recent open/acknowledged row
	// for the key. Returns nil without error when none exists (duplicate
	// clears are harmless).
	ResolveActiveByDedupKey(ctx context.Context, dedupKey string, now time.Time) (*Incident, error)
	SetIncidentRouting(ctx context.Context, id int64, orgID int64, slaMinutes int, dueAt time.Time) error
	AcknowledgeIncident(ctx context.Context, id int64, now time.Time) (*Incident, error)
	ResolveIncident(ctx context.Context, id int64, now time.Time) (*Incident, error)
	CloseIncident(ctx context.Context, id int64, now time.Time) (*Incident, error)
	GetIncident(ctx context.Context, id int64) (*Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error)
	// FlagBreachedIncidents is a single set-based UPDATE returning the rows
	// it flipped, so callers can maintain advisory counters.
	FlagBreachedIncidents(ctx context.Context, now time.Time) ([]BreachedIncident, error)

	AddTimeline(ctx context.Context, ev *IncidentTimelineEvent) (int64, error)
	ListTimeline(ctx context.Context, incidentID int64, limit int) ([]IncidentTimelineEvent, error)
}

type incidentsStore struct {
	db *sql.DB
}

func NewIncidentsStore(db *sql.DB) IncidentsStore {
	return &incidentsStore{db: db}
}

const incidentColumns = `id, dedup_key, source, device_id, pon_id, ward, category, severity, status, message,
	repeat_count, opened_at, acknowledged_at, resolved_at, closed_at, ttr_seconds, last_seen_at,
	assigned_org_id, sla_minutes, due_at, breached, created_at, updated_at`

func (s *incidentsStore) UpsertActiveIncident(ctx context.Context, inc *Incident, now time.Time) (*Incident, bool, error) {
	ts := now.UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO incidents(dedup_key, source, device_id, pon_id, ward, category, severity, status, message,
			repeat_count, opened_at, last_seen_at, assigned_org_id, sla_minutes, due_at, breached, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,'open',?,0,?,?,NULL,NULL,NULL,0,?,?)
		ON CONFLICT(dedup_key) WHERE status IN ('open','acknowledged')
		DO UPDATE SET repeat_count=repeat_count+1, last_seen_at=excluded.last_seen_at, updated_at=excluded.updated_at
		RETURNING id, repeat_count`,
		strings.TrimSpace(inc.DedupKey), strings.TrimSpace(inc.Source), nullableID(inc.DeviceID),
		nullableID(inc.PonID), strings.TrimSpace(inc.Ward), strings.TrimSpace(inc.Category),
		string(inc.Severity), inc.Message, ts, ts, ts, ts)
	var id int64
	var repeat int
	if err := row.Scan(&id, &repeat); err != nil {
		return nil, false, err
	}
	got, err := s.GetIncident(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return got, repeat == 0, nil
}

func (s *incidentsStore) ResolveActiveByDedupKey(ctx context.Context, dedupKey string, now time.Time) (*Incident, error) {
	active, err := s.latestActive(ctx, dedupKey)
	if err != nil || active == nil {
		return nil, err
	}
	ts := now.UTC()
	ttr := int64(ts.Sub(active.OpenedAt.UTC()).Seconds())
	if ttr < 0 {
		ttr = 0
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='resolved', resolved_at=?, ttr_seconds=?, updated_at=?
		WHERE id=? AND status IN ('open','acknowledged')`,
		ts, ttr, ts, active.ID)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Lost the race to a concurrent clear; treat as the no-op case.
		return nil, nil
	}
	return s.GetIncident(ctx, active.ID)
}

func (s *incidentsStore) latestActive(ctx context.Context, dedupKey string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE dedup_key=? AND status IN ('open','acknowledged')
		ORDER BY opened_at DESC LIMIT 1`, strings.TrimSpace(dedupKey))
	return scanIncident(row)
}

func (s *incidentsStore) SetIncidentRouting(ctx context.Context, id int64, orgID int64, slaMinutes int, dueAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET assigned_org_id=?, sla_minutes=?, due_at=?, updated_at=?
		WHERE id=? AND due_at IS NULL`,
		orgID, slaMinutes, dueAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *incidentsStore) AcknowledgeIncident(ctx context.Context, id int64, now time.Time) (*Incident, error) {
	return s.transition(ctx, id, `
		UPDATE incidents SET status='acknowledged', acknowledged_at=?, updated_at=?
		WHERE id=? AND status='open'`, now)
}

func (s *incidentsStore) ResolveIncident(ctx context.Context, id int64, now time.Time) (*Incident, error) {
	current, err := s.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	ts := now.UTC()
	ttr := int64(ts.Sub(current.OpenedAt.UTC()).Seconds())
	if ttr < 0 {
		ttr = 0
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE incidents SET status='resolved', resolved_at=?, ttr_seconds=?, updated_at=?
		WHERE id=? AND status IN ('open','acknowledged')`,
		ts, ttr, ts, id)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.GetIncident(ctx, id)
}

func (s *incidentsStore) CloseIncident(ctx context.Context, id int64, now time.Time) (*Incident, error) {
	return s.transition(ctx, id, `
		UPDATE incidents SET status='closed', closed_at=?, updated_at=?
		WHERE id=? AND status='resolved'`, now)
}

func (s *incidentsStore) transition(ctx context.Context, id int64, query string, now time.Time) (*Incident, error) {
	ts := now.UTC()
	res, err := s.db.ExecContext(ctx, query, ts, ts, id)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrConflict
	}
	return s.GetIncident(ctx, id)
}

func (s *incidentsStore) GetIncident(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id=?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Status)))
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, strings.ToUpper(strings.TrimSpace(filter.Severity)))
	}
	if filter.DedupKey != "" {
		clauses = append(clauses, "dedup_key=?")
		args = append(args, strings.TrimSpace(filter.DedupKey))
	}
	if filter.OrgID != nil {
		clauses = append(clauses, "assigned_org_id=?")
		args = append(args, *filter.OrgID)
	}
	if filter.PonID != nil {
		clauses = append(clauses, "pon_id=?")
		args = append(args, *filter.PonID)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY opened_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Incident
	for rows.Next() {
		inc, err := scanIncidentRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *inc)
	}
	return res, rows.Err()
}

func (s *incidentsStore) FlagBreachedIncidents(ctx context.Context, now time.Time) ([]BreachedIncident, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE incidents SET breached=1, updated_at=?
		WHERE due_at IS NOT NULL AND status IN ('open','acknowledged') AND breached=0 AND due_at < ?
		RETURNING id, pon_id, severity`,
		now.UTC(), now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []BreachedIncident
	for rows.Next() {
		var b BreachedIncident
		var ponID sql.NullInt64
		var sev string
		if err := rows.Scan(&b.ID, &ponID, &sev); err != nil {
			return nil, err
		}
		b.PonID = idPtr(ponID)
		b.Severity = Severity(sev)
		res = append(res, b)
	}
	return res, rows.Err()
}

func (s *incidentsStore) AddTimeline(ctx context.Context, ev *IncidentTimelineEvent) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_timeline(incident_id, event_type, message, created_at)
		VALUES(?,?,?,?)`,
		ev.IncidentID, strings.TrimSpace(ev.EventType), strings.TrimSpace(ev.Message), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	ev.ID = id
	ev.CreatedAt = now
	return id, nil
}

func (s *incidentsStore) ListTimeline(ctx context.Context, incidentID int64, limit int) ([]IncidentTimelineEvent, error) {
	query := `SELECT id, incident_id, event_type, message, created_at
		FROM incident_timeline WHERE incident_id=? ORDER BY created_at DESC, id DESC`
	args := []any{incidentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentTimelineEvent
	for rows.Next() {
		var ev IncidentTimelineEvent
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.EventType, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

func scanIncident(row *sql.Row) (*Incident, error) {
	inc, err := scanIncidentFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inc, nil
}

func scanIncidentRows(rows *sql.Rows) (*Incident, error) {
	return scanIncidentFrom(rows)
}

func scanIncidentFrom(row interface{ Scan(dest ...any) error }) (*Incident, error) {
	var inc Incident
	var deviceID, ponID, orgID, ttr sql.NullInt64
	var ackAt, resolvedAt, closedAt sql.NullTime
	var slaMinutes sql.NullInt64
	var dueAt sql.NullTime
	var sev, status string
	var breached int
	if err := row.Scan(&inc.ID, &inc.DedupKey, &inc.Source, &deviceID, &ponID, &inc.Ward, &inc.Category,
		&sev, &status, &inc.Message, &inc.RepeatCount, &inc.OpenedAt, &ackAt, &resolvedAt, &closedAt,
		&ttr, &inc.LastSeenAt, &orgID, &slaMinutes, &dueAt, &breached, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return nil, err
	}
	inc.Severity = Severity(sev)
	inc.Status = IncidentStatus(status)
	inc.DeviceID = idPtr(deviceID)
	inc.PonID = idPtr(ponID)
	inc.AcknowledgedAt = timePtr(ackAt)
	inc.ResolvedAt = timePtr(resolvedAt)
	inc.ClosedAt = timePtr(closedAt)
	if ttr.Valid {
		val := ttr.Int64
		inc.TTRSeconds = &val
	}
	inc.AssignedOrgID = idPtr(orgID)
	inc.SLAMinutes = intPtr(slaMinutes)
	inc.DueAt = timePtr(dueAt)
	inc.Breached = breached == 1
	return &inc, nil
}
