package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type MaintenanceStore interface {
	CreateWindow(ctx context.Context, w *MaintenanceWindow) (int64, error)
	GetWindow(ctx context.Context, id int64) (*MaintenanceWindow, error)
	ListWindows(ctx context.Context, activeOnly bool) ([]MaintenanceWindow, error)
	ApproveWindow(ctx context.Context, id int64, now time.Time) error
	// StopWindow deactivates a window early; stopping twice is a conflict.
	StopWindow(ctx context.Context, id int64, now time.Time) error
	// ActiveWindowFor reports whether an approved, active window covers the
	// device or ward at the given instant. Global windows cover everything.
	ActiveWindowFor(ctx context.Context, deviceID *int64, ward string, now time.Time) (*MaintenanceWindow, error)
}

type maintenanceStore struct {
	db *sql.DB
}

func NewMaintenanceStore(db *sql.DB) MaintenanceStore {
	return &maintenanceStore{db: db}
}

const windowColumns = `id, name, scope, device_id, ward, starts_at, ends_at, approval, is_active, stopped_at, created_at, updated_at`

func (s *maintenanceStore) CreateWindow(ctx context.Context, w *MaintenanceWindow) (int64, error) {
	now := time.Now().UTC()
	if w.Approval == "" {
		w.Approval = "pending"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO maintenance_windows(name, scope, device_id, ward, starts_at, ends_at, approval, is_active, stopped_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,1,NULL,?,?)`,
		strings.TrimSpace(w.Name), strings.TrimSpace(w.Scope), nullableID(w.DeviceID),
		strings.TrimSpace(w.Ward), w.StartsAt.UTC(), w.EndsAt.UTC(), w.Approval, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	w.ID = id
	w.IsActive = true
	w.CreatedAt = now
	w.UpdatedAt = now
	return id, nil
}

func (s *maintenanceStore) GetWindow(ctx context.Context, id int64) (*MaintenanceWindow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM maintenance_windows WHERE id=?`, id)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (s *maintenanceStore) ListWindows(ctx context.Context, activeOnly bool) ([]MaintenanceWindow, error) {
	query := `SELECT ` + windowColumns + ` FROM maintenance_windows`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	query += ` ORDER BY starts_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MaintenanceWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *w)
	}
	return res, rows.Err()
}

func (s *maintenanceStore) ApproveWindow(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_windows SET approval='approved', updated_at=?
		WHERE id=? AND approval='pending'`, now.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *maintenanceStore) StopWindow(ctx context.Context, id int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_windows SET is_active=0, stopped_at=?, updated_at=?
		WHERE id=? AND is_active=1`, now.UTC(), now.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *maintenanceStore) ActiveWindowFor(ctx context.Context, deviceID *int64, ward string, now time.Time) (*MaintenanceWindow, error) {
	ts := now.UTC()
	row := s.db.QueryRowContext(ctx, `
		SELECT `+windowColumns+` FROM maintenance_windows
		WHERE approval='approved' AND is_active=1 AND starts_at <= ? AND ends_at > ?
		  AND (scope='global'
		    OR (scope='ward' AND ward=?)
		    OR (scope='device' AND device_id=?))
		ORDER BY id ASC LIMIT 1`,
		ts, ts, strings.TrimSpace(ward), nullableID(deviceID))
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func scanWindow(row interface{ Scan(dest ...any) error }) (*MaintenanceWindow, error) {
	var w MaintenanceWindow
	var deviceID sql.NullInt64
	var stoppedAt sql.NullTime
	var isActive int
	if err := row.Scan(&w.ID, &w.Name, &w.Scope, &deviceID, &w.Ward, &w.StartsAt, &w.EndsAt,
		&w.Approval, &isActive, &stoppedAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.DeviceID = idPtr(deviceID)
	w.StoppedAt = timePtr(stoppedAt)
	w.IsActive = isActive == 1
	return &w, nil
}
