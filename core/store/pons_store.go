package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type PonsStore interface {
	CreatePon(ctx context.Context, p *Pon) (int64, error)
	GetPon(ctx context.Context, id int64) (*Pon, error)
	ListPons(ctx context.Context, orgID *int64) ([]Pon, error)
	UpdatePonProgress(ctx context.Context, id int64, polesPlanted int) error
	// SetPonStatus writes the derived status only when it differs from the
	// stored value. Returns true when a row was actually updated.
	SetPonStatus(ctx context.Context, id int64, status PonStatus, now time.Time) (bool, error)
	IncrementBreachCount(ctx context.Context, ids []int64) error
}

type ponsStore struct {
	db *sql.DB
}

func NewPonsStore(db *sql.DB) PonsStore {
	return &ponsStore{db: db}
}

const ponColumns = `id, name, org_id, ward, status, poles_planned, poles_planted,
	center_lat, center_lng, radius_m, polygon_json, breach_count, created_at, updated_at`

func (s *ponsStore) CreatePon(ctx context.Context, p *Pon) (int64, error) {
	now := time.Now().UTC()
	if p.Status == "" {
		p.Status = PonNotStarted
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pons(name, org_id, ward, status, poles_planned, poles_planted, center_lat, center_lng, radius_m, polygon_json, breach_count, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,0,?,?)`,
		strings.TrimSpace(p.Name), nullableID(p.OrgID), strings.TrimSpace(p.Ward), string(p.Status),
		p.PolesPlanned, p.PolesPlanted, nullableFloat(p.CenterLat), nullableFloat(p.CenterLng),
		nullableFloat(p.RadiusM), p.PolygonJSON, now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return id, nil
}

func (s *ponsStore) GetPon(ctx context.Context, id int64) (*Pon, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ponColumns+` FROM pons WHERE id=?`, id)
	return scanPon(row)
}

func (s *ponsStore) ListPons(ctx context.Context, orgID *int64) ([]Pon, error) {
	query := `SELECT ` + ponColumns + ` FROM pons`
	var args []any
	if orgID != nil {
		query += ` WHERE org_id=?`
		args = append(args, *orgID)
	}
	query += ` ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Pon
	for rows.Next() {
		p, err := scanPonRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, rows.Err()
}

func (s *ponsStore) UpdatePonProgress(ctx context.Context, id int64, polesPlanted int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pons SET poles_planted=?, updated_at=? WHERE id=?`,
		polesPlanted, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ponsStore) SetPonStatus(ctx context.Context, id int64, status PonStatus, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pons SET status=?, updated_at=? WHERE id=? AND status!=?`,
		string(status), now.UTC(), id, string(status))
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *ponsStore) IncrementBreachCount(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE pons SET breach_count=breach_count+1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func scanPon(row *sql.Row) (*Pon, error) {
	var p Pon
	var orgID sql.NullInt64
	var lat, lng, radius sql.NullFloat64
	var status string
	if err := row.Scan(&p.ID, &p.Name, &orgID, &p.Ward, &status, &p.PolesPlanned, &p.PolesPlanted,
		&lat, &lng, &radius, &p.PolygonJSON, &p.BreachCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Status = PonStatus(status)
	p.OrgID = idPtr(orgID)
	p.CenterLat = floatPtr(lat)
	p.CenterLng = floatPtr(lng)
	p.RadiusM = floatPtr(radius)
	return &p, nil
}

func scanPonRow(rows *sql.Rows) (*Pon, error) {
	var p Pon
	var orgID sql.NullInt64
	var lat, lng, radius sql.NullFloat64
	var status string
	if err := rows.Scan(&p.ID, &p.Name, &orgID, &p.Ward, &status, &p.PolesPlanned, &p.PolesPlanted,
		&lat, &lng, &radius, &p.PolygonJSON, &p.BreachCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = PonStatus(status)
	p.OrgID = idPtr(orgID)
	p.CenterLat = floatPtr(lat)
	p.CenterLng = floatPtr(lng)
	p.RadiusM = floatPtr(radius)
	return &p, nil
}
