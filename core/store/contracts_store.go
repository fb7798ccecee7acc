package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ContractsStore covers the routing side of the model: organizations,
// their contracts, coverage assignments and the device registry.
type ContractsStore interface {
	CreateOrganization(ctx context.Context, o *Organization) (int64, error)
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)

	CreateContract(ctx context.Context, c *Contract) (int64, error)
	// ActiveContract returns the active contract for the org, nil when the
	// org has none.
	ActiveContract(ctx context.Context, orgID int64) (*Contract, error)

	CreateAssignment(ctx context.Context, a *Assignment) (int64, error)
	// FindAssignment resolves coverage: a pon-scoped assignment wins over a
	// ward-scoped one. Returns nil when nothing covers the target.
	FindAssignment(ctx context.Context, ponID *int64, ward string) (*Assignment, error)

	CreateDevice(ctx context.Context, d *Device) (int64, error)
	FindDeviceByHostname(ctx context.Context, hostname string) (*Device, error)
}

type contractsStore struct {
	db *sql.DB
}

func NewContractsStore(db *sql.DB) ContractsStore {
	return &contractsStore{db: db}
}

func (s *contractsStore) CreateOrganization(ctx context.Context, o *Organization) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO organizations(name, created_at) VALUES(?,?)`,
		strings.TrimSpace(o.Name), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	o.ID = id
	o.CreatedAt = now
	return id, nil
}

func (s *contractsStore) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	var o Organization
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *contractsStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM organizations ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (s *contractsStore) CreateContract(ctx context.Context, c *Contract) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts(org_id, scope, active, sla_p1_minutes, sla_p2_minutes, sla_p3_minutes, sla_p4_minutes, created_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		c.OrgID, strings.TrimSpace(c.Scope), boolToInt(c.Active),
		c.SLAP1Minutes, c.SLAP2Minutes, c.SLAP3Minutes, c.SLAP4Minutes, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	c.ID = id
	c.CreatedAt = now
	return id, nil
}

func (s *contractsStore) ActiveContract(ctx context.Context, orgID int64) (*Contract, error) {
	var c Contract
	var active int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, scope, active, sla_p1_minutes, sla_p2_minutes, sla_p3_minutes, sla_p4_minutes, created_at
		FROM contracts WHERE org_id=? AND active=1 ORDER BY id DESC LIMIT 1`, orgID).
		Scan(&c.ID, &c.OrgID, &c.Scope, &active, &c.SLAP1Minutes, &c.SLAP2Minutes, &c.SLAP3Minutes, &c.SLAP4Minutes, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Active = active == 1
	return &c, nil
}

func (s *contractsStore) CreateAssignment(ctx context.Context, a *Assignment) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments(org_id, scope, pon_id, ward, created_at) VALUES(?,?,?,?,?)`,
		a.OrgID, strings.TrimSpace(a.Scope), nullableID(a.PonID), strings.TrimSpace(a.Ward), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	a.ID = id
	a.CreatedAt = now
	return id, nil
}

func (s *contractsStore) FindAssignment(ctx context.Context, ponID *int64, ward string) (*Assignment, error) {
	if ponID != nil {
		a, err := s.assignmentBy(ctx, `SELECT id, org_id, scope, pon_id, ward, created_at
			FROM assignments WHERE scope='pon' AND pon_id=? ORDER BY id DESC LIMIT 1`, *ponID)
		if err != nil || a != nil {
			return a, err
		}
	}
	ward = strings.TrimSpace(ward)
	if ward == "" {
		return nil, nil
	}
	return s.assignmentBy(ctx, `SELECT id, org_id, scope, pon_id, ward, created_at
		FROM assignments WHERE scope='ward' AND ward=? ORDER BY id DESC LIMIT 1`, ward)
}

func (s *contractsStore) assignmentBy(ctx context.Context, query string, arg any) (*Assignment, error) {
	var a Assignment
	var ponID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&a.ID, &a.OrgID, &a.Scope, &ponID, &a.Ward, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.PonID = idPtr(ponID)
	return &a, nil
}

func (s *contractsStore) CreateDevice(ctx context.Context, d *Device) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO devices(hostname, ward, pon_id, created_at) VALUES(?,?,?,?)`,
		strings.TrimSpace(d.Hostname), strings.TrimSpace(d.Ward), nullableID(d.PonID), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	d.ID = id
	d.CreatedAt = now
	return id, nil
}

func (s *contractsStore) FindDeviceByHostname(ctx context.Context, hostname string) (*Device, error) {
	var d Device
	var ponID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, hostname, ward, pon_id, created_at FROM devices WHERE hostname=?`,
		strings.TrimSpace(hostname)).
		Scan(&d.ID, &d.Hostname, &d.Ward, &ponID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.PonID = idPtr(ponID)
	return &d, nil
}
