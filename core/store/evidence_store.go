package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// EvidenceStore serves the aggregates the status engine reads: it never
// hands row sets to the derivation code, only summaries.
type EvidenceStore interface {
	AddCACCheck(ctx context.Context, c *CACCheck) (int64, error)
	CountCACChecks(ctx context.Context, ponID int64) (CACSummary, error)

	AddStringingRun(ctx context.Context, r *StringingRun) (int64, error)
	SumStringingMeters(ctx context.Context, ponID int64) (float64, error)

	AddPhoto(ctx context.Context, p *PonPhoto) (int64, error)
	// ValidPhotoKinds returns the distinct kinds for which the PON has at
	// least one photo passing both EXIF and geofence validation.
	ValidPhotoKinds(ctx context.Context, ponID int64) (map[string]bool, error)
	ListPhotos(ctx context.Context, ponID int64) ([]PonPhoto, error)
	SetPhotoValidity(ctx context.Context, id int64, exifValid, geoValid bool) error
	// ListPhotosForRevalidation feeds the periodic job that re-checks photo
	// validity after geofence edits.
	ListPhotosForRevalidation(ctx context.Context, limit int) ([]PonPhoto, error)
}

type evidenceStore struct {
	db *sql.DB
}

func NewEvidenceStore(db *sql.DB) EvidenceStore {
	return &evidenceStore{db: db}
}

func (s *evidenceStore) AddCACCheck(ctx context.Context, c *CACCheck) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cac_checks(pon_id, pole_ref, passed, measured_at, created_at)
		VALUES(?,?,?,?,?)`,
		c.PonID, strings.TrimSpace(c.PoleRef), boolToInt(c.Passed), c.MeasuredAt.UTC(), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	c.ID = id
	c.CreatedAt = now
	return id, nil
}

func (s *evidenceStore) CountCACChecks(ctx context.Context, ponID int64) (CACSummary, error) {
	var sum CACSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(passed), 0) FROM cac_checks WHERE pon_id=?`, ponID).
		Scan(&sum.Total, &sum.Passed)
	return sum, err
}

func (s *evidenceStore) AddStringingRun(ctx context.Context, r *StringingRun) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stringing_runs(pon_id, meters, recorded_at) VALUES(?,?,?)`,
		r.PonID, r.Meters, r.RecordedAt.UTC())
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	r.ID = id
	return id, nil
}

func (s *evidenceStore) SumStringingMeters(ctx context.Context, ponID int64) (float64, error) {
	var meters float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(meters), 0) FROM stringing_runs WHERE pon_id=?`, ponID).Scan(&meters)
	return meters, err
}

func (s *evidenceStore) AddPhoto(ctx context.Context, p *PonPhoto) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pon_photos(pon_id, kind, taken_at, lat, lng, exif_valid, geo_valid, uploaded_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		p.PonID, strings.ToLower(strings.TrimSpace(p.Kind)), nullableTime(p.TakenAt),
		nullableFloat(p.Lat), nullableFloat(p.Lng), boolToInt(p.EXIFValid), boolToInt(p.GeoValid), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	p.ID = id
	p.UploadedAt = now
	return id, nil
}

func (s *evidenceStore) ValidPhotoKinds(ctx context.Context, ponID int64) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT kind FROM pon_photos
		WHERE pon_id=? AND exif_valid=1 AND geo_valid=1`, ponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	kinds := make(map[string]bool)
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, err
		}
		kinds[kind] = true
	}
	return kinds, rows.Err()
}

func (s *evidenceStore) ListPhotos(ctx context.Context, ponID int64) ([]PonPhoto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pon_id, kind, taken_at, lat, lng, exif_valid, geo_valid, uploaded_at
		FROM pon_photos WHERE pon_id=? ORDER BY id ASC`, ponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhotos(rows)
}

func (s *evidenceStore) SetPhotoValidity(ctx context.Context, id int64, exifValid, geoValid bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pon_photos SET exif_valid=?, geo_valid=? WHERE id=?`,
		boolToInt(exifValid), boolToInt(geoValid), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *evidenceStore) ListPhotosForRevalidation(ctx context.Context, limit int) ([]PonPhoto, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ph.id, ph.pon_id, ph.kind, ph.taken_at, ph.lat, ph.lng, ph.exif_valid, ph.geo_valid, ph.uploaded_at
		FROM pon_photos ph JOIN pons p ON p.id = ph.pon_id
		WHERE p.status != 'completed'
		ORDER BY ph.id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPhotos(rows)
}

func scanPhotos(rows *sql.Rows) ([]PonPhoto, error) {
	var res []PonPhoto
	for rows.Next() {
		var p PonPhoto
		var takenAt sql.NullTime
		var lat, lng sql.NullFloat64
		var exifValid, geoValid int
		if err := rows.Scan(&p.ID, &p.PonID, &p.Kind, &takenAt, &lat, &lng, &exifValid, &geoValid, &p.UploadedAt); err != nil {
			return nil, err
		}
		p.TakenAt = timePtr(takenAt)
		p.Lat = floatPtr(lat)
		p.Lng = floatPtr(lng)
		p.EXIFValid = exifValid == 1
		p.GeoValid = geoValid == 1
		res = append(res, p)
	}
	return res, rows.Err()
}
