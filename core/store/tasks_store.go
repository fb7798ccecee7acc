package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type TasksStore interface {
	CreateTask(ctx context.Context, t *Task) (int64, error)
	GetTask(ctx context.Context, id int64) (*Task, error)
	TasksByPon(ctx context.Context, ponID int64) ([]TaskBrief, error)
	ListOpenTasksByOrg(ctx context.Context, orgID int64) ([]Task, error)
	// SetTaskStatus writes the new status; it does not touch SLA fields.
	SetTaskStatus(ctx context.Context, id int64, status TaskStatus, now time.Time) error
	// StartTaskTimer stamps the SLA window only when none is set for the
	// current cycle, keeping re-entry idempotent.
	StartTaskTimer(ctx context.Context, id int64, minutes int, startedAt, dueAt time.Time) (bool, error)
	// FlagBreachedTasks is the set-based sweep: one statement, all-or-nothing.
	FlagBreachedTasks(ctx context.Context, now time.Time) (int64, error)
}

type tasksStore struct {
	db *sql.DB
}

func NewTasksStore(db *sql.DB) TasksStore {
	return &tasksStore{db: db}
}

const taskColumns = `id, pon_id, step, status, sla_minutes, sla_started_at, sla_due_at, breached, created_at, updated_at`

func (s *tasksStore) CreateTask(ctx context.Context, t *Task) (int64, error) {
	now := time.Now().UTC()
	if t.Status == "" {
		t.Status = TaskPending
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks(pon_id, step, status, sla_minutes, sla_started_at, sla_due_at, breached, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		t.PonID, string(t.Step), string(t.Status), nullableInt(t.SLAMinutes),
		nullableTime(t.SLAStartedAt), nullableTime(t.SLADueAt), boolToInt(t.Breached), now, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return id, nil
}

func (s *tasksStore) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	var t Task
	var step, status string
	var minutes, startedAt, dueAt = sql.NullInt64{}, sql.NullTime{}, sql.NullTime{}
	var breached int
	if err := row.Scan(&t.ID, &t.PonID, &step, &status, &minutes, &startedAt, &dueAt, &breached, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	t.Step = TaskStep(step)
	t.Status = TaskStatus(status)
	t.SLAMinutes = intPtr(minutes)
	t.SLAStartedAt = timePtr(startedAt)
	t.SLADueAt = timePtr(dueAt)
	t.Breached = breached == 1
	return &t, nil
}

func (s *tasksStore) TasksByPon(ctx context.Context, ponID int64) ([]TaskBrief, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, step, status FROM tasks WHERE pon_id=? ORDER BY id ASC`, ponID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TaskBrief
	for rows.Next() {
		var b TaskBrief
		var step, status string
		if err := rows.Scan(&b.ID, &step, &status); err != nil {
			return nil, err
		}
		b.Step = TaskStep(step)
		b.Status = TaskStatus(status)
		res = append(res, b)
	}
	return res, rows.Err()
}

func (s *tasksStore) ListOpenTasksByOrg(ctx context.Context, orgID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.pon_id, t.step, t.status, t.sla_minutes, t.sla_started_at, t.sla_due_at, t.breached, t.created_at, t.updated_at
		FROM tasks t JOIN pons p ON p.id = t.pon_id
		WHERE p.org_id=? AND t.status!='done'
		ORDER BY t.sla_due_at IS NULL, t.sla_due_at ASC, t.id ASC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Task
	for rows.Next() {
		var t Task
		var step, status string
		var minutes sql.NullInt64
		var startedAt, dueAt sql.NullTime
		var breached int
		if err := rows.Scan(&t.ID, &t.PonID, &step, &status, &minutes, &startedAt, &dueAt, &breached, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Step = TaskStep(step)
		t.Status = TaskStatus(status)
		t.SLAMinutes = intPtr(minutes)
		t.SLAStartedAt = timePtr(startedAt)
		t.SLADueAt = timePtr(dueAt)
		t.Breached = breached == 1
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *tasksStore) SetTaskStatus(ctx context.Context, id int64, status TaskStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`,
		string(status), now.UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *tasksStore) StartTaskTimer(ctx context.Context, id int64, minutes int, startedAt, dueAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET sla_minutes=?, sla_started_at=?, sla_due_at=?, updated_at=?
		WHERE id=? AND sla_due_at IS NULL`,
		minutes, startedAt.UTC(), dueAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *tasksStore) FlagBreachedTasks(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET breached=1, updated_at=?
		WHERE sla_due_at IS NOT NULL AND status!='done' AND breached=0 AND sla_due_at < ?`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
