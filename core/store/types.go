package store

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type PonStatus string

const (
	PonNotStarted PonStatus = "not_started"
	PonInProgress PonStatus = "in_progress"
	PonCompleted  PonStatus = "completed"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

type TaskStep string

const (
	StepPermissions  TaskStep = "permissions"
	StepPolePlanting TaskStep = "pole_planting"
	StepCAC          TaskStep = "cac"
	StepStringing    TaskStep = "stringing"
	StepInvoicing    TaskStep = "invoicing"
)

var knownSteps = map[TaskStep]struct{}{
	StepPermissions:  {},
	StepPolePlanting: {},
	StepCAC:          {},
	StepStringing:    {},
	StepInvoicing:    {},
}

func ParseStep(raw string) (TaskStep, bool) {
	step := TaskStep(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := knownSteps[step]
	return step, ok
}

type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
	IncidentClosed       IncidentStatus = "closed"
)

type Severity string

const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

type Pon struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	OrgID        *int64    `json:"org_id,omitempty"`
	Ward         string    `json:"ward,omitempty"`
	Status       PonStatus `json:"status"`
	PolesPlanned int       `json:"poles_planned"`
	PolesPlanted int       `json:"poles_planted"`
	CenterLat    *float64  `json:"center_lat,omitempty"`
	CenterLng    *float64  `json:"center_lng,omitempty"`
	RadiusM      *float64  `json:"radius_m,omitempty"`
	PolygonJSON  string    `json:"polygon_json,omitempty"`
	BreachCount  int       `json:"breach_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Task struct {
	ID           int64      `json:"id"`
	PonID        int64      `json:"pon_id"`
	Step         TaskStep   `json:"step"`
	Status       TaskStatus `json:"status"`
	SLAMinutes   *int       `json:"sla_minutes,omitempty"`
	SLAStartedAt *time.Time `json:"sla_started_at,omitempty"`
	SLADueAt     *time.Time `json:"sla_due_at,omitempty"`
	Breached     bool       `json:"breached"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Incident struct {
	ID             int64          `json:"id"`
	DedupKey       string         `json:"dedup_key"`
	Source         string         `json:"source,omitempty"`
	DeviceID       *int64         `json:"device_id,omitempty"`
	PonID          *int64         `json:"pon_id,omitempty"`
	Ward           string         `json:"ward,omitempty"`
	Category       string         `json:"category,omitempty"`
	Severity       Severity       `json:"severity"`
	Status         IncidentStatus `json:"status"`
	Message        string         `json:"message,omitempty"`
	RepeatCount    int            `json:"repeat_count"`
	OpenedAt       time.Time      `json:"opened_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	TTRSeconds     *int64         `json:"ttr_seconds,omitempty"`
	LastSeenAt     time.Time      `json:"last_seen_at"`
	AssignedOrgID  *int64         `json:"assigned_org_id,omitempty"`
	SLAMinutes     *int           `json:"sla_minutes,omitempty"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	Breached       bool           `json:"breached"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type IncidentTimelineEvent struct {
	ID         int64     `json:"id"`
	IncidentID int64     `json:"incident_id"`
	EventType  string    `json:"event_type"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Device struct {
	ID        int64     `json:"id"`
	Hostname  string    `json:"hostname"`
	Ward      string    `json:"ward,omitempty"`
	PonID     *int64    `json:"pon_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Contract struct {
	ID           int64     `json:"id"`
	OrgID        int64     `json:"org_id"`
	Scope        string    `json:"scope"`
	Active       bool      `json:"active"`
	SLAP1Minutes int       `json:"sla_p1_minutes"`
	SLAP2Minutes int       `json:"sla_p2_minutes"`
	SLAP3Minutes int       `json:"sla_p3_minutes"`
	SLAP4Minutes int       `json:"sla_p4_minutes"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Contract) MinutesFor(sev Severity) int {
	if c == nil {
		return 0
	}
	switch sev {
	case SeverityP1:
		return c.SLAP1Minutes
	case SeverityP2:
		return c.SLAP2Minutes
	case SeverityP3:
		return c.SLAP3Minutes
	default:
		return c.SLAP4Minutes
	}
}

type Assignment struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Scope     string    `json:"scope"`
	PonID     *int64    `json:"pon_id,omitempty"`
	Ward      string    `json:"ward,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type MaintenanceWindow struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name,omitempty"`
	Scope     string     `json:"scope"`
	DeviceID  *int64     `json:"device_id,omitempty"`
	Ward      string     `json:"ward,omitempty"`
	StartsAt  time.Time  `json:"starts_at"`
	EndsAt    time.Time  `json:"ends_at"`
	Approval  string     `json:"approval"`
	IsActive  bool       `json:"is_active"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type WebhookEvent struct {
	ID        int64     `json:"id"`
	EventUID  string    `json:"event_uid"`
	Source    string    `json:"source"`
	RemoteIP  string    `json:"remote_ip"`
	HMACValid bool      `json:"hmac_valid"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CACCheck struct {
	ID         int64     `json:"id"`
	PonID      int64     `json:"pon_id"`
	PoleRef    string    `json:"pole_ref,omitempty"`
	Passed     bool      `json:"passed"`
	MeasuredAt time.Time `json:"measured_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type PonPhoto struct {
	ID         int64      `json:"id"`
	PonID      int64      `json:"pon_id"`
	Kind       string     `json:"kind"`
	TakenAt    *time.Time `json:"taken_at,omitempty"`
	Lat        *float64   `json:"lat,omitempty"`
	Lng        *float64   `json:"lng,omitempty"`
	EXIFValid  bool       `json:"exif_valid"`
	GeoValid   bool       `json:"geo_valid"`
	UploadedAt time.Time  `json:"uploaded_at"`
}

type StringingRun struct {
	ID         int64     `json:"id"`
	PonID      int64     `json:"pon_id"`
	Meters     float64   `json:"meters"`
	RecordedAt time.Time `json:"recorded_at"`
}

type TaskBrief struct {
	ID     int64      `json:"id"`
	Step   TaskStep   `json:"step"`
	Status TaskStatus `json:"status"`
}

// CACSummary is the aggregate the status engine reads instead of rows.
type CACSummary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
}
