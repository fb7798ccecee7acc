package config

type AppConfig struct {
	DBDriver   string `yaml:"db_driver" env:"FIBEROPS_DB_DRIVER" env-default:"sqlite"`
	DBURL      string `yaml:"db_url" env:"FIBEROPS_DB_URL" env-default:"data/fiberops.db"`
	ListenAddr string `yaml:"listen_addr" env:"FIBEROPS_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	// APIToken is the full-access token. APITokens adds scoped tokens as
	// "token=role1;role2" entries.
	APIToken  string   `yaml:"api_token" env:"FIBEROPS_API_TOKEN"`
	APITokens []string `yaml:"api_tokens" env:"FIBEROPS_API_TOKENS" env-separator:","`

	SLA       SLAConfig       `yaml:"sla"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Evidence  EvidenceConfig  `yaml:"evidence"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Pons      PonsConfig      `yaml:"pons"`
}

// SLAConfig carries the per-step minute overrides consulted by the SLA clock
// after a task-level override and before the built-in defaults.
type SLAConfig struct {
	PermissionsMinutes  int `yaml:"permissions_minutes" env:"FIBEROPS_SLA_PERMISSIONS_MINUTES" env-default:"0"`
	PolePlantingMinutes int `yaml:"pole_planting_minutes" env:"FIBEROPS_SLA_POLE_PLANTING_MINUTES" env-default:"0"`
	CACMinutes          int `yaml:"cac_minutes" env:"FIBEROPS_SLA_CAC_MINUTES" env-default:"0"`
	StringingMinutes    int `yaml:"stringing_minutes" env:"FIBEROPS_SLA_STRINGING_MINUTES" env-default:"0"`
	InvoicingMinutes    int `yaml:"invoicing_minutes" env:"FIBEROPS_SLA_INVOICING_MINUTES" env-default:"0"`

	P1Minutes int `yaml:"p1_minutes" env:"FIBEROPS_SLA_P1_MINUTES" env-default:"120"`
	P2Minutes int `yaml:"p2_minutes" env:"FIBEROPS_SLA_P2_MINUTES" env-default:"240"`
	P3Minutes int `yaml:"p3_minutes" env:"FIBEROPS_SLA_P3_MINUTES" env-default:"1440"`
	P4Minutes int `yaml:"p4_minutes" env:"FIBEROPS_SLA_P4_MINUTES" env-default:"4320"`
}

type WebhooksConfig struct {
	HMACSecret          string   `yaml:"hmac_secret" env:"FIBEROPS_WEBHOOK_HMAC_SECRET"`
	IPAllowlist         []string `yaml:"ip_allowlist" env:"FIBEROPS_WEBHOOK_IP_ALLOWLIST" env-separator:","`
	TrustedProxies      []string `yaml:"trusted_proxies" env:"FIBEROPS_WEBHOOK_TRUSTED_PROXIES" env-separator:","`
	SuppressMaintenance bool     `yaml:"suppress_maintenance" env:"FIBEROPS_WEBHOOK_SUPPRESS_MAINTENANCE" env-default:"true"`
}

type EvidenceConfig struct {
	PhotoRecencyHours int `yaml:"photo_recency_hours" env:"FIBEROPS_PHOTO_RECENCY_HOURS" env-default:"24"`
}

type SchedulerConfig struct {
	Enabled               bool `yaml:"enabled" env:"FIBEROPS_SCHEDULER_ENABLED" env-default:"true"`
	BreachScanMinutes     int  `yaml:"breach_scan_minutes" env:"FIBEROPS_BREACH_SCAN_MINUTES" env-default:"15"`
	PhotoRevalidateHours  int  `yaml:"photo_revalidate_hours" env:"FIBEROPS_PHOTO_REVALIDATE_HOURS" env-default:"6"`
	WebhookRetentionDays  int  `yaml:"webhook_retention_days" env:"FIBEROPS_WEBHOOK_RETENTION_DAYS" env-default:"30"`
	WorkQueueCacheSeconds int  `yaml:"work_queue_cache_seconds" env:"FIBEROPS_WORK_QUEUE_CACHE_SECONDS" env-default:"10"`
}

type PonsConfig struct {
	// CompletionPolicy selects the canonical PON completion rule: "evidence"
	// (poles/CAC/stringing/photos, the default) or "tasks" (all tasks done
	// plus minimal evidence).
	CompletionPolicy   string   `yaml:"completion_policy" env:"FIBEROPS_PON_COMPLETION_POLICY" env-default:"evidence"`
	RequiredPhotoKinds []string `yaml:"required_photo_kinds" env:"FIBEROPS_PON_REQUIRED_PHOTO_KINDS" env-separator:"," env-default:"dig,plant,cac,stringing"`
	MinStringingMeters float64  `yaml:"min_stringing_meters" env:"FIBEROPS_PON_MIN_STRINGING_METERS" env-default:"0"`
}
