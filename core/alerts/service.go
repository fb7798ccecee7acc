// Package alerts is the monitoring intake: it authenticates vendor webhook
// deliveries, normalizes their payloads and turns them into incidents.
package alerts

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"

	"fiberops/config"
	"fiberops/core/sla"
	"fiberops/core/store"
	"fiberops/core/utils"
)

// Outcome is the business result of one delivery. Everything except the
// auth outcomes answers HTTP 200: monitoring systems retry on errors and a
// suppressed or deduplicated alert is not an error.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeDedup        Outcome = "dedup"
	OutcomeSuppressed   Outcome = "suppressed"
	OutcomeResolved     Outcome = "resolved"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeBadPayload   Outcome = "bad_payload"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeForbidden    Outcome = "forbidden"
)

type Service struct {
	cfg         config.WebhooksConfig
	events      store.WebhookEventsStore
	incidents   store.IncidentsStore
	contracts   store.ContractsStore
	maintenance store.MaintenanceStore
	clock       *sla.Clock
	logger      *utils.Logger
}

func NewService(cfg config.WebhooksConfig, events store.WebhookEventsStore, incidents store.IncidentsStore,
	contracts store.ContractsStore, maintenance store.MaintenanceStore, clock *sla.Clock, logger *utils.Logger) *Service {
	return &Service{
		cfg:         cfg,
		events:      events,
		incidents:   incidents,
		contracts:   contracts,
		maintenance: maintenance,
		clock:       clock,
		logger:      logger,
	}
}

// Result is what the webhook handler reports back to the caller.
type Result struct {
	Outcome  Outcome
	Incident *store.Incident
}

// HandleDelivery processes one webhook request. The raw delivery is recorded
// before any auth decision, so rejected requests still show up in the event
// log with their hmac_valid flag.
func (s *Service) HandleDelivery(ctx context.Context, source string, r *http.Request, body []byte, now time.Time) (Result, error) {
	remoteIP := ClientIP(r, s.cfg.TrustedProxies)
	hmacValid := VerifyHMAC(s.cfg.HMACSecret, r, body)

	alert, parseErr := ParseAlert(body)

	eventUID := ""
	if alert != nil {
		eventUID = alert.EventUID
	}
	if eventUID == "" {
		uid, err := uuid.NewV4()
		if err != nil {
			return Result{}, fmt.Errorf("event uid: %w", err)
		}
		eventUID = uid.String()
	}
	ev := &store.WebhookEvent{EventUID: eventUID, Source: source, RemoteIP: remoteIP, HMACValid: hmacValid, Body: string(body)}
	if _, err := s.events.RecordEvent(ctx, ev); err != nil {
		return Result{}, fmt.Errorf("record webhook event: %w", err)
	}

	if !AllowedIP(remoteIP, s.cfg.IPAllowlist) {
		s.logger.Printf("webhook %s: rejected ip %s", source, remoteIP)
		return Result{Outcome: OutcomeForbidden}, nil
	}
	if !hmacValid {
		s.logger.Printf("webhook %s: bad signature from %s", source, remoteIP)
		return Result{Outcome: OutcomeUnauthorized}, nil
	}
	if parseErr != nil {
		s.logger.Printf("webhook %s: bad payload: %v", source, parseErr)
		return Result{Outcome: OutcomeBadPayload}, nil
	}

	return s.process(ctx, source, alert, now)
}

func (s *Service) process(ctx context.Context, source string, alert *Alert, now time.Time) (Result, error) {
	device, err := s.contracts.FindDeviceByHostname(ctx, alert.Hostname)
	if err != nil {
		return Result{}, err
	}
	var deviceID, ponID *int64
	ward := ""
	if device != nil {
		deviceID = &device.ID
		ponID = device.PonID
		ward = device.Ward
	}

	if alert.Clearing {
		inc, err := s.incidents.ResolveActiveByDedupKey(ctx, alert.DedupKey, now)
		if err != nil {
			return Result{}, err
		}
		if inc == nil {
			return Result{Outcome: OutcomeIgnored}, nil
		}
		s.addTimeline(ctx, inc.ID, "auto_resolved", fmt.Sprintf("clear received from %s", source))
		return Result{Outcome: OutcomeResolved, Incident: inc}, nil
	}

	if s.cfg.SuppressMaintenance {
		win, err := s.maintenance.ActiveWindowFor(ctx, deviceID, ward, now)
		if err != nil {
			return Result{}, err
		}
		if win != nil {
			s.logger.Printf("webhook %s: suppressed %s (maintenance window %d)", source, alert.DedupKey, win.ID)
			return Result{Outcome: OutcomeSuppressed}, nil
		}
	}

	inc := &store.Incident{
		DedupKey: alert.DedupKey,
		Source:   source,
		DeviceID: deviceID,
		PonID:    ponID,
		Ward:     ward,
		Category: alert.Category,
		Severity: alert.Severity,
		Message:  alert.Message,
	}
	saved, created, err := s.incidents.UpsertActiveIncident(ctx, inc, now)
	if err != nil {
		return Result{}, err
	}
	if !created {
		s.addTimeline(ctx, saved.ID, "repeated", fmt.Sprintf("repeat #%d from %s", saved.RepeatCount, source))
		return Result{Outcome: OutcomeDedup, Incident: saved}, nil
	}

	s.addTimeline(ctx, saved.ID, "opened", fmt.Sprintf("opened from %s alert %s", source, alert.DedupKey))
	s.route(ctx, saved, now)
	// Routing may have written assignment and SLA fields; re-read for the caller.
	if fresh, err := s.incidents.GetIncident(ctx, saved.ID); err == nil && fresh != nil {
		saved = fresh
	}
	return Result{Outcome: OutcomeCreated, Incident: saved}, nil
}

// route assigns the incident to the covering organization and starts its SLA
// clock. Routing failure never fails the intake: the incident exists either
// way and an operator can route it by hand.
func (s *Service) route(ctx context.Context, inc *store.Incident, now time.Time) {
	assignment, err := s.contracts.FindAssignment(ctx, inc.PonID, inc.Ward)
	if err != nil {
		s.logger.Errorf("incident %d: routing lookup: %v", inc.ID, err)
		s.addTimeline(ctx, inc.ID, "routing_failed", "assignment lookup failed")
		return
	}
	if assignment == nil {
		s.addTimeline(ctx, inc.ID, "unrouted", "no assignment covers this incident")
		return
	}
	minutes, err := s.clock.ResolveIncidentMinutes(ctx, &assignment.OrgID, inc.Severity)
	if err != nil {
		s.logger.Errorf("incident %d: sla resolution: %v", inc.ID, err)
		s.addTimeline(ctx, inc.ID, "routing_failed", "sla resolution failed")
		return
	}
	due := now.UTC().Add(time.Duration(minutes) * time.Minute)
	if err := s.incidents.SetIncidentRouting(ctx, inc.ID, assignment.OrgID, minutes, due); err != nil {
		s.logger.Errorf("incident %d: routing write: %v", inc.ID, err)
		s.addTimeline(ctx, inc.ID, "routing_failed", "routing write failed")
		return
	}
	s.addTimeline(ctx, inc.ID, "routed", fmt.Sprintf("assigned to org %d, sla %d min", assignment.OrgID, minutes))
}

func (s *Service) addTimeline(ctx context.Context, incidentID int64, eventType, message string) {
	if _, err := s.incidents.AddTimeline(ctx, &store.IncidentTimelineEvent{
		IncidentID: incidentID,
		EventType:  eventType,
		Message:    message,
	}); err != nil {
		s.logger.Errorf("incident %d: timeline %s: %v", incidentID, eventType, err)
	}
}
