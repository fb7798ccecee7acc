// Package breach holds the periodic SLA sweep. Each entity type is one
// set-based statement; a failure in one sweep never blocks the other.
package breach

import (
	"context"
	"time"

	"fiberops/core/store"
	"fiberops/core/utils"
)

type Scanner struct {
	tasks     store.TasksStore
	incidents store.IncidentsStore
	pons      store.PonsStore
	logger    *utils.Logger
}

func NewScanner(tasks store.TasksStore, incidents store.IncidentsStore, pons store.PonsStore, logger *utils.Logger) *Scanner {
	return &Scanner{tasks: tasks, incidents: incidents, pons: pons, logger: logger}
}

// Result reports what one pass flagged.
type Result struct {
	TasksFlagged     int64
	IncidentsFlagged int
}

// Scan flips the breached flag on every overdue task and incident. The flag
// is monotonic: once set it stays set until the timing window is reset, so
// repeated scans over the same rows are no-ops. Returns the last error seen;
// partial results are still reported.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (Result, error) {
	var res Result
	var lastErr error

	flagged, err := s.tasks.FlagBreachedTasks(ctx, now)
	if err != nil {
		s.logger.Errorf("breach scan: tasks sweep: %v", err)
		lastErr = err
	} else {
		res.TasksFlagged = flagged
	}

	breached, err := s.incidents.FlagBreachedIncidents(ctx, now)
	if err != nil {
		s.logger.Errorf("breach scan: incidents sweep: %v", err)
		lastErr = err
	} else {
		res.IncidentsFlagged = len(breached)
		s.bumpPonCounters(ctx, breached)
	}

	if res.TasksFlagged > 0 || res.IncidentsFlagged > 0 {
		s.logger.Printf("breach scan: flagged %d tasks, %d incidents", res.TasksFlagged, res.IncidentsFlagged)
	}
	return res, lastErr
}

// bumpPonCounters increments the advisory breach counter on PONs hit by a
// newly breached P1. Best effort: a failure here is logged and dropped.
func (s *Scanner) bumpPonCounters(ctx context.Context, breached []store.BreachedIncident) {
	var ponIDs []int64
	for _, b := range breached {
		if b.Severity == store.SeverityP1 && b.PonID != nil {
			ponIDs = append(ponIDs, *b.PonID)
		}
	}
	if len(ponIDs) == 0 {
		return
	}
	if err := s.pons.IncrementBreachCount(ctx, ponIDs); err != nil {
		s.logger.Errorf("breach scan: pon counters: %v", err)
	}
}
