package jobs

import (
	"context"
	"fmt"
	"time"

	"fiberops/config"
	"fiberops/core/breach"
	"fiberops/core/geo"
	"fiberops/core/store"
	"fiberops/core/utils"
)

// RegisterAll wires the standard job set onto the scheduler using the
// configured intervals.
func RegisterAll(s *Scheduler, cfg config.AppConfig, scanner *breach.Scanner,
	pons store.PonsStore, evidence store.EvidenceStore, events store.WebhookEventsStore, logger *utils.Logger) error {
	sched := cfg.Scheduler
	if err := s.Register("breach-scan", fmt.Sprintf("@every %dm", minOne(sched.BreachScanMinutes)),
		func(ctx context.Context, now time.Time) error {
			_, err := scanner.Scan(ctx, now)
			return err
		}); err != nil {
		return err
	}
	if err := s.Register("photo-revalidate", fmt.Sprintf("@every %dh", minOne(sched.PhotoRevalidateHours)),
		RevalidatePhotos(cfg.Evidence, pons, evidence, logger)); err != nil {
		return err
	}
	return s.Register("webhook-retention", "@every 24h",
		func(ctx context.Context, now time.Time) error {
			cutoff := now.AddDate(0, 0, -minOne(sched.WebhookRetentionDays))
			purged, err := events.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			if purged > 0 {
				logger.Printf("webhook retention: purged %d events", purged)
			}
			return nil
		})
}

func minOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// RevalidatePhotos re-checks stored photos against their PON's current
// geofence. Editing a fence after upload can flip a photo's validity either
// way, which in turn changes what the status engine sees.
func RevalidatePhotos(cfg config.EvidenceConfig, pons store.PonsStore, evidence store.EvidenceStore, logger *utils.Logger) JobFunc {
	maxAge := time.Duration(cfg.PhotoRecencyHours) * time.Hour
	return func(ctx context.Context, now time.Time) error {
		photos, err := evidence.ListPhotosForRevalidation(ctx, 0)
		if err != nil {
			return err
		}
		fences := make(map[int64]geo.Fence)
		changed := 0
		for _, p := range photos {
			fence, ok := fences[p.PonID]
			if !ok {
				pon, err := pons.GetPon(ctx, p.PonID)
				if err != nil {
					return err
				}
				if pon == nil {
					continue
				}
				fence = geo.BuildFence(pon.PolygonJSON, pon.CenterLat, pon.CenterLng, pon.RadiusM)
				fences[p.PonID] = fence
			}
			exifValid := geo.RecencyValid(p.TakenAt, p.UploadedAt, maxAge)
			geoValid := p.Lat != nil && p.Lng != nil && fence.Contains(geo.Point{Lat: *p.Lat, Lng: *p.Lng})
			if exifValid != p.EXIFValid || geoValid != p.GeoValid {
				if err := evidence.SetPhotoValidity(ctx, p.ID, exifValid, geoValid); err != nil {
					return err
				}
				changed++
			}
		}
		if changed > 0 {
			logger.Printf("photo revalidation: %d photos flipped", changed)
		}
		return nil
	}
}
