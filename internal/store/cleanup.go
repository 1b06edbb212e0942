package store

import (
	"context"
	"time"

	"clinic-admin-api/internal/model"
)

var cleanupTables = []string{model.Appointments, model.Notifications}

// recordDate picks the first present of created_at, timestamp and date.
func recordDate(r model.Record) (time.Time, bool) {
	for _, f := range []string{"created_at", "timestamp", "date"} {
		if r.String(f) != "" {
			return r.Time(f)
		}
	}
	return time.Time{}, false
}

// Cleanup drops appointments and notifications dated before now-days and
// returns how many records went. Records without a readable date stay.
func (s *Store) Cleanup(ctx context.Context, days int) (int, error) {
	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -days)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for _, t := range cleanupTables {
		recs, err := s.load(ctx, t)
		if err != nil {
			s.metrics.ObserveStore(t, "cleanup", start, err)
			return removed, err
		}
		kept := make([]model.Record, 0, len(recs))
		for _, r := range recs {
			if d, ok := recordDate(r); ok && d.Before(cutoff) {
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == len(recs) {
			continue
		}
		err = s.save(ctx, t, kept)
		s.metrics.ObserveStore(t, "cleanup", start, err)
		if err != nil {
			return removed, err
		}
		removed += len(recs) - len(kept)
	}
	s.logger.InfoContext(ctx, "cleanup done", "days", days, "removed", removed)
	return removed, nil
}
