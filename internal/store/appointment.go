package store

import (
	"context"
	"slices"
	"time"

	"clinic-admin-api/internal/model"
)

// AppointmentsOn returns the appointments whose date is day (2006-01-02).
func (s *Store) AppointmentsOn(ctx context.Context, day string) ([]model.Record, error) {
	return s.List(ctx, model.Appointments, Filters{"date": Predicate(func(v any) bool {
		d, _ := v.(string)
		return OnDay(d, day)
	})})
}

// OnDay reports whether the date or timestamp d falls on day (2006-01-02).
func OnDay(d, day string) bool {
	return len(d) >= 10 && d[:10] == day
}

// AppointmentStart combines the date and time fields of an appointment.
// Values without an offset are wall-clock times in loc.
func AppointmentStart(r model.Record, loc *time.Location) (time.Time, bool) {
	date := r.String("date")
	if len(date) > 10 {
		return model.ParseTimeIn(date, loc)
	}
	if tm := r.String("time"); tm != "" {
		if t, ok := model.ParseTimeIn(date+"T"+tm, loc); ok {
			return t, true
		}
	}
	return model.ParseTimeIn(date, loc)
}

// UpcomingAppointments returns up to n scheduled or confirmed appointments
// starting at or after now, soonest first.
func (s *Store) UpcomingAppointments(ctx context.Context, now time.Time, n int) ([]model.Record, error) {
	recs, err := s.List(ctx, model.Appointments, Filters{"status": Predicate(func(v any) bool {
		st, _ := v.(string)
		return st == model.StatusScheduled || st == model.StatusConfirmed
	})})
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.Record{}, nil
	}
	type item struct {
		at  time.Time
		rec model.Record
	}
	var items []item
	for _, r := range recs {
		at, ok := AppointmentStart(r, now.Location())
		if !ok || at.Before(now) {
			continue
		}
		items = append(items, item{at, r})
	}
	slices.SortStableFunc(items, func(a, b item) int { return a.at.Compare(b.at) })
	items = items[:min(n, len(items))]
	out := make([]model.Record, 0, len(items))
	for _, it := range items {
		out = append(out, it.rec)
	}
	return out, nil
}
