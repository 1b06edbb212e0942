package store

import (
	"context"
	"time"

	"clinic-admin-api/internal/model"
)

// DefaultSettings are written on first start unless a seed file overrides them.
func DefaultSettings() model.Record {
	return model.Record{
		"clinic_name": "Medical Clinic",
		"address":     "Riyadh, Saudi Arabia",
		"phone":       "0112345678",
		"email":       "info@clinic.com",
		"currency":    "SAR",
		"tax_rate":    float64(15),
		"working_hours": map[string]any{
			"start": "08:00",
			"end":   "17:00",
		},
	}
}

// Settings returns the singleton settings record, or an empty one.
func (s *Store) Settings(ctx context.Context) (model.Record, error) {
	recs, err := s.List(ctx, model.Settings, nil)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return model.Record{}, nil
	}
	return recs[0], nil
}

func (s *Store) UpdateSettings(ctx context.Context, fields map[string]any) (model.Record, error) {
	start := time.Now()
	rec, err := s.updateSettings(ctx, fields)
	s.metrics.ObserveStore(model.Settings, "update", start, err)
	return rec, err
}

func (s *Store) updateSettings(ctx context.Context, fields map[string]any) (model.Record, error) {
	patch, err := model.Normalize(fields)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, model.Settings)
	if err != nil {
		return nil, err
	}
	cur := model.Record{}
	if len(recs) > 0 {
		cur = recs[0].Clone()
	}
	for k, v := range patch {
		cur[k] = v
	}
	cur["updated_at"] = model.Stamp(s.now())
	// the singleton never grows past one element
	if err := s.save(ctx, model.Settings, []model.Record{cur}); err != nil {
		return nil, err
	}
	return cur.Clone(), nil
}
