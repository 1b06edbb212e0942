package store

import (
	"context"
	"errors"
	"fmt"

	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/model"
)

// Seed is the initial content of a fresh store.
type Seed struct {
	Users    []model.Record
	Settings model.Record
}

// Initialized reports whether the store was seeded.
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	_, err := s.backend.Get(ctx, model.InitializedKey)
	if errors.Is(err, kv.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Init writes seed into every collection the first time it runs and reports
// whether it did anything.
func (s *Store) Init(ctx context.Context, seed Seed) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.Initialized(ctx)
	if err != nil || ok {
		return false, err
	}

	now := model.Stamp(s.now())
	for _, c := range model.Collections {
		var recs []model.Record
		switch c {
		case model.Users:
			for i, u := range seed.Users {
				r, err := model.Normalize(u)
				if err != nil {
					return false, fmt.Errorf("seed user: %w", err)
				}
				if r.ID() == 0 {
					r["id"] = float64(i + 1)
				}
				r["created_at"] = now
				r["updated_at"] = now
				recs = append(recs, r)
			}
		case model.Settings:
			if seed.Settings != nil {
				r, err := model.Normalize(seed.Settings)
				if err != nil {
					return false, fmt.Errorf("seed settings: %w", err)
				}
				recs = []model.Record{r}
			}
		}
		if err := s.save(ctx, c, recs); err != nil {
			return false, err
		}
	}
	if err := s.backend.Set(ctx, model.InitializedKey, []byte("true")); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "store initialized", "users", len(seed.Users))
	return true, nil
}
