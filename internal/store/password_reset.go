package store

import (
	"context"
	"time"

	"clinic-admin-api/internal/model"
)

// CreatePasswordReset records a reset request. Only the token hash is stored.
func (s *Store) CreatePasswordReset(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (model.Record, error) {
	return s.insert(ctx, model.PasswordResets, map[string]any{
		"user_id":    userID,
		"token_hash": tokenHash,
		"expires_at": model.Stamp(expiresAt),
		"used":       false,
	})
}

// PasswordResetByHash returns the unused reset holding tokenHash.
func (s *Store) PasswordResetByHash(ctx context.Context, tokenHash string) (model.Record, error) {
	return s.findOne(ctx, model.PasswordResets, Filters{
		"token_hash": tokenHash,
		"used":       false,
	}, "token")
}

func (s *Store) MarkPasswordResetUsed(ctx context.Context, id int64) error {
	_, err := s.merge(ctx, model.PasswordResets, id, map[string]any{"used": true})
	return err
}

// RevokePasswordResets marks every open reset of userID used.
func (s *Store) RevokePasswordResets(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, model.PasswordResets)
	if err != nil {
		return err
	}
	changed := false
	now := model.Stamp(s.now())
	for i, r := range recs {
		if r.Bool("used") || r.Number("user_id") != float64(userID) {
			continue
		}
		r = r.Clone()
		r["used"] = true
		r["updated_at"] = now
		recs[i] = r
		changed = true
	}
	if !changed {
		return nil
	}
	return s.save(ctx, model.PasswordResets, recs)
}
