package store

import (
	"context"
	"fmt"
	"strings"

	"clinic-admin-api/internal/model"
)

func (s *Store) UserByUsername(ctx context.Context, username string) (model.Record, error) {
	return s.findOne(ctx, model.Users, Filters{"username": Predicate(func(v any) bool {
		u, _ := v.(string)
		return username != "" && u == username
	})}, "username "+username)
}

// UserByEmail compares emails case-insensitively.
func (s *Store) UserByEmail(ctx context.Context, email string) (model.Record, error) {
	return s.findOne(ctx, model.Users, Filters{"email": Predicate(func(v any) bool {
		e, _ := v.(string)
		return email != "" && strings.EqualFold(e, email)
	})}, "email "+email)
}

func (s *Store) UserByID(ctx context.Context, id int64) (model.Record, error) {
	return s.Get(ctx, model.Users, id)
}

func (s *Store) findOne(ctx context.Context, collection string, f Filters, what string) (model.Record, error) {
	recs, err := s.List(ctx, collection, f)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, what, ErrNotFound)
	}
	return recs[0], nil
}
