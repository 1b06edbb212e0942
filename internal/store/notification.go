package store

import (
	"context"
	"slices"
	"time"

	"clinic-admin-api/internal/events"
	"clinic-admin-api/internal/model"
)

const (
	NotifyInfo    = "info"
	NotifyWarning = "warning"
	NotifySuccess = "success"
	NotifyError   = "error"
)

type Notification struct {
	Title   string
	Message string
	Type    string
}

// Notify prepends a notification. It is also the side effect of every
// Add/Update/Delete; failures there are logged and swallowed.
func (s *Store) Notify(ctx context.Context, n Notification) (model.Record, error) {
	start := time.Now()
	rec, err := s.prepend(ctx, n)
	s.metrics.ObserveStore(model.Notifications, "notify", start, err)
	if err != nil {
		return nil, err
	}
	s.metrics.NotificationEmitted()
	s.publish(ctx, events.TypeNotification, model.Notifications, rec)
	return rec, nil
}

func (s *Store) notify(ctx context.Context, n Notification) {
	if _, err := s.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "add notification failed", "err", err)
	}
}

func (s *Store) prepend(ctx context.Context, n Notification) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, model.Notifications)
	if err != nil {
		return nil, err
	}
	typ := n.Type
	if typ == "" {
		typ = NotifyInfo
	}
	rec := model.Record{
		"id":        float64(nextID(recs)),
		"title":     n.Title,
		"message":   n.Message,
		"type":      typ,
		"read":      false,
		"timestamp": model.Stamp(s.now()),
	}
	if err := s.save(ctx, model.Notifications, append([]model.Record{rec}, recs...)); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

func (s *Store) Notifications(ctx context.Context) ([]model.Record, error) {
	return s.List(ctx, model.Notifications, nil)
}

func (s *Store) UnreadCount(ctx context.Context) (int, error) {
	recs, err := s.List(ctx, model.Notifications, nil)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if !r.Bool("read") {
			n++
		}
	}
	return n, nil
}

// MarkNotificationsRead flags the given notifications, or all of them when no
// ids are passed, and returns how many changed.
func (s *Store) MarkNotificationsRead(ctx context.Context, ids ...int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, model.Notifications)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, r := range recs {
		if r.Bool("read") || (len(ids) > 0 && !slices.Contains(ids, r.ID())) {
			continue
		}
		r = r.Clone()
		r["read"] = true
		recs[i] = r
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.save(ctx, model.Notifications, recs)
}

// LogActivity appends to the activity log. It emits no notification.
func (s *Store) LogActivity(ctx context.Context, userID int64, action, description string) (model.Record, error) {
	rec, err := s.insert(ctx, model.Activities, map[string]any{
		"user_id":     userID,
		"action":      action,
		"description": description,
		"timestamp":   model.Stamp(s.now()),
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeActivity, model.Activities, rec)
	return rec, nil
}

// RecentActivities returns the last n activities, newest first.
func (s *Store) RecentActivities(ctx context.Context, n int) ([]model.Record, error) {
	recs, err := s.List(ctx, model.Activities, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, max(n, 0))
	for i := len(recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (s *Store) publish(ctx context.Context, typ, collection string, rec model.Record) {
	err := s.publisher.Publish(ctx, events.Event{Type: typ, Collection: collection, Record: rec, At: s.now()})
	if err != nil {
		s.logger.WarnContext(ctx, "publish event failed", "type", typ, "err", err)
	}
}
