// Package store is the record store: generic CRUD, filtering, search and
// aggregates over named collections. Each collection persists as a single JSON
// array under one backend key and is rewritten on every mutation.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"clinic-admin-api/internal/events"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/metrics"
	"clinic-admin-api/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrCorrupt           = errors.New("corrupt collection")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownOp         = errors.New("unknown aggregate operation")
)

type Store struct {
	backend   kv.Backend
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher events.Publisher
	now       func() time.Time

	// serializes read-modify-write cycles inside this process only.
	mu sync.Mutex
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.metrics = m } }
func WithPublisher(p events.Publisher) Option { return func(s *Store) { s.publisher = p } }
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func New(backend kv.Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		logger:    slog.Default(),
		publisher: events.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now is the store clock, shared with callers that stamp records themselves.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) Logger() *slog.Logger { return s.logger }

func checkCollection(c string) error {
	if !slices.Contains(model.Collections, c) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}

// load returns the raw collection. A missing key is an empty collection; an
// unreadable payload is ErrCorrupt, never silently empty.
func (s *Store) load(ctx context.Context, collection string) ([]model.Record, error) {
	b, err := s.backend.Get(ctx, model.Key(collection))
	if errors.Is(err, kv.ErrNotExist) {
		return []model.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	return decodeCollection(collection, b)
}

func decodeCollection(collection string, b []byte) ([]model.Record, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return []model.Record{}, nil
	}
	// older data keeps the settings singleton as a bare object.
	if b[0] == '{' {
		var r model.Record
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrCorrupt, collection, err)
		}
		return []model.Record{r}, nil
	}
	var recs []model.Record
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCorrupt, collection, err)
	}
	if recs == nil {
		recs = []model.Record{}
	}
	return recs, nil
}

func (s *Store) save(ctx context.Context, collection string, recs []model.Record) error {
	if recs == nil {
		recs = []model.Record{}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if err := s.backend.Set(ctx, model.Key(collection), b); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}

func nextID(recs []model.Record) int64 {
	var top int64
	for _, r := range recs {
		if id := r.ID(); id > top {
			top = id
		}
	}
	return top + 1
}

func indexOf(recs []model.Record, id int64) int {
	for i, r := range recs {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// Add stores fields as a new record with the next id and fresh timestamps,
// then emits a notification about it.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (model.Record, error) {
	start := time.Now()
	rec, err := s.insert(ctx, collection, fields)
	s.metrics.ObserveStore(collection, "add", start, err)
	if err != nil {
		s.logger.ErrorContext(ctx, "add record failed", "collection", collection, "err", err)
		return nil, err
	}
	if collection != model.Notifications {
		s.notify(ctx, Notification{
			Title:   "New record",
			Message: "New record added to " + Label(collection),
			Type:    NotifyInfo,
		})
	}
	return rec, nil
}

// insert is Add without the notification side effect.
func (s *Store) insert(ctx context.Context, collection string, fields map[string]any) (model.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rec, err := model.Normalize(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	now := model.Stamp(s.now())
	// ids are kept as float64 so fresh records look like decoded ones.
	rec["id"] = float64(nextID(recs))
	rec["created_at"] = now
	rec["updated_at"] = now
	if err := s.save(ctx, collection, append(recs, rec)); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Update shallow-merges fields into record id. The id itself never changes.
func (s *Store) Update(ctx context.Context, collection string, id int64, fields map[string]any) (model.Record, error) {
	start := time.Now()
	rec, err := s.merge(ctx, collection, id, fields)
	s.metrics.ObserveStore(collection, "update", start, err)
	if err != nil {
		return nil, err
	}
	if collection != model.Notifications {
		s.notify(ctx, Notification{
			Title:   "Record updated",
			Message: "Record updated in " + Label(collection),
			Type:    NotifyInfo,
		})
	}
	return rec, nil
}

func (s *Store) merge(ctx context.Context, collection string, id int64, fields map[string]any) (model.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	patch, err := model.Normalize(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		return nil, fmt.Errorf("%s %d: %w", collection, id, ErrNotFound)
	}
	rec := recs[i].Clone()
	for k, v := range patch {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	rec["updated_at"] = model.Stamp(s.now())
	recs[i] = rec
	if err := s.save(ctx, collection, recs); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Delete removes record id; ErrNotFound leaves the collection untouched.
func (s *Store) Delete(ctx context.Context, collection string, id int64) error {
	start := time.Now()
	err := s.remove(ctx, collection, id)
	s.metrics.ObserveStore(collection, "delete", start, err)
	if err != nil {
		return err
	}
	if collection != model.Notifications {
		s.notify(ctx, Notification{
			Title:   "Record deleted",
			Message: "Record deleted from " + Label(collection),
			Type:    NotifyWarning,
		})
	}
	return nil
}

func (s *Store) remove(ctx context.Context, collection string, id int64) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(ctx, collection)
	if err != nil {
		return err
	}
	kept := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return fmt.Errorf("%s %d: %w", collection, id, ErrNotFound)
	}
	return s.save(ctx, collection, kept)
}

func (s *Store) Get(ctx context.Context, collection string, id int64) (model.Record, error) {
	start := time.Now()
	recs, err := s.list(ctx, collection, nil)
	if err != nil {
		s.metrics.ObserveStore(collection, "get", start, err)
		return nil, err
	}
	i := indexOf(recs, id)
	if i < 0 {
		err = fmt.Errorf("%s %d: %w", collection, id, ErrNotFound)
	}
	s.metrics.ObserveStore(collection, "get", start, err)
	if err != nil {
		return nil, err
	}
	return recs[i], nil
}

// List returns the records that pass every filter, in storage order.
func (s *Store) List(ctx context.Context, collection string, filters Filters) ([]model.Record, error) {
	start := time.Now()
	out, err := s.list(ctx, collection, filters)
	s.metrics.ObserveStore(collection, "list", start, err)
	return out, err
}

func (s *Store) list(ctx context.Context, collection string, filters Filters) ([]model.Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	recs, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return recs, nil
	}
	out := make([]model.Record, 0, len(recs))
	for _, r := range recs {
		if filters.match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Search matches query case-insensitively against the named fields, or
// against every string field when none are named. A blank query matches all.
func (s *Store) Search(ctx context.Context, collection, query string, fields ...string) ([]model.Record, error) {
	start := time.Now()
	recs, err := s.list(ctx, collection, nil)
	s.metrics.ObserveStore(collection, "search", start, err)
	if err != nil {
		return nil, err
	}
	return SearchRecords(recs, query, fields...), nil
}

// SearchRecords applies Search semantics to an in-memory slice.
func SearchRecords(recs []model.Record, query string, fields ...string) []model.Record {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return recs
	}
	out := make([]model.Record, 0)
	for _, r := range recs {
		if matchesQuery(r, term, fields) {
			out = append(out, r)
		}
	}
	return out
}

type AggregateOp string

const (
	OpCount AggregateOp = "count"
	OpSum   AggregateOp = "sum"
	OpAvg   AggregateOp = "avg"
	OpMax   AggregateOp = "max"
	OpMin   AggregateOp = "min"
)

// Aggregate folds field over the collection. Missing or non-numeric values
// count as 0 and an empty collection yields 0 for every op.
func (s *Store) Aggregate(ctx context.Context, collection, field string, op AggregateOp) (float64, error) {
	start := time.Now()
	recs, err := s.list(ctx, collection, nil)
	if err == nil {
		var v float64
		v, err = AggregateRecords(recs, field, op)
		s.metrics.ObserveStore(collection, "aggregate", start, err)
		return v, err
	}
	s.metrics.ObserveStore(collection, "aggregate", start, err)
	return 0, err
}

func AggregateRecords(recs []model.Record, field string, op AggregateOp) (float64, error) {
	switch op {
	case OpCount:
		return float64(len(recs)), nil
	case OpSum, OpAvg, OpMax, OpMin:
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	sum := 0.0
	lo, hi := recs[0].Number(field), recs[0].Number(field)
	for _, r := range recs {
		v := r.Number(field)
		sum += v
		lo = min(lo, v)
		hi = max(hi, v)
	}
	switch op {
	case OpSum:
		return sum, nil
	case OpAvg:
		return sum / float64(len(recs)), nil
	case OpMax:
		return hi, nil
	default:
		return lo, nil
	}
}

// Label is the display name of a collection.
func Label(collection string) string {
	switch collection {
	case model.Doctors:
		return "Doctors"
	case model.Patients:
		return "Patients"
	case model.Appointments:
		return "Appointments"
	case model.Prescriptions:
		return "Prescriptions"
	case model.Inventory:
		return "Inventory"
	case model.Bills:
		return "Bills"
	case model.Users:
		return "Users"
	}
	return collection
}
