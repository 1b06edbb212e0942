package clinic

import (
	"context"
	"fmt"
	"log/slog"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
	"clinic-admin-api/internal/validate"
)

type Service struct {
	store    *store.Store
	registry *Registry
	logger   *slog.Logger
}

// New serves the sections of reg, or DefaultRegistry when reg is nil.
func New(st *store.Store, reg *Registry) *Service {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Service{store: st, registry: reg, logger: st.Logger()}
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) section(id string, c *auth.Claims, write bool) (*Section, error) {
	sec, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	ok := sec.CanRead(c)
	if write {
		ok = sec.CanWrite(c)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", auth.ErrPermissionDenied, id)
	}
	return sec, nil
}

func (s *Service) logActivity(ctx context.Context, c *auth.Claims, action, desc string) {
	if _, err := s.store.LogActivity(ctx, c.UserID, action, desc); err != nil {
		s.logger.WarnContext(ctx, "log activity failed", "action", action, "err", err)
	}
}

// List returns one page of a section filtered, searched and sorted per v.
func (s *Service) List(ctx context.Context, c *auth.Claims, sectionID string, v View) (Page, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return Page{}, err
	}
	v = v.normalized()
	recs, err := s.store.List(ctx, sec.Collection, v.filters(sec))
	if err != nil {
		return Page{}, err
	}
	recs = store.SearchRecords(recs, v.Search, sec.SearchFields...)
	sortRecords(recs, v.SortBy, v.Desc)
	return paginate(recs, v), nil
}

func (s *Service) Get(ctx context.Context, c *auth.Claims, sectionID string, id int64) (model.Record, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, sec.Collection, id)
}

func (s *Service) Create(ctx context.Context, c *auth.Claims, sectionID string, fields map[string]any) (model.Record, error) {
	sec, err := s.section(sectionID, c, true)
	if err != nil {
		return nil, err
	}
	rec, err := model.Normalize(fields)
	if err != nil {
		return nil, err
	}
	delete(rec, "id")
	if sec.DefaultStatus != "" && rec.String("status") == "" {
		rec["status"] = sec.DefaultStatus
	}
	if err := sec.validate(rec, validate.Env{Now: s.store.Now(), New: true}); err != nil {
		return nil, err
	}
	if sec.prepare != nil {
		if err := sec.prepare(ctx, s, rec); err != nil {
			return nil, err
		}
	}
	rec["created_by"] = c.UserID
	out, err := s.store.Add(ctx, sec.Collection, rec)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, c, sec.Noun+"_add", fmt.Sprintf("Added %s #%d", sec.Noun, out.ID()))
	return out, nil
}

// Update validates the merged record before writing the patch.
func (s *Service) Update(ctx context.Context, c *auth.Claims, sectionID string, id int64, fields map[string]any) (model.Record, error) {
	sec, err := s.section(sectionID, c, true)
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Get(ctx, sec.Collection, id)
	if err != nil {
		return nil, err
	}
	patch, err := model.Normalize(fields)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	for k, v := range patch {
		next[k] = v
	}
	if err := sec.validate(next, validate.Env{Now: s.store.Now()}); err != nil {
		return nil, err
	}
	out, err := s.store.Update(ctx, sec.Collection, id, patch)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, c, sec.Noun+"_update", fmt.Sprintf("Updated %s #%d", sec.Noun, id))
	return out, nil
}

func (s *Service) Delete(ctx context.Context, c *auth.Claims, sectionID string, id int64) error {
	sec, err := s.section(sectionID, c, true)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, sec.Collection, id); err != nil {
		return err
	}
	s.logActivity(ctx, c, sec.Noun+"_delete", fmt.Sprintf("Deleted %s #%d", sec.Noun, id))
	return nil
}

// Search runs a free text query over the section's search fields.
func (s *Service) Search(ctx context.Context, c *auth.Claims, sectionID, query string) ([]model.Record, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, sec.Collection, query, sec.SearchFields...)
}

// GlobalSearch searches every section the caller may read. Sections without
// hits are left out.
func (s *Service) GlobalSearch(ctx context.Context, c *auth.Claims, query string) (map[string][]model.Record, error) {
	out := make(map[string][]model.Record)
	for _, sec := range s.registry.Sections() {
		if !sec.CanRead(c) {
			continue
		}
		recs, err := s.store.Search(ctx, sec.Collection, query, sec.SearchFields...)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			out[sec.ID] = recs
		}
	}
	return out, nil
}

// Export is a downloadable rendering of a section.
type Export struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func (s *Service) Export(ctx context.Context, c *auth.Claims, sectionID string, f store.Format) (Export, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return Export{}, err
	}
	if f == "" {
		f = store.FormatJSON
	}
	data, err := s.store.Export(ctx, sec.Collection, f)
	if err != nil {
		return Export{}, err
	}
	s.logActivity(ctx, c, sec.Noun+"_export", fmt.Sprintf("Exported %s as %s", sec.Title, f))
	return Export{
		Filename:    fmt.Sprintf("%s_%s.%s", sec.ID, s.store.Now().Format("2006-01-02"), f),
		ContentType: f.ContentType(),
		Data:        data,
	}, nil
}

// Aggregate folds a numeric field over a section.
func (s *Service) Aggregate(ctx context.Context, c *auth.Claims, sectionID, field string, op store.AggregateOp) (float64, error) {
	sec, err := s.section(sectionID, c, false)
	if err != nil {
		return 0, err
	}
	return s.store.Aggregate(ctx, sec.Collection, field, op)
}
