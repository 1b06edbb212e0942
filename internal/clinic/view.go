package clinic

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// View is the list state of one screen: page, filters, search and sort.
// Callers own it and pass it on every call.
type View struct {
	Page    int
	PerPage int
	Search  string
	Filters map[string]any
	SortBy  string
	Desc    bool
}

func (v View) normalized() View {
	if v.Page < 1 {
		v.Page = 1
	}
	switch {
	case v.PerPage <= 0:
		v.PerPage = DefaultPerPage
	case v.PerPage > MaxPerPage:
		v.PerPage = MaxPerPage
	}
	return v
}

// Page is one slice of a filtered, sorted list.
type Page struct {
	Items      []model.Record `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}

// filters keeps only the fields a section allows to filter on.
func (v View) filters(sec *Section) store.Filters {
	f := store.Filters{}
	for k, val := range v.Filters {
		if slices.Contains(sec.FilterFields, k) {
			f[k] = val
		}
	}
	return f
}

func sortRecords(recs []model.Record, field string, desc bool) {
	if field == "" {
		return
	}
	slices.SortStableFunc(recs, func(a, b model.Record) int {
		c := compareValues(a[field], b[field])
		if desc {
			return -c
		}
		return c
	})
}

// compareValues orders missing values first, then numbers, then strings.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	fa, okA := a.(float64)
	fb, okB := b.(float64)
	switch {
	case okA && okB:
		return cmp.Compare(fa, fb)
	case okA:
		return -1
	case okB:
		return 1
	}
	return strings.Compare(strings.ToLower(display(a)), strings.ToLower(display(b)))
}

func display(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func paginate(recs []model.Record, v View) Page {
	p := Page{Total: len(recs), Page: v.Page, PerPage: v.PerPage}
	p.TotalPages = (p.Total + v.PerPage - 1) / v.PerPage
	start := (v.Page - 1) * v.PerPage
	if start >= len(recs) {
		p.Items = []model.Record{}
		return p
	}
	end := min(start+v.PerPage, len(recs))
	p.Items = recs[start:end]
	return p
}
