package store

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"clinic-admin-api/internal/model"
)

// Predicate matches a field value; it receives nil when the field is absent.
type Predicate func(v any) bool

// Filters maps a field to either an exact-match scalar or a Predicate.
// Nil values, nil predicates and empty strings are ignored.
type Filters map[string]any

func (f Filters) match(r model.Record) bool {
	for field, want := range f {
		switch w := want.(type) {
		case nil:
			continue
		case string:
			if w == "" {
				continue
			}
		case Predicate:
			if w == nil {
				continue
			}
			if !w(r[field]) {
				return false
			}
			continue
		case func(any) bool:
			if w == nil {
				continue
			}
			if !w(r[field]) {
				return false
			}
			continue
		}
		if !equal(r[field], want) {
			return false
		}
	}
	return true
}

// equal is strict like ===, except that numbers of any Go type compare by value.
func equal(got, want any) bool {
	if isNumber(got) && isNumber(want) {
		a, _ := model.Float(got)
		b, _ := model.Float(want)
		return a == b
	}
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}
	return reflect.DeepEqual(got, want)
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

// text renders a value the way a search box sees it.
func text(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return strconv.FormatBool(t), t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), t != 0
	default:
		if isNumber(v) {
			f, _ := model.Float(v)
			return strconv.FormatFloat(f, 'f', -1, 64), f != 0
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

func matchesQuery(r model.Record, term string, fields []string) bool {
	if len(fields) > 0 {
		for _, f := range fields {
			if s, ok := text(r[f]); ok && strings.Contains(strings.ToLower(s), term) {
				return true
			}
		}
		return false
	}
	for _, v := range r {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}
