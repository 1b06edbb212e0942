package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"clinic-admin-api/internal/model"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// ContentType is the MIME type of an export in format f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

func (s *Store) Export(ctx context.Context, collection string, f Format) ([]byte, error) {
	recs, err := s.List(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	return Encode(recs, f)
}

// Encode renders records as pretty JSON or CSV.
func Encode(recs []model.Record, f Format) ([]byte, error) {
	switch f {
	case FormatJSON, "":
		if recs == nil {
			recs = []model.Record{}
		}
		return json.MarshalIndent(recs, "", "  ")
	case FormatCSV:
		return encodeCSV(recs)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// encodeCSV writes id first, then the sorted union of all other keys.
// Nested values are JSON encoded and missing fields are empty cells.
func encodeCSV(recs []model.Record) ([]byte, error) {
	if len(recs) == 0 {
		return []byte{}, nil
	}
	seen := map[string]bool{}
	var keys []string
	for _, r := range recs {
		for k := range r {
			if k != "id" && !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	header := append([]string{"id"}, keys...)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	row := make([]string, len(header))
	for _, r := range recs {
		for i, k := range header {
			c, err := cell(r[k])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			row[i] = c
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func cell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	b, err := json.Marshal(v)
	return string(b), err
}
