package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic-admin-api/internal/clinic"
	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

type recordRequest struct {
	Section string         `json:"section"`
	ID      int64          `json:"id"`
	Fields  map[string]any `json:"fields"`
}

type recordReply struct {
	Record model.Record `json:"record"`
}

func (r recordRequest) check(needID bool) error {
	if r.Section == "" {
		return status.Error(codes.InvalidArgument, "section required")
	}
	if needID && r.ID == 0 {
		return status.Error(codes.InvalidArgument, "id required")
	}
	return nil
}

type listRequest struct {
	Section string         `json:"section"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
	Search  string         `json:"search"`
	Filters map[string]any `json:"filters"`
	SortBy  string         `json:"sort_by"`
	Desc    bool           `json:"desc"`
}

func (h *Handler) ListRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req listRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	page, err := h.clinic.List(ctx, c, req.Section, clinic.View{
		Page:    req.Page,
		PerPage: req.PerPage,
		Search:  req.Search,
		Filters: req.Filters,
		SortBy:  req.SortBy,
		Desc:    req.Desc,
	})
	if err != nil {
		return nil, h.fail(ctx, "list records", err)
	}
	page.Items = nonNil(page.Items)
	return encode(page)
}

func (h *Handler) GetRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req recordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.check(true); err != nil {
		return nil, err
	}
	rec, err := h.clinic.Get(ctx, c, req.Section, req.ID)
	if err != nil {
		return nil, h.fail(ctx, "get record", err)
	}
	return encode(recordReply{Record: rec})
}

func (h *Handler) CreateRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req recordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.check(false); err != nil {
		return nil, err
	}
	rec, err := h.clinic.Create(ctx, c, req.Section, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "create record", err)
	}
	return encode(recordReply{Record: rec})
}

func (h *Handler) UpdateRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req recordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.check(true); err != nil {
		return nil, err
	}
	rec, err := h.clinic.Update(ctx, c, req.Section, req.ID, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "update record", err)
	}
	return encode(recordReply{Record: rec})
}

func (h *Handler) DeleteRecord(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req recordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.check(true); err != nil {
		return nil, err
	}
	if err := h.clinic.Delete(ctx, c, req.Section, req.ID); err != nil {
		return nil, h.fail(ctx, "delete record", err)
	}
	return empty(), nil
}

// SearchRecords searches one section, or every readable section when no
// section is given.
func (h *Handler) SearchRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Section string `json:"section"`
		Query   string `json:"query"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Section == "" {
		res, err := h.clinic.GlobalSearch(ctx, c, req.Query)
		if err != nil {
			return nil, h.fail(ctx, "global search", err)
		}
		return encode(map[string]any{"results": res})
	}
	recs, err := h.clinic.Search(ctx, c, req.Section, req.Query)
	if err != nil {
		return nil, h.fail(ctx, "search records", err)
	}
	return encode(map[string]any{"records": nonNil(recs)})
}

// ExportRecords returns the file body base64 encoded in "data".
func (h *Handler) ExportRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Section string `json:"section"`
		Format  string `json:"format"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	exp, err := h.clinic.Export(ctx, c, req.Section, store.Format(req.Format))
	if err != nil {
		return nil, h.fail(ctx, "export records", err)
	}
	return encode(exp)
}

func (h *Handler) SectionStats(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req recordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	st, err := h.clinic.SectionStats(ctx, c, req.Section)
	if err != nil {
		return nil, h.fail(ctx, "section stats", err)
	}
	return encode(st)
}

func (h *Handler) Aggregate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Section string `json:"section"`
		Field   string `json:"field"`
		Op      string `json:"op"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	v, err := h.clinic.Aggregate(ctx, c, req.Section, req.Field, store.AggregateOp(req.Op))
	if err != nil {
		return nil, h.fail(ctx, "aggregate", err)
	}
	return encode(map[string]any{"value": v})
}
