package handler

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/clinic"
	"clinic-admin-api/internal/model"
)

const defaultRetentionDays = 30

func requireAdmin(ctx context.Context) (*auth.Claims, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPermission(model.RoleAdmin, c.Role) {
		return nil, status.Error(codes.PermissionDenied, auth.ErrPermissionDenied.Error())
	}
	return c, nil
}

func (h *Handler) activity(ctx context.Context, c *auth.Claims, action, desc string) {
	if _, err := h.store.LogActivity(ctx, c.UserID, action, desc); err != nil {
		h.logger.WarnContext(ctx, "log activity failed", "action", action, "err", err)
	}
}

func (h *Handler) Dashboard(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	d, err := h.clinic.Dashboard(ctx, c, h.store.Now())
	if err != nil {
		return nil, h.fail(ctx, "dashboard", err)
	}
	d.RecentActivities = nonNil(d.RecentActivities)
	d.UpcomingAppointments = nonNil(d.UpcomingAppointments)
	return encode(d)
}

func (h *Handler) Chart(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Period string `json:"period"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	ch, err := h.clinic.Chart(ctx, c, clinic.Period(req.Period), h.store.Now())
	if err != nil {
		return nil, h.fail(ctx, "chart", err)
	}
	return encode(ch)
}

type settingsReply struct {
	Settings model.Record `json:"settings"`
}

func (h *Handler) GetSettings(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := claims(ctx); err != nil {
		return nil, err
	}
	s, err := h.store.Settings(ctx)
	if err != nil {
		return nil, h.fail(ctx, "get settings", err)
	}
	return encode(settingsReply{Settings: s})
}

func (h *Handler) UpdateSettings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	var req fieldsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if len(req.Fields) == 0 {
		return nil, status.Error(codes.InvalidArgument, "fields required")
	}
	s, err := h.store.UpdateSettings(ctx, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "update settings", err)
	}
	h.activity(ctx, c, "settings_update", "Updated clinic settings")
	return encode(settingsReply{Settings: s})
}

func (h *Handler) ListNotifications(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := claims(ctx); err != nil {
		return nil, err
	}
	ns, err := h.store.Notifications(ctx)
	if err != nil {
		return nil, h.fail(ctx, "list notifications", err)
	}
	unread := 0
	for _, n := range ns {
		if !n.Bool("read") {
			unread++
		}
	}
	return encode(map[string]any{"notifications": nonNil(ns), "unread": unread})
}

// MarkNotificationsRead marks the listed ids, or every notification when
// ids is empty.
func (h *Handler) MarkNotificationsRead(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := claims(ctx); err != nil {
		return nil, err
	}
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	n, err := h.store.MarkNotificationsRead(ctx, req.IDs...)
	if err != nil {
		return nil, h.fail(ctx, "mark notifications read", err)
	}
	return encode(map[string]any{"marked": n})
}

func (h *Handler) Backup(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if h.backups == nil {
		return nil, status.Error(codes.FailedPrecondition, "backups are not configured")
	}
	key, err := h.store.WriteBackup(ctx, h.backups)
	if err != nil {
		return nil, h.fail(ctx, "backup", err)
	}
	h.activity(ctx, c, "backup", "Created backup "+key)
	return encode(map[string]any{"key": key})
}

func (h *Handler) Cleanup(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Days int `json:"days"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Days < 0 {
		return nil, status.Error(codes.InvalidArgument, "days must not be negative")
	}
	if req.Days == 0 {
		req.Days = defaultRetentionDays
	}
	n, err := h.store.Cleanup(ctx, req.Days)
	if err != nil {
		return nil, h.fail(ctx, "cleanup", err)
	}
	h.activity(ctx, c, "cleanup", fmt.Sprintf("Removed %d records older than %d days", n, req.Days))
	return encode(map[string]any{"removed": n})
}
