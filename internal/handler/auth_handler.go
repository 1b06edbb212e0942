package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req loginRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Username == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password required")
	}

	sess, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, h.fail(ctx, "login", err)
	}
	return encode(sess)
}

func (h *Handler) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	if err := h.auth.Logout(ctx, c); err != nil {
		return nil, h.fail(ctx, "logout", err)
	}
	return empty(), nil
}

type userReply struct {
	User model.Record `json:"user"`
}

func (h *Handler) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	u, err := h.auth.Me(ctx, c)
	if err != nil {
		return nil, h.fail(ctx, "me", err)
	}
	return encode(userReply{User: u})
}

type passwordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
	Confirm string `json:"confirm_password"`
	Token   string `json:"token"`
}

func (h *Handler) ChangePassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req passwordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Confirm != "" && req.Confirm != req.New {
		return nil, status.Error(codes.InvalidArgument, "passwords do not match")
	}
	if err := h.auth.UpdatePassword(ctx, c, req.Current, req.New); err != nil {
		return nil, h.fail(ctx, "change password", err)
	}
	return empty(), nil
}

// RequestPasswordReset answers the same way whether or not the address is
// known. The token goes to the delivery channel, never to the caller.
func (h *Handler) RequestPasswordReset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "email required")
	}

	token, err := h.auth.ResetPassword(ctx, req.Email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.logger.InfoContext(ctx, "password reset for unknown email")
	case err != nil:
		return nil, h.fail(ctx, "request password reset", err)
	default:
		h.logger.DebugContext(ctx, "password reset issued", "email", req.Email, "token", token)
	}
	return encode(map[string]any{"sent": true})
}

func (h *Handler) ResetPassword(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req passwordRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, status.Error(codes.InvalidArgument, "token required")
	}
	if req.Confirm != "" && req.Confirm != req.New {
		return nil, status.Error(codes.InvalidArgument, "passwords do not match")
	}
	if err := h.auth.UpdatePasswordWithToken(ctx, req.Token, req.New); err != nil {
		return nil, h.fail(ctx, "reset password", err)
	}
	return empty(), nil
}

type fieldsRequest struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

func (h *Handler) UpdateProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req fieldsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	u, err := h.auth.UpdateProfile(ctx, c, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "update profile", err)
	}
	return encode(userReply{User: u})
}

func (h *Handler) ListUsers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Filters map[string]any `json:"filters"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	us, err := h.auth.Users(ctx, c, store.Filters(req.Filters))
	if err != nil {
		return nil, h.fail(ctx, "list users", err)
	}
	return encode(map[string]any{"users": nonNil(us)})
}

func (h *Handler) AddUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req fieldsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	u, err := h.auth.AddUser(ctx, c, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "add user", err)
	}
	return encode(userReply{User: u})
}

func (h *Handler) UpdateUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req fieldsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	u, err := h.auth.UpdateUser(ctx, c, req.ID, req.Fields)
	if err != nil {
		return nil, h.fail(ctx, "update user", err)
	}
	return encode(userReply{User: u})
}

func (h *Handler) DeleteUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := claims(ctx)
	if err != nil {
		return nil, err
	}
	var req fieldsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.ID == 0 {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	if err := h.auth.DeleteUser(ctx, c, req.ID); err != nil {
		return nil, h.fail(ctx, "delete user", err)
	}
	return empty(), nil
}

func nonNil(recs []model.Record) []model.Record {
	if recs == nil {
		return []model.Record{}
	}
	return recs
}
