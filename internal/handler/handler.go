package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/blob"
	"clinic-admin-api/internal/clinic"
	"clinic-admin-api/internal/kv"
	"clinic-admin-api/internal/middleware"
	"clinic-admin-api/internal/store"
	"clinic-admin-api/internal/validate"
)

const ServiceName = "clinic.v1.ClinicService"

type Handler struct {
	store   *store.Store
	auth    *auth.Service
	clinic  *clinic.Service
	backups blob.Store
	logger  *slog.Logger
}

type Option func(*Handler)

// WithBackups sets where the Backup call writes. Without it Backup fails
// with FailedPrecondition.
func WithBackups(b blob.Store) Option { return func(h *Handler) { h.backups = b } }

func WithLogger(l *slog.Logger) Option { return func(h *Handler) { h.logger = l } }

func New(st *store.Store, a *auth.Service, c *clinic.Service, opts ...Option) *Handler {
	h := &Handler{store: st, auth: a, clinic: c, logger: st.Logger()}
	for _, o := range opts {
		o(h)
	}
	return h
}

type method func(*Handler, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn method) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(*Handler)
			if interceptor == nil {
				return fn(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(h, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc declares clinic.v1.ClinicService. Every method takes and
// returns a google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", (*Handler).Login),
		unary("Logout", (*Handler).Logout),
		unary("Me", (*Handler).Me),
		unary("ChangePassword", (*Handler).ChangePassword),
		unary("RequestPasswordReset", (*Handler).RequestPasswordReset),
		unary("ResetPassword", (*Handler).ResetPassword),
		unary("UpdateProfile", (*Handler).UpdateProfile),
		unary("ListUsers", (*Handler).ListUsers),
		unary("AddUser", (*Handler).AddUser),
		unary("UpdateUser", (*Handler).UpdateUser),
		unary("DeleteUser", (*Handler).DeleteUser),
		unary("ListRecords", (*Handler).ListRecords),
		unary("GetRecord", (*Handler).GetRecord),
		unary("CreateRecord", (*Handler).CreateRecord),
		unary("UpdateRecord", (*Handler).UpdateRecord),
		unary("DeleteRecord", (*Handler).DeleteRecord),
		unary("SearchRecords", (*Handler).SearchRecords),
		unary("ExportRecords", (*Handler).ExportRecords),
		unary("SectionStats", (*Handler).SectionStats),
		unary("Aggregate", (*Handler).Aggregate),
		unary("Dashboard", (*Handler).Dashboard),
		unary("Chart", (*Handler).Chart),
		unary("GetSettings", (*Handler).GetSettings),
		unary("UpdateSettings", (*Handler).UpdateSettings),
		unary("ListNotifications", (*Handler).ListNotifications),
		unary("MarkNotificationsRead", (*Handler).MarkNotificationsRead),
		unary("Backup", (*Handler).Backup),
		unary("Cleanup", (*Handler).Cleanup),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinic/v1/clinic.proto",
}

func Register(s grpc.ServiceRegistrar, h *Handler) {
	s.RegisterService(&ServiceDesc, h)
}

// decode copies a request Struct into dst through its JSON form.
func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	b, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func empty() *structpb.Struct { return &structpb.Struct{Fields: map[string]*structpb.Value{}} }

func claims(ctx context.Context) (*auth.Claims, error) {
	c := middleware.ClaimsFrom(ctx)
	if c == nil {
		return nil, status.Error(codes.Unauthenticated, "no token")
	}
	return c, nil
}

// fail maps a domain error to a gRPC status. Unexpected errors are logged and
// reported as a bare internal error.
func (h *Handler) fail(ctx context.Context, op string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, kv.ErrNotExist), errors.Is(err, blob.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, validate.ErrValidation):
		return status.Error(codes.InvalidArgument, strings.Join(validate.Messages(err), "; "))
	case errors.Is(err, auth.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrBadToken):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, auth.ErrResetTokenInvalid), errors.Is(err, auth.ErrResetTokenExpired),
		errors.Is(err, clinic.ErrUnknownSection), errors.Is(err, clinic.ErrUnknownPeriod),
		errors.Is(err, store.ErrUnknownOp), errors.Is(err, store.ErrUnknownCollection),
		errors.Is(err, store.ErrUnsupportedFormat), errors.Is(err, store.ErrInvalidBackup):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	h.logger.ErrorContext(ctx, "rpc failed", "op", op, "err", err)
	return status.Error(codes.Internal, "internal error")
}
