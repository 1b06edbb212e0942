package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinic-admin-api/internal/metrics"
)

const requestIDHeader = "x-request-id"

// Observe counts every call by method and status code and logs it at debug.
// Calls carry the caller's x-request-id, or a fresh one, back in the header.
func Observe(m *metrics.Metrics, logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		id := RequestID(ctx)
		// fails outside a server transport, e.g. direct calls in tests
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))
		resp, err := next(ctx, req)
		code := status.Code(err)
		m.ObserveRPC(info.FullMethod, code.String())
		logger.DebugContext(ctx, "rpc", "method", info.FullMethod, "code", code.String(), "request_id", id, "took", time.Since(start))
		return resp, err
	}
}

// RequestID returns the incoming x-request-id, or a new uuid when absent.
func RequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}
