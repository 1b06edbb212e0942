package middleware

import (
	"context"
	"strings"

	"clinic-admin-api/internal/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const ClaimsKey ctxKey = "claims"

const service = "/clinic.v1.ClinicService/"

// skip auth for these
var open = map[string]bool{
	service + "Login":                true,
	service + "RequestPasswordReset": true,
	service + "ResetPassword":        true,
	"/grpc.health.v1.Health/Check":   true,
	"/grpc.health.v1.Health/Watch":   true,
}

// Verifier turns a bearer token into the caller's claims.
type Verifier interface {
	CheckAuth(ctx context.Context, raw string) (*auth.Claims, error)
}

// ClaimsFrom returns the claims Auth stored for this call, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(ClaimsKey).(*auth.Claims)
	return c
}

// WithClaims is what Auth does after a successful check.
func WithClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, c)
}

// BearerToken reads "authorization: Bearer <jwt>" from incoming metadata.
func BearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(vals[0], "Bearer "))
}

func Auth(v Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		raw := BearerToken(ctx)
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := v.CheckAuth(ctx, raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}

		return next(WithClaims(ctx, claims), req)
	}
}
