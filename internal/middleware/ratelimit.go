package middleware

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ForwardedFor is the metadata key carrying the browser's address from the
// grpc-web bridge.
const ForwardedFor = "x-forwarded-for"

const (
	sweepEvery = time.Minute
	staleAfter = 3 * time.Minute
)

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRateLimiter starts a sweeper that drops idle peers. Close stops it.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) sweep() {
	defer close(rl.done)
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-t.C:
			rl.mu.Lock()
			for ip, c := range rl.clients {
				if now.Sub(c.seen) > staleAfter {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
	<-rl.done
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if c, ok := rl.clients[ip]; ok {
		c.seen = time.Now()
		return c.lim
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.clients[ip] = &client{lim: l, seen: time.Now()}
	return l
}

// Allow reports whether the peer at ip may make another call now.
func (rl *RateLimiter) Allow(ip string) bool { return rl.get(ip).Allow() }

// methods that should be rate limited
var limited = map[string]bool{
	service + "Login":                true,
	service + "RequestPasswordReset": true,
}

func RateLimit(rl *RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !limited[info.FullMethod] {
			return next(ctx, req)
		}
		if !rl.Allow(ClientIP(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "too many requests")
		}
		return next(ctx, req)
	}
}

// ClientIP returns the calling host. A loopback peer is the local bridge, so
// the first address it forwards is used instead; other peers cannot set it.
func ClientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host := p.Addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return host
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, v := range md.Get(ForwardedFor) {
			if first := FirstForwarded(v); first != "" {
				return first
			}
		}
	}
	return host
}

// FirstForwarded returns the left-most entry of an X-Forwarded-For value.
func FirstForwarded(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}
