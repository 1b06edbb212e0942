package grpcweb

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinic-admin-api/internal/middleware"
)

const maxBody = 8 << 20

// Bridge translates gRPC-Web (browser HTTP/1.1) → native gRPC.
type Bridge struct {
	conn   *grpc.ClientConn
	logger *slog.Logger
}

// New dials the gRPC server at addr (e.g. "localhost:50051").
func New(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpcweb dial: %w", err)
	}
	return &Bridge{conn: conn, logger: logger}, nil
}

func (b *Bridge) Close() error { return b.conn.Close() }

// Handler returns an http.Handler that translates gRPC-Web → gRPC.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, X-Grpc-Web, X-User-Agent, Authorization, X-Request-Id, x-grpc-web")
		w.Header().Set("Access-Control-Expose-Headers",
			"Grpc-Status, Grpc-Message, Grpc-Status-Details-Bin, grpc-status, grpc-message")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "application/grpc-web") {
			http.Error(w, "not grpc-web", http.StatusUnsupportedMediaType)
			return
		}

		b.logger.DebugContext(r.Context(), "grpc-web", "path", r.URL.Path)
		b.forward(w, r)
	})
}

func (b *Bridge) forward(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, codes.Internal, "read body failed")
		return
	}
	if len(body) < 5 {
		writeError(w, codes.InvalidArgument, "body too short")
		return
	}

	// grpc-web frame: 1-byte flag + 4-byte big-endian length + protobuf
	msgLen := binary.BigEndian.Uint32(body[1:5])
	if int(msgLen)+5 > len(body) {
		writeError(w, codes.InvalidArgument, "incomplete frame")
		return
	}
	payload := body[5 : 5+msgLen]

	// forward metadata
	md := metadata.MD{}
	for _, h := range []string{"Authorization", "X-Request-Id"} {
		if vals := r.Header.Values(h); len(vals) > 0 {
			md.Set(h, vals...)
		}
	}
	md.Set(middleware.ForwardedFor, clientAddr(r))
	ctx := metadata.NewOutgoingContext(r.Context(), md)

	// invoke gRPC method using raw codec (pass-through bytes)
	resp := &rawMsg{}
	err = b.conn.Invoke(ctx, r.URL.Path, &rawMsg{data: payload}, resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		st, _ := status.FromError(err)
		b.logger.DebugContext(r.Context(), "grpc-web error", "path", r.URL.Path, "code", st.Code().String(), "msg", st.Message())
		writeError(w, st.Code(), st.Message())
		return
	}

	writeSuccess(w, resp.data)
}

// clientAddr is the browser's host. X-Forwarded-For is honoured only when the
// request itself comes from loopback, i.e. a local reverse proxy.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		if fwd := middleware.FirstForwarded(r.Header.Get("X-Forwarded-For")); fwd != "" {
			return fwd
		}
	}
	return host
}

// rawMsg wraps raw protobuf bytes.
type rawMsg struct{ data []byte }

// rawCodec passes bytes through without marshal/unmarshal.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(*rawMsg)
	if !ok {
		return nil, fmt.Errorf("rawCodec: unexpected %T", v)
	}
	return m.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(*rawMsg)
	if !ok {
		return fmt.Errorf("rawCodec: unexpected %T", v)
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (rawCodec) Name() string { return "raw" }

func frame(flag byte, data []byte) []byte {
	f := make([]byte, 5+len(data))
	f[0] = flag
	binary.BigEndian.PutUint32(f[1:5], uint32(len(data)))
	copy(f[5:], data)
	return f
}

func writeError(w http.ResponseWriter, code codes.Code, msg string) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	trailer := fmt.Sprintf("grpc-status:%d\r\ngrpc-message:%s\r\n", code, msg)
	w.Write(frame(0x80, []byte(trailer)))
}

func writeSuccess(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/grpc-web+proto")
	w.WriteHeader(http.StatusOK)
	w.Write(frame(0x00, data))
	w.Write(frame(0x80, []byte("grpc-status:0\r\n")))
}
