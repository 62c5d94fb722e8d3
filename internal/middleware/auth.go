package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"room-reservation-api/internal/auth"
)

type ctxKey string

const UserIDKey ctxKey = "uid"

var ErrNoIdentity = errors.New("no caller identity")

// WithUserID returns a context carrying the verified caller id.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UserIDKey, uid)
}

func UserID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserIDKey).(string)
	return uid, ok && uid != ""
}

// IdentitySource resolves who is calling an HTTP endpoint.
type IdentitySource interface {
	Identify(r *http.Request) (string, error)
}

// BearerIdentity trusts only a valid access token.
type BearerIdentity struct {
	Secret string
}

func (b BearerIdentity) Identify(r *http.Request) (string, error) {
	raw := bearer(r.Header.Get("Authorization"))
	if raw == "" {
		return "", ErrNoIdentity
	}
	claims, err := auth.ParseToken(raw, b.Secret)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// HeaderIdentity takes the caller id from a request header as is. The id
// is self-asserted, so it is only for trusted networks and legacy clients.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) Identify(r *http.Request) (string, error) {
	uid := strings.TrimSpace(r.Header.Get(h.Header))
	if uid == "" {
		return "", ErrNoIdentity
	}
	return uid, nil
}

// FirstOf tries each source in order and returns the first identity found.
type FirstOf []IdentitySource

func (f FirstOf) Identify(r *http.Request) (string, error) {
	err := ErrNoIdentity
	for _, src := range f {
		uid, e := src.Identify(r)
		if e == nil {
			return uid, nil
		}
		if !errors.Is(e, ErrNoIdentity) {
			err = e
		}
	}
	return "", err
}

// Identify rejects requests without an identity with 401 and stores the
// caller id in the request context otherwise.
func Identify(src IdentitySource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := src.Identify(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Não autenticado."}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

// Auth verifies the bearer token of every gRPC call except the open methods.
func Auth(secret string, open ...string) grpc.UnaryServerInterceptor {
	skip := setOf(open)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if skip[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		// token from authorization: Bearer <jwt>
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = bearer(vals[0])
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}

		return next(WithUserID(ctx, claims.UserID), req)
	}
}

func bearer(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func setOf(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
