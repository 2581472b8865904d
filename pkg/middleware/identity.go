package middleware

import (
	"context"
	"strings"

	"goalplay-engagement/pkg/errutil"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Callers are authenticated upstream; the gateway forwards the identity in
// these headers.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	RoleUser = "user"
)

type identityKey struct{}

type Identity struct {
	UserID string
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func newIdentity(userID, role string) Identity {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: strings.TrimSpace(userID), Role: role}
}

// RequireIdentity rejects requests without a caller id.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := newIdentity(c.GetHeader(HeaderUserID), c.GetHeader(HeaderUserRole))
		if id.UserID == "" {
			_ = c.Error(errutil.Unauthorized("missing caller identity", nil))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// UserID returns the caller id set by RequireIdentity.
func UserID(c *gin.Context) string {
	id, _ := IdentityFrom(c.Request.Context())
	return id.UserID
}

// IdentityInterceptor copies x-user-id and x-user-role metadata into the
// request context.
func IdentityInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		var userID, role string
		if v := md.Get(strings.ToLower(HeaderUserID)); len(v) > 0 {
			userID = v[0]
		}
		if v := md.Get(strings.ToLower(HeaderUserRole)); len(v) > 0 {
			role = v[0]
		}
		if userID == "" {
			return handler(ctx, req)
		}
		return handler(WithIdentity(ctx, newIdentity(userID, role)), req)
	}
}
