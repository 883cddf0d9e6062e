package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	"github.com/angelmondragon/rechargecodes-backend/pkg/outbox"
)

type contextKey string

const (
	ctxUserID     contextKey = "user_id"
	ctxRole       contextKey = "actor_role"
	ctxResellerID contextKey = "reseller_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.MemberRole); ok {
		return v
	}
	return ""
}

func ResellerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxResellerID).(string); ok {
		return v
	}
	return ""
}

// WithIdentity injects the authenticated operator into the context.
func WithIdentity(ctx context.Context, userID string, role enums.MemberRole, resellerID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if resellerID != "" {
		ctx = context.WithValue(ctx, ctxResellerID, resellerID)
	}
	return ctx
}

// ActorFromContext builds the outbox actor for the caller, or nil when the request is anonymous.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	userID, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return nil
	}
	actor := &outbox.ActorRef{UserID: userID, Role: string(RoleFromContext(ctx))}
	if rid, err := uuid.Parse(ResellerIDFromContext(ctx)); err == nil {
		actor.ResellerID = &rid
	}
	return actor
}
