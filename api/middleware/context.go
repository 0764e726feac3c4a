package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxCaller contextKey = "caller"
)

// Caller identifies how a request was authenticated.
type Caller string

const (
	CallerUser     Caller = "user"
	CallerAdmin    Caller = "admin"
	CallerService  Caller = "service"
	CallerSchedule Caller = "cron"
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

func CallerFromContext(ctx context.Context) Caller {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCaller).(Caller); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithCaller records how the request was authenticated.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCaller, caller)
}
