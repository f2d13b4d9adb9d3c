package context

import "context"

type ContextKey string

var (
	RequestIDKey  = ContextKey("X-Request-Id")
	MethodKey     = ContextKey("X-Method")
	RouteKey      = ContextKey("X-Route")
	RemoteIPKey   = ContextKey("X-Remote-Ip")
	OperatorIDKey = ContextKey("X-Operator-Id")
	MergeIDKey    = ContextKey("X-Merge-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string {
	return getString(ctx, MethodKey)
}

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string {
	return getString(ctx, RouteKey)
}

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string {
	return getString(ctx, RemoteIPKey)
}

// SetOperatorID records who asked for the operation. Merges are admin actions,
// so every audit log line carries it.
func SetOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, OperatorIDKey, operatorID)
}

func GetOperatorID(ctx context.Context) string {
	return getString(ctx, OperatorIDKey)
}

func SetMergeID(ctx context.Context, mergeID string) context.Context {
	return context.WithValue(ctx, MergeIDKey, mergeID)
}

func GetMergeID(ctx context.Context) string {
	return getString(ctx, MergeIDKey)
}

func getString(ctx context.Context, key ContextKey) string {
	value, ok := ctx.Value(key).(string)
	if !ok {
		return ""
	}
	return value
}
