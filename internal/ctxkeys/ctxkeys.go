package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey   contextKey = "request_id"
	authSubjectKey contextKey = "auth_subject"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithAuthSubject 设置鉴权主体（JWT sub 声明）
func WithAuthSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, authSubjectKey, subject)
}

// AuthSubject 获取鉴权主体
func AuthSubject(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(authSubjectKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
