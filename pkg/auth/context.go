package auth

import "context"

type contextKey int

const tokenContextKey contextKey = iota

// WithToken stores a raw identity assertion on the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken returns the assertion stored by WithToken, or "".
func GetToken(ctx context.Context) string {
	if token, ok := ctx.Value(tokenContextKey).(string); ok {
		return token
	}
	return ""
}
