package clients

import "context"

type attemptKey struct{}

// WithAttempt marks ctx with the retry attempt of the request it belongs to.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// Attempt returns the retry attempt recorded in ctx, 0 for an original request.
func Attempt(ctx context.Context) int {
	if attempt, ok := ctx.Value(attemptKey{}).(int); ok {
		return attempt
	}
	return 0
}
