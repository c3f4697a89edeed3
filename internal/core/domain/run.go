package domain

import "context"

type runIDContextKey struct{}

// WithRunID makes the pipeline reuse id as the run id of work started with ctx,
// so a caller's correlation id (an HTTP request id) shows up in results.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDContextKey{}, id)
}

func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDContextKey{}).(string)
	return id, ok && id != ""
}
