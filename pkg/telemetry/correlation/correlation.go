// Package correlation carries the id that ties together the logs and spans of
// one usage request.
package correlation

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

// maxIDLength bounds caller supplied ids so a header cannot bloat every log line.
const maxIDLength = 128

type ctxKey struct{}

// ID returns the correlation id carried by ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// WithID stores id on ctx. Blank or oversized ids leave ctx unchanged.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLength {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// Ensure returns ctx with a correlation id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, ctxKey{}, id), id
}
