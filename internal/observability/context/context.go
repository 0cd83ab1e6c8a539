package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type entityKey struct{}

type entityRef struct {
	entityType string
	entityID   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithEntity tags the context with the entity a request operates on.
func WithEntity(ctx context.Context, entityType, entityID string) context.Context {
	return context.WithValue(ctx, entityKey{}, entityRef{
		entityType: strings.TrimSpace(entityType),
		entityID:   strings.TrimSpace(entityID),
	})
}

func EntityFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(entityKey{}).(entityRef); ok {
		return v.entityType, v.entityID
	}
	return "", ""
}
