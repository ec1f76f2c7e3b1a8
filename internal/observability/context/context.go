package obscontext

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	clientIDKey   contextKey = "client_id"
	principalKey  contextKey = "principal"
	repositoryKey contextKey = "repository"
)

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

// WithClientID attaches the OAuth client identifier to the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext returns the OAuth client identifier, if any.
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(clientIDKey).(string); ok {
		return value
	}
	return ""
}

// WithPrincipal attaches the authenticated principal type and id.
func WithPrincipal(ctx context.Context, principalType, principalID string) context.Context {
	principalType = strings.TrimSpace(principalType)
	principalID = strings.TrimSpace(principalID)
	if principalType == "" && principalID == "" {
		return ctx
	}
	return context.WithValue(ctx, principalKey, [2]string{principalType, principalID})
}

// PrincipalFromContext returns the principal type and id, if any.
func PrincipalFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if value, ok := ctx.Value(principalKey).([2]string); ok {
		return value[0], value[1]
	}
	return "", ""
}

// WithRepository attaches the repository slug to the context.
func WithRepository(ctx context.Context, slug string) context.Context {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ctx
	}
	return context.WithValue(ctx, repositoryKey, slug)
}

// RepositoryFromContext returns the repository slug, if any.
func RepositoryFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(repositoryKey).(string); ok {
		return value
	}
	return ""
}
