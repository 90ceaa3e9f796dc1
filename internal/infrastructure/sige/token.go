package sige

import (
	"context"
	"strings"

	"github.com/autopecas/sigesync/internal/domain"
)

type tokenKey struct{}

// WithToken returns a context carrying a caller-supplied bearer token
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// TokenFromContext returns the bearer token stored by WithToken
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// StaticTokenSource always returns the configured token
type StaticTokenSource string

// Token implements domain.TokenSource
func (s StaticTokenSource) Token(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", domain.ErrAuthentication
	}
	return string(s), nil
}

// ContextTokenSource prefers the token forwarded with the request and falls back to
// a static one
type ContextTokenSource struct {
	Fallback domain.TokenSource
}

// Token implements domain.TokenSource
func (s ContextTokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := TokenFromContext(ctx); ok {
		return token, nil
	}
	if s.Fallback == nil {
		return "", domain.ErrAuthentication
	}
	return s.Fallback.Token(ctx)
}
