// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext identifies the acting user of a unit of work.
// The changes log records UserID for every audited modification.
type UserContext struct {
	UserID string
	Email  string
	Roles  []string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// WithUserID is a shorthand for WithUser when only the id is known.
func WithUserID(ctx context.Context, userID string) context.Context {
	return WithUser(ctx, &UserContext{UserID: userID})
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}
