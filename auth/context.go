// Package auth carries the acting user identity across calls.
// Authentication itself happens in the application shell; this subsystem
// only reads the resulting user id.
package auth

import (
	"context"
	"market-chat/errors"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// WithUserID injects the acting user into ctx for downstream layers.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the acting user, or ErrUnauthenticated.
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", errors.ErrUnauthenticated
	}
	return userID, nil
}
