package interceptors

import "context"

type contextKey struct{ name string }

var (
	accountIDKey = contextKey{"account_id"}
	userIDKey    = contextKey{"user_id"}
)

// WithIdentity returns a context with account_id and user_id set.
// Handlers read these via GetAccountID and GetUserID.
func WithIdentity(ctx context.Context, accountID, userID string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	ctx = context.WithValue(ctx, userIDKey, userID)
	return ctx
}

// GetAccountID returns the account_id from context and true if set; otherwise "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(accountIDKey).(string)
	return v, ok
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}
