package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/bloodstock_backend/appctx"
)

// Alias the shared context key type so callers only import utils.
type contextKey = appctx.ContextKey

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyCenterId      = appctx.ContextKeyCenterId
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetCenterIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyCenterId)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetCenterIdInContext(ctx context.Context, centerId int) context.Context {
	return appctx.Set(ctx, ContextKeyCenterId, centerId)
}

// GetActorFromContext returns the acting user for audit rows.
// Anonymous callers are recorded as user 0 "System".
func GetActorFromContext(ctx context.Context) (int, string) {
	userId, _ := GetUserIdFromContext(ctx)
	userName, ok := GetUserNameFromContext(ctx)
	if !ok || userName == "" {
		userName = "System"
	}
	return userId, userName
}
