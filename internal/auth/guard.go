package auth

import "github.com/hitoshi/bookman/internal/model"

// RequireRole は主体が指定ロールを持つことを確認する。
func RequireRole(identity *model.AuthenticatedIdentity, role model.Role) error {
	if identity == nil {
		return model.NewUnauthenticatedError()
	}
	if identity.Role != role {
		return model.NewForbiddenError()
	}
	return nil
}

// RequireSelfOrRole は主体が対象ユーザー本人であるか、指定ロールを持つことを確認する。
func RequireSelfOrRole(identity *model.AuthenticatedIdentity, targetUserID string, role model.Role) error {
	if identity == nil {
		return model.NewUnauthenticatedError()
	}
	if identity.UserID == targetUserID || identity.Role == role {
		return nil
	}
	return model.NewForbiddenError()
}
