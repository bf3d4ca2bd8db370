package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

// Auth role groups understood by WithAuth.
const (
	AuthRoleAny     = "any"
	AuthRoleStudent = "student"
	AuthRoleStaff   = "staff"
	AuthRoleTeacher = "teacher"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with authentication and role guards.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	group := normalizeRoleValue(opts.Role)
	if group == "" {
		group = AuthRoleAny
	}
	requireUser := opts.RequireUser || group != AuthRoleAny

	return func(c *fiber.Ctx) error {
		if requireUser && !hasUser(c) {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if group == AuthRoleAny {
			return handler(c)
		}
		if !roleInGroup(normalizeRoleValue(c.Locals(LocalUserRole)), group) {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return handler(c)
	}
}

func hasUser(c *fiber.Ctx) bool {
	id, ok := c.Locals(LocalUserID).(uint)
	return ok && id > 0
}

func roleInGroup(role, group string) bool {
	switch group {
	case AuthRoleStudent:
		return role == RoleStudent
	case AuthRoleStaff:
		return role == RoleTA || role == RoleTeacher || role == RoleAdmin
	case AuthRoleTeacher:
		return role == RoleTeacher || role == RoleAdmin
	default:
		return role == group
	}
}
