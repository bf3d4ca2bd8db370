package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

// Roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleTA      = "ta"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// StaffRoles grade and review reports.
var StaffRoles = []string{RoleTA, RoleTeacher, RoleAdmin}

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRoleValue(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[normalizeRoleValue(c.Locals(LocalUserRole))]; !ok {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
		}
		return c.Next()
	}
}

// RequireStaff admits teaching assistants, teachers and administrators.
func RequireStaff() fiber.Handler {
	return RequireRole(StaffRoles...)
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(v.String()))
	default:
		return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
