package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
)

func authApp(userID interface{}, role string, opts middleware.AuthOptions) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != nil {
			c.Locals(middleware.LocalUserID, userID)
		}
		c.Locals(middleware.LocalUserRole, role)
		return c.Next()
	})
	app.Get("/", middleware.WithAuth(func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	}, opts))
	return app
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return resp
}

func TestWithAuthStudentRole(t *testing.T) {
	resp := perform(t, authApp(uint(10), "Student", middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestWithAuthStudentRoleDenied(t *testing.T) {
	resp := perform(t, authApp(uint(10), "ta", middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWithAuthStaffGroup(t *testing.T) {
	for _, role := range []string{"ta", "teacher", "admin"} {
		resp := perform(t, authApp(uint(3), role, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
		require.Equal(t, fiber.StatusNoContent, resp.StatusCode, role)
	}
}

func TestWithAuthTeacherGroupExcludesTA(t *testing.T) {
	resp := perform(t, authApp(uint(3), "ta", middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWithAuthRequiresUser(t *testing.T) {
	resp := perform(t, authApp(nil, "teacher", middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestWithAuthAnyAllowsAnonymous(t *testing.T) {
	resp := perform(t, authApp(nil, "", middleware.AuthOptions{}))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp = perform(t, authApp(nil, "", middleware.AuthOptions{RequireUser: true}))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
