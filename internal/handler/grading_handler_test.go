package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
)

func TestGradeRequiresStaff(t *testing.T) {
	ta := newTestApp(t)
	payload := dto.GradeReportRequest{Score: 18, Feedback: "Solid structure"}

	status, _ := do(t, ta.app, call{method: http.MethodPut, path: "/api/v1/reports/r-1/grade", userID: 5, role: "student", body: payload})
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = do(t, ta.app, call{method: http.MethodPut, path: "/api/v1/reports/r-1/grade", body: payload})
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, env := do(t, ta.app, call{method: http.MethodPut, path: "/api/v1/reports/r-1/grade", userID: 9, role: "ta", body: payload})
	require.Equal(t, fiber.StatusOK, status)
	var grade dto.GradeResponse
	require.NoError(t, json.Unmarshal(env.Data, &grade))
	require.InDelta(t, 18, *grade.Grade, 1e-9)
	require.Equal(t, uint(9), *grade.GradedBy)
}

func TestGradeScoreAboveMaxIsBadRequest(t *testing.T) {
	ta := newTestApp(t)
	ta.grading.gradeErr = service.ErrScoreExceedsMax

	status, env := do(t, ta.app, call{
		method: http.MethodPut,
		path:   "/api/v1/reports/r-1/grade",
		userID: 9,
		role:   "teacher",
		body:   dto.GradeReportRequest{Score: 25},
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, service.ErrScoreExceedsMax.Error(), env.Message)
}

func TestAutoGradeEndpoints(t *testing.T) {
	ta := newTestApp(t)

	status, _ := do(t, ta.app, call{method: http.MethodPost, path: "/api/v1/reports/r-1/auto-grade", userID: 9, role: "teacher"})
	require.Equal(t, fiber.StatusAccepted, status)

	status, _ = do(t, ta.app, call{method: http.MethodPost, path: "/api/v1/assignments/3/auto-grade", userID: 9, role: "admin"})
	require.Equal(t, fiber.StatusAccepted, status)
	require.Equal(t, []string{"r-1", "assignment:3"}, ta.grading.queued)

	status, _ = do(t, ta.app, call{method: http.MethodGet, path: "/api/v1/reports/r-1/auto-grade-result", userID: 9, role: "ta"})
	require.Equal(t, fiber.StatusNotFound, status)

	ta.grading.result = models.AutoGradeResult{Status: models.AutoGradeStatusGraded, Total: 14.5}
	status, env := do(t, ta.app, call{method: http.MethodGet, path: "/api/v1/reports/r-1/auto-grade-result", userID: 9, role: "ta"})
	require.Equal(t, fiber.StatusOK, status)
	var resp dto.AutoGradeResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.InDelta(t, 14.5, resp.Result.Total, 1e-9)
}

func TestBulkAutoGradeRejectsBadIdentifier(t *testing.T) {
	ta := newTestApp(t)

	status, _ := do(t, ta.app, call{method: http.MethodPost, path: "/api/v1/assignments/abc/auto-grade", userID: 9, role: "teacher"})
	require.Equal(t, fiber.StatusBadRequest, status)
}
