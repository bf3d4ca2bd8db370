package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

// GradingHandler exposes automatic and manual grading for staff.
type GradingHandler struct {
	service   service.GradingService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the router group.
func (h *GradingHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}

	router.Post("/reports/:id/auto-grade", middleware.WithAuth(h.queueAutoGrade, staff))
	router.Get("/reports/:id/auto-grade-result", middleware.WithAuth(h.autoGradeResult, staff))
	router.Put("/reports/:id/grade", middleware.WithAuth(h.grade, staff))
	router.Post("/assignments/:id/auto-grade", middleware.WithAuth(h.queueBulkAutoGrade, staff))
}

func (h *GradingHandler) queueAutoGrade(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.QueueAutoGrade(requestContext(c), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendAccepted(c, "auto-grade queued", dto.QueuedResponse{ID: id, Status: "auto_grade_queued"})
}

func (h *GradingHandler) autoGradeResult(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.AutoGradeResult(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "auto-grade result retrieved", dto.AutoGradeResponse{ReportID: id, Result: result})
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeReportRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	report, err := h.service.Grade(requestContext(c), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "report graded", dto.NewGradeResponse(report))
}

func (h *GradingHandler) queueBulkAutoGrade(c *fiber.Ctx) error {
	assignmentID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.QueueBulkAutoGrade(requestContext(c), assignmentID, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendAccepted(c, "bulk auto-grade queued", dto.QueuedResponse{
		ID:     strconv.FormatUint(uint64(assignmentID), 10),
		Status: "bulk_auto_grade_queued",
	})
}

func (h *GradingHandler) handleError(c *fiber.Ctx, err error) error {
	return writeServiceError(c, h.logger, err)
}
