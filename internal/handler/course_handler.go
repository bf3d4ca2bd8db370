package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

// CourseHandler manages courses, rosters and assignments.
type CourseHandler struct {
	service   service.CourseService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCourseHandler constructs the handler.
func NewCourseHandler(service service.CourseService, validator *validator.Validate, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register attaches course endpoints. Reads need an authenticated user,
// writes need a teacher or admin.
func (h *CourseHandler) Register(router fiber.Router) {
	teacher := middleware.AuthOptions{Role: middleware.AuthRoleTeacher}
	member := middleware.AuthOptions{RequireUser: true}

	router.Post("/courses", middleware.WithAuth(h.createCourse, teacher))
	router.Get("/courses/:id", middleware.WithAuth(h.getCourse, member))
	router.Delete("/courses/:id", middleware.WithAuth(h.deleteCourse, teacher))
	router.Post("/courses/:id/assignments", middleware.WithAuth(h.createAssignment, teacher))
	router.Post("/courses/:id/students", middleware.WithAuth(h.enrollStudent, teacher))
	router.Post("/courses/:id/tas", middleware.WithAuth(h.addTA, teacher))
	router.Delete("/assignments/:id", middleware.WithAuth(h.deleteAssignment, teacher))
}

func (h *CourseHandler) createCourse(c *fiber.Ctx) error {
	var payload dto.CourseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	course, err := h.service.CreateCourse(requestContext(c), payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) getCourse(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	course, err := h.service.GetCourse(requestContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) createAssignment(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	assignment, err := h.service.CreateAssignment(requestContext(c), courseID, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *CourseHandler) enrollStudent(c *fiber.Ctx) error {
	return h.roster(c, "student enrolled", h.service.EnrollStudent)
}

func (h *CourseHandler) addTA(c *fiber.Ctx) error {
	return h.roster(c, "teaching assistant added", h.service.AddTA)
}

type rosterFunc func(ctx context.Context, courseID, userID uint, actor service.Actor) error

func (h *CourseHandler) roster(c *fiber.Ctx, message string, add rosterFunc) error {
	courseID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.RosterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := add(requestContext(c), courseID, payload.UserID, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, message, fiber.Map{"course_id": courseID, "user_id": payload.UserID})
}

func (h *CourseHandler) deleteCourse(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteCourse(requestContext(c), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "course deleted", fiber.Map{"id": id})
}

func (h *CourseHandler) deleteAssignment(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteAssignment(requestContext(c), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "assignment deleted", fiber.Map{"id": id})
}

func (h *CourseHandler) handleError(c *fiber.Ctx, err error) error {
	return writeServiceError(c, h.logger, err)
}
