package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

type errorStatus struct {
	target error
	status int
}

var serviceErrorStatuses = []errorStatus{
	{service.ErrTextTooShort, fiber.StatusBadRequest},
	{service.ErrUnsupportedFileType, fiber.StatusBadRequest},
	{service.ErrEmptyAnswer, fiber.StatusBadRequest},
	{service.ErrScoreExceedsMax, fiber.StatusBadRequest},
	{service.ErrReportForbidden, fiber.StatusForbidden},
	{service.ErrReportNotFound, fiber.StatusNotFound},
	{service.ErrQuestionNotFound, fiber.StatusNotFound},
	{service.ErrAssignmentNotFound, fiber.StatusNotFound},
	{service.ErrCourseNotFound, fiber.StatusNotFound},
	{service.ErrAutoGradeNotFound, fiber.StatusNotFound},
	{service.ErrReportNotCompleted, fiber.StatusConflict},
	{service.ErrParentUnanswered, fiber.StatusConflict},
	{service.ErrAlreadySubmitted, fiber.StatusConflict},
	{service.ErrAssignmentNotBound, fiber.StatusConflict},
	{service.ErrSubmissionsExist, fiber.StatusConflict},
	{service.ErrPoolEmpty, fiber.StatusServiceUnavailable},
	{service.ErrPoolRefilling, fiber.StatusServiceUnavailable},
	{service.ErrSchedulerUnavailable, fiber.StatusServiceUnavailable},
}

// writeServiceError maps service sentinels onto the JSON error envelope.
// Unknown errors are logged and reported without detail.
func writeServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if isValidationError(err) {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	}
	for _, mapping := range serviceErrorStatuses {
		if errors.Is(err, mapping.target) {
			return utils.SendError(c, mapping.status, mapping.target.Error())
		}
	}
	if errors.Is(err, service.ErrCorruptRecord) {
		requestLogger(logger, c).Error().Err(err).Msg("corrupt report record")
		return utils.SendError(c, fiber.StatusInternalServerError, strings.ReplaceAll(err.Error(), "\n", ": "))
	}

	requestLogger(logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
