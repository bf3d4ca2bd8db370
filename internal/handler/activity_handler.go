package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

// ActivityHandler exposes the audit trail to teachers and admins.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler constructs the handler.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register attaches the activity endpoint to the router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/activity", middleware.WithAuth(h.list, middleware.AuthOptions{Role: middleware.AuthRoleTeacher}))
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}
	actorID, err := parseQueryInt(c, "actor_id")
	if err != nil || actorID < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid actor_id")
	}

	resp, err := h.service.List(requestContext(c), dto.ActivityListRequest{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    uint(actorID),
		ActorRole:  strings.TrimSpace(c.Query("actor_role")),
		Action:     strings.TrimSpace(c.Query("action")),
		Domain:     strings.TrimSpace(c.Query("domain")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   strings.TrimSpace(c.Query("entity_id")),
	})
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return utils.OK(c, resp.Items, "activity retrieved", resp.Pagination)
}
