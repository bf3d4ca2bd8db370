package handler

import (
	"errors"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/utils"
)

const maxSourceFileBytes = 2 << 20

// ReportHandlerDeps wires the report endpoints.
type ReportHandlerDeps struct {
	Reports      service.ReportService
	Pipeline     service.AnalysisPipelineService
	Pool         service.QuestionPoolService
	DeepDive     service.DeepDiveService
	DeepAnalysis service.DeepAnalysisService
	Events       service.ReportEventService
	Validator    *validator.Validate
	Logger       zerolog.Logger
	// AnalyzeLimiter and QuestionLimiter guard the AI-heavy endpoints when set.
	AnalyzeLimiter  fiber.Handler
	QuestionLimiter fiber.Handler
}

// ReportHandler exposes essay submission, report polling and the question flow.
type ReportHandler struct {
	reports         service.ReportService
	pipeline        service.AnalysisPipelineService
	pool            service.QuestionPoolService
	deepDive        service.DeepDiveService
	deepAnalysis    service.DeepAnalysisService
	events          service.ReportEventService
	validator       *validator.Validate
	logger          zerolog.Logger
	analyzeLimiter  fiber.Handler
	questionLimiter fiber.Handler
}

// NewReportHandler constructs the handler.
func NewReportHandler(deps ReportHandlerDeps) *ReportHandler {
	return &ReportHandler{
		reports:         deps.Reports,
		pipeline:        deps.Pipeline,
		pool:            deps.Pool,
		deepDive:        deps.DeepDive,
		deepAnalysis:    deps.DeepAnalysis,
		events:          deps.Events,
		validator:       deps.Validator,
		logger:          deps.Logger.With().Str("component", "report_handler").Logger(),
		analyzeLimiter:  passthrough(deps.AnalyzeLimiter),
		questionLimiter: passthrough(deps.QuestionLimiter),
	}
}

// Register attaches report endpoints to the router group.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Post("/analyze", h.analyzeLimiter, h.analyze)

	report := router.Group("/report/:id")
	report.Get("", h.get)
	report.Post("/question/next", h.questionLimiter, h.nextQuestion)
	report.Post("/answer", h.answer)
	report.Post("/question/deep-dive", h.questionLimiter, h.requestDeepDive)
	report.Post("/deep-analysis", h.requestDeepAnalysis)
	report.Post("/submit", h.submit)
	if h.events != nil {
		report.Get("/events", h.upgradeEvents, websocket.New(h.streamEvents))
	}
}

func (h *ReportHandler) analyze(c *fiber.Ctx) error {
	var payload dto.AnalyzeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	file, err := sourceFile(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	reportID, err := h.pipeline.Submit(requestContext(c), actorFromContext(c), service.AnalysisRequest{
		Text:    payload.Text,
		DocType: payload.DocType,
		IsTest:  payload.IsTest,
		File:    file,
	})
	if err != nil {
		return h.handleError(c, err)
	}

	requestLogger(h.logger, c).Info().Str("report_id", reportID).Bool("with_file", file != nil).Msg("analysis accepted")
	return utils.SendAccepted(c, "analysis started", dto.AnalyzeResponse{ReportID: reportID})
}

// sourceFile reads the optional multipart "file" part.
func sourceFile(c *fiber.Ctx) (*service.SourceFile, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, nil
	}
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) {
			return nil, nil
		}
		return nil, errors.New("invalid file upload")
	}
	if header.Size > maxSourceFileBytes {
		return nil, errors.New("file exceeds 2MB limit")
	}

	opened, err := header.Open()
	if err != nil {
		return nil, errors.New("invalid file upload")
	}
	defer opened.Close()

	content, err := io.ReadAll(io.LimitReader(opened, maxSourceFileBytes+1))
	if err != nil {
		return nil, errors.New("invalid file upload")
	}
	return &service.SourceFile{Name: header.Filename, Content: content}, nil
}

func (h *ReportHandler) get(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.reports.Get(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "report retrieved", report)
}

func (h *ReportHandler) nextQuestion(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	entry, err := h.pool.Next(requestContext(c), id, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "question issued", dto.NewQuestionResponse(entry))
}

func (h *ReportHandler) answer(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	entry, err := h.reports.Answer(requestContext(c), id, payload.QuestionID, payload.UserAnswer, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "answer recorded", dto.NewQuestionResponse(entry))
}

func (h *ReportHandler) requestDeepDive(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.DeepDiveRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.deepDive.Request(requestContext(c), id, payload.ParentQuestionID, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendAccepted(c, "deep-dive question requested", dto.QueuedResponse{ID: id, Status: "deep_dive_queued"})
}

func (h *ReportHandler) requestDeepAnalysis(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.deepAnalysis.Queue(requestContext(c), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	return utils.SendAccepted(c, "deep analysis requested", dto.QueuedResponse{ID: id, Status: "deep_analysis_queued"})
}

func (h *ReportHandler) submit(c *fiber.Ctx) error {
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmitReportRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	resp, err := h.reports.SubmitToAssignment(requestContext(c), id, payload.AssignmentID, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "report submitted", resp)
}

// upgradeEvents authorizes the caller before the websocket handshake.
func (h *ReportHandler) upgradeEvents(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id, err := reportIDParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	if err := h.reports.Authorize(requestContext(c), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}
	c.Locals("report_id", id)
	return c.Next()
}

func (h *ReportHandler) streamEvents(conn *websocket.Conn) {
	reportID, _ := conn.Locals("report_id").(string)
	events, cancel := h.events.Subscribe(reportID)
	defer cancel()

	logger := h.logger.With().Str("report_id", reportID).Logger()
	logger.Debug().Msg("report event stream opened")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Debug().Msg("report event stream closed by client")
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn().Err(err).Msg("failed to write report event")
				return
			}
		}
	}
}

func (h *ReportHandler) handleError(c *fiber.Ctx, err error) error {
	return writeServiceError(c, h.logger, err)
}

func passthrough(handler fiber.Handler) fiber.Handler {
	if handler != nil {
		return handler
	}
	return func(c *fiber.Ctx) error { return c.Next() }
}
