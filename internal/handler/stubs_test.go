package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/handler"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/router"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
)

type stubPipeline struct {
	lastActor   service.Actor
	lastRequest service.AnalysisRequest
	err         error
}

func (s *stubPipeline) Submit(_ context.Context, actor service.Actor, req service.AnalysisRequest) (string, error) {
	s.lastActor = actor
	s.lastRequest = req
	if s.err != nil {
		return "", s.err
	}
	return "report-1", nil
}

func (s *stubPipeline) StartSupervisor(context.Context) {}

func (s *stubPipeline) SweepStale(context.Context) (int, error) { return 0, nil }

type stubReports struct {
	getResp   dto.ReportResponse
	getErr    error
	answerErr error
	submitErr error
	authErr   error
}

func (s *stubReports) Get(_ context.Context, id string, _ service.Actor) (dto.ReportResponse, error) {
	if s.getErr != nil {
		return dto.ReportResponse{}, s.getErr
	}
	resp := s.getResp
	resp.ReportID = id
	return resp, nil
}

func (s *stubReports) Authorize(context.Context, string, service.Actor) error { return s.authErr }

func (s *stubReports) Answer(_ context.Context, _ string, questionID, answer string, _ service.Actor) (models.QAEntry, error) {
	if s.answerErr != nil {
		return models.QAEntry{}, s.answerErr
	}
	return models.QAEntry{QuestionID: questionID, Question: "Why?", Type: "critical", Answer: &answer}, nil
}

func (s *stubReports) SubmitToAssignment(_ context.Context, id string, assignmentID uint, _ service.Actor) (dto.SubmitReportResponse, error) {
	if s.submitErr != nil {
		return dto.SubmitReportResponse{}, s.submitErr
	}
	return dto.SubmitReportResponse{ReportID: id, AssignmentID: assignmentID}, nil
}

type stubPool struct {
	entry models.QAEntry
	err   error
}

func (s *stubPool) Next(context.Context, string, service.Actor) (models.QAEntry, error) {
	return s.entry, s.err
}

func (s *stubPool) Refill(context.Context, string) error { return nil }

type stubDeepDive struct {
	parent string
	err    error
}

func (s *stubDeepDive) Request(_ context.Context, _ string, parent string, _ service.Actor) error {
	s.parent = parent
	return s.err
}

func (s *stubDeepDive) Generate(context.Context, string, string) error { return nil }

type stubDeepAnalysis struct {
	err    error
	queued []string
}

func (s *stubDeepAnalysis) Queue(_ context.Context, reportID string, _ service.Actor) error {
	s.queued = append(s.queued, reportID)
	return s.err
}

func (s *stubDeepAnalysis) Run(context.Context, string) error { return nil }

type stubGrading struct {
	gradeErr error
	result   models.AutoGradeResult
	queued   []string
}

func (s *stubGrading) QueueAutoGrade(_ context.Context, reportID string, _ service.Actor) error {
	s.queued = append(s.queued, reportID)
	return nil
}

func (s *stubGrading) AutoGrade(context.Context, string) (models.AutoGradeResult, error) {
	return s.result, nil
}

func (s *stubGrading) QueueBulkAutoGrade(_ context.Context, assignmentID uint, _ service.Actor) error {
	s.queued = append(s.queued, "assignment:"+strconv.FormatUint(uint64(assignmentID), 10))
	return nil
}

func (s *stubGrading) BulkAutoGrade(context.Context, uint) (dto.BulkAutoGradeResponse, error) {
	return dto.BulkAutoGradeResponse{}, nil
}

func (s *stubGrading) Grade(_ context.Context, reportID string, payload dto.GradeReportRequest, actor service.Actor) (models.Report, error) {
	if s.gradeErr != nil {
		return models.Report{}, s.gradeErr
	}
	return models.Report{ID: reportID, Grade: &payload.Score, Feedback: payload.Feedback, GradedBy: &actor.ID}, nil
}

func (s *stubGrading) AutoGradeResult(context.Context, string, service.Actor) (models.AutoGradeResult, error) {
	if s.result.Status == "" {
		return models.AutoGradeResult{}, service.ErrAutoGradeNotFound
	}
	return s.result, nil
}

type testApp struct {
	app      *fiber.App
	pipeline *stubPipeline
	reports  *stubReports
	pool     *stubPool
	deepDive *stubDeepDive
	analysis *stubDeepAnalysis
	grading  *stubGrading
}

// fakeAuth reads the caller identity from X-User-ID and X-User-Role.
func fakeAuth(c *fiber.Ctx) error {
	if raw := c.Get("X-User-ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals(middleware.LocalUserID, uint(id))
	}
	c.Locals(middleware.LocalUserRole, c.Get("X-User-Role", middleware.RoleStudent))
	return c.Next()
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())
	ta := &testApp{
		app:      fiber.New(),
		pipeline: &stubPipeline{},
		reports:  &stubReports{getResp: dto.ReportResponse{Status: models.ReportStatusProcessing}},
		pool:     &stubPool{},
		deepDive: &stubDeepDive{},
		analysis: &stubDeepAnalysis{},
		grading:  &stubGrading{},
	}

	middleware.Register(ta.app, middleware.Config{Logger: &logger})
	router.Register(ta.app, config.Config{AppName: "Test", JWTSecret: "secret"}, router.Dependencies{
		ReportHandler: handler.NewReportHandler(handler.ReportHandlerDeps{
			Reports:      ta.reports,
			Pipeline:     ta.pipeline,
			Pool:         ta.pool,
			DeepDive:     ta.deepDive,
			DeepAnalysis: ta.analysis,
			Events:       service.NewReportEventService(nil, "", nil, logger),
			Validator:    validate,
			Logger:       logger,
		}),
		GradingHandler: handler.NewGradingHandler(ta.grading, validate, logger),
		JWTMiddleware:  fakeAuth,
	})
	return ta
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

type call struct {
	method, path string
	body         interface{}
	userID       uint
	role         string
	contentType  string
	raw          []byte
}

func do(t *testing.T, app *fiber.App, c call) (int, envelope) {
	t.Helper()

	var reader io.Reader
	contentType := c.contentType
	switch {
	case c.raw != nil:
		reader = bytes.NewReader(c.raw)
	case c.body != nil:
		payload, err := json.Marshal(c.body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
		contentType = fiber.MIMEApplicationJSON
	}

	req := httptest.NewRequest(c.method, c.path, reader)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if c.userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(c.userID), 10))
	}
	if c.role != "" {
		req.Header.Set("X-User-Role", c.role)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusUpgradeRequired {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}
