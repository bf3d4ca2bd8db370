package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

const autoGradeSchemaSource = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["scores", "total", "overall_feedback"],
  "properties": {
    "scores": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["criteria_id", "score", "feedback"],
        "properties": {
          "criteria_id": {"type": "string", "minLength": 1},
          "score": {"type": "number", "minimum": 0},
          "feedback": {"type": "string"}
        }
      }
    },
    "total": {"type": "number", "minimum": 0},
    "overall_feedback": {"type": "string"}
  }
}`

var autoGradeSchema = jsonschema.MustCompileString("auto_grade.schema.json", autoGradeSchemaSource)

const scoreEpsilon = 1e-9

// GradingService runs rubric auto-grading and records manual TA grades.
type GradingService interface {
	QueueAutoGrade(ctx context.Context, reportID string, actor Actor) error
	AutoGrade(ctx context.Context, reportID string) (models.AutoGradeResult, error)
	QueueBulkAutoGrade(ctx context.Context, assignmentID uint, actor Actor) error
	BulkAutoGrade(ctx context.Context, assignmentID uint) (dto.BulkAutoGradeResponse, error)
	Grade(ctx context.Context, reportID string, payload dto.GradeReportRequest, actor Actor) (models.Report, error)
	AutoGradeResult(ctx context.Context, reportID string, actor Actor) (models.AutoGradeResult, error)
}

// GradingDeps wires the grading collaborators.
type GradingDeps struct {
	Reports     repository.ReportRepository
	Assignments repository.AssignmentRepository
	Courses     repository.CourseRepository
	Grader      ai.Grader
	Scheduler   TaskScheduler
	Events      ReportEventPublisher
	Activity    ActivityRecorder
	Validator   *validator.Validate
	Logger      zerolog.Logger
}

type gradingService struct {
	reports     repository.ReportRepository
	assignments repository.AssignmentRepository
	courses     repository.CourseRepository
	grader      ai.Grader
	scheduler   TaskScheduler
	events      ReportEventPublisher
	activity    ActivityRecorder
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading orchestrator.
func NewGradingService(deps GradingDeps) GradingService {
	return &gradingService{
		reports:     deps.Reports,
		assignments: deps.Assignments,
		courses:     deps.Courses,
		grader:      deps.Grader,
		scheduler:   deps.Scheduler,
		events:      publisherOrNoop(deps.Events),
		activity:    deps.Activity,
		validator:   deps.Validator,
		tracer:      otel.Tracer("github.com/chldlstlr7-art/AITA-sub000/internal/service/grading"),
		logger:      deps.Logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

// boundRubric loads the assignment a report is bound to and requires a rubric.
func (s *gradingService) boundRubric(ctx context.Context, report models.Report) (models.Assignment, map[string]models.GradingCriterion, error) {
	if report.AssignmentID == nil {
		return models.Assignment{}, nil, ErrAssignmentNotBound
	}
	assignment, err := s.assignments.GetByID(ctx, *report.AssignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, nil, ErrAssignmentNotBound
		}
		return models.Assignment{}, nil, err
	}
	criteria, err := assignment.Criteria()
	if err != nil {
		return models.Assignment{}, nil, err
	}
	if len(criteria) == 0 {
		return models.Assignment{}, nil, ErrAssignmentNotBound
	}
	return assignment, criteria, nil
}

func (s *gradingService) QueueAutoGrade(ctx context.Context, reportID string, actor Actor) error {
	if !actor.IsStaff() {
		return ErrReportForbidden
	}
	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		return err
	}
	if _, _, err := s.boundRubric(ctx, report); err != nil {
		return err
	}

	err = s.scheduler.Submit(worker.Task{
		Name:     "grading.auto",
		ReportID: reportID,
		Run: func(ctx context.Context) error {
			_, err := s.AutoGrade(ctx, reportID)
			return err
		},
	})
	if err != nil {
		return ErrSchedulerUnavailable
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "report.auto_grade_requested",
		EntityType: "report",
		EntityID:   reportID,
	})
	return nil
}

// AutoGrade asks the grader for a rubric verdict and stores it. Invalid verdicts
// and grader failures are stored as failed results, not returned as errors.
func (s *gradingService) AutoGrade(ctx context.Context, reportID string) (models.AutoGradeResult, error) {
	ctx, span := s.tracer.Start(ctx, "grading.auto", trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		span.RecordError(err)
		return models.AutoGradeResult{}, err
	}
	assignment, criteria, err := s.boundRubric(ctx, report)
	if err != nil {
		span.RecordError(err)
		return models.AutoGradeResult{}, err
	}

	raw, gradeErr := s.grader.Grade(ctx, ai.GradingInput{
		AssignmentTitle: assignment.Title,
		Rubric:          rubricForPrompt(criteria),
		Text:            report.Text,
	})

	var result models.AutoGradeResult
	if gradeErr != nil {
		result = models.AutoGradeResult{Status: models.AutoGradeStatusFailed, Error: gradeErr.Error()}
	} else {
		result = validateAutoGrade(raw, criteria)
	}
	result.GradedAt = s.now().UTC()

	blob, err := models.EncodeBlob(result)
	if err != nil {
		return models.AutoGradeResult{}, err
	}
	if _, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		report.AutoGrade = blob
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auto_grade_persist_failed")
		return models.AutoGradeResult{}, err
	}

	log := s.logger.With().Str("report_id", reportID).Uint("assignment_id", assignment.ID).Logger()
	if result.Status == models.AutoGradeStatusGraded {
		log.Info().Float64("total", result.Total).Msg("report auto-graded")
	} else {
		span.SetStatus(codes.Error, "auto_grade_invalid")
		log.Warn().Str("error", result.Error).Msg("auto-grade produced no valid result")
	}
	span.SetAttributes(attribute.String("grading.status", result.Status))

	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: report.Status, Kind: EventAutoGraded, Message: result.Status})
	return result, nil
}

func (s *gradingService) QueueBulkAutoGrade(ctx context.Context, assignmentID uint, actor Actor) error {
	if !actor.IsStaff() {
		return ErrReportForbidden
	}
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	err := s.scheduler.Submit(worker.Task{
		Name: "grading.bulk",
		Run: func(ctx context.Context) error {
			_, err := s.BulkAutoGrade(ctx, assignmentID)
			return err
		},
	})
	if err != nil {
		return ErrSchedulerUnavailable
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "assignment.bulk_auto_grade_requested",
		EntityType: "assignment",
		EntityID:   strconv.FormatUint(uint64(assignmentID), 10),
	})
	return nil
}

// BulkAutoGrade grades, one at a time, every bound report without an auto-grade result.
func (s *gradingService) BulkAutoGrade(ctx context.Context, assignmentID uint) (dto.BulkAutoGradeResponse, error) {
	reports, err := s.reports.ListByAssignmentWithoutAutoGrade(ctx, assignmentID)
	if err != nil {
		return dto.BulkAutoGradeResponse{}, err
	}

	summary := dto.BulkAutoGradeResponse{AssignmentID: assignmentID, Total: len(reports)}
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.AutoGrade(ctx, report.ID)
		if err != nil || result.Status != models.AutoGradeStatusGraded {
			summary.Failed++
			if err != nil {
				s.logger.Warn().Err(err).Str("report_id", report.ID).Msg("bulk auto-grade item failed")
			}
			continue
		}
		summary.Succeeded++
	}

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("bulk auto-grade finished")
	return summary, nil
}

// Grade stores a manual grade. Re-sending the same grade from the same actor is a no-op.
func (s *gradingService) Grade(ctx context.Context, reportID string, payload dto.GradeReportRequest, actor Actor) (models.Report, error) {
	ctx, span := s.tracer.Start(ctx, "grading.manual")
	span.SetAttributes(
		attribute.String("grading.report_id", reportID),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return models.Report{}, err
	}
	if !actor.IsStaff() {
		return models.Report{}, ErrReportForbidden
	}

	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		span.RecordError(err)
		return models.Report{}, err
	}
	if report.Status != models.ReportStatusCompleted {
		return models.Report{}, ErrReportNotCompleted
	}

	if report.AssignmentID != nil {
		assignment, err := s.assignments.GetByID(ctx, *report.AssignmentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Report{}, err
		}
		if err == nil {
			if err := s.requireCourseStaff(ctx, assignment.CourseID, actor); err != nil {
				return models.Report{}, err
			}
			if maxTotal := assignment.MaxTotal(); maxTotal > 0 && payload.Score > maxTotal+scoreEpsilon {
				span.SetStatus(codes.Error, "score_exceeds_max")
				return models.Report{}, ErrScoreExceedsMax
			}
		}
	}

	feedback := strings.TrimSpace(payload.Feedback)
	now := s.now().UTC()
	idempotent := false

	updated, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		idempotent = false
		unchanged := report.Grade != nil && math.Abs(*report.Grade-payload.Score) < 1e-6 && strings.TrimSpace(report.Feedback) == feedback
		if unchanged && report.GradedBy != nil && *report.GradedBy == actor.ID {
			idempotent = true
			return errNoChange
		}

		score := payload.Score
		gradedBy := actor.ID
		report.Grade = &score
		report.Feedback = feedback
		report.GradedBy = &gradedBy
		report.GradedAt = &now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grade_update_failed")
		return models.Report{}, err
	}

	span.SetAttributes(attribute.Bool("grading.idempotent", idempotent))
	if !idempotent {
		record(ctx, s.activity, s.logger, ActivityEntry{
			Actor:      actor,
			Action:     "report.graded",
			EntityType: "report",
			EntityID:   reportID,
			Metadata: map[string]interface{}{
				"score":         payload.Score,
				"owner_id":      updated.OwnerID,
				"assignment_id": updated.AssignmentID,
			},
		})
	}
	return updated, nil
}

// requireCourseStaff limits TAs to the courses they are assigned to.
func (s *gradingService) requireCourseStaff(ctx context.Context, courseID uint, actor Actor) error {
	if strings.ToLower(actor.Role) != RoleTA || s.courses == nil {
		return nil
	}
	ok, err := s.courses.IsTA(ctx, courseID, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReportForbidden
	}
	return nil
}

func (s *gradingService) AutoGradeResult(ctx context.Context, reportID string, actor Actor) (models.AutoGradeResult, error) {
	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		return models.AutoGradeResult{}, err
	}
	if !canAccess(report, actor) {
		return models.AutoGradeResult{}, ErrReportForbidden
	}
	result, err := report.AutoGradeValue()
	if err != nil {
		return models.AutoGradeResult{}, corrupt(err)
	}
	if result == nil {
		return models.AutoGradeResult{}, ErrAutoGradeNotFound
	}
	return *result, nil
}

type autoGradePayload struct {
	Scores []struct {
		CriteriaID string  `json:"criteria_id"`
		Score      float64 `json:"score"`
		Feedback   string  `json:"feedback"`
	} `json:"scores"`
	Total           float64 `json:"total"`
	OverallFeedback string  `json:"overall_feedback"`
}

// validateAutoGrade checks the grader output against the schema and rubric.
// Any failure yields a failed result that keeps the raw payload.
func validateAutoGrade(raw string, criteria map[string]models.GradingCriterion) models.AutoGradeResult {
	failed := func(err error) models.AutoGradeResult {
		return models.AutoGradeResult{Status: models.AutoGradeStatusFailed, Error: err.Error(), Raw: raw}
	}

	var document interface{}
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return failed(fmt.Errorf("invalid json: %w", err))
	}
	if err := autoGradeSchema.Validate(document); err != nil {
		return failed(fmt.Errorf("schema validation: %w", err))
	}

	var payload autoGradePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return failed(fmt.Errorf("decode verdict: %w", err))
	}

	seen := make(map[string]bool, len(payload.Scores))
	scores := make([]models.CriterionGrade, 0, len(payload.Scores))
	total := 0.0
	for _, item := range payload.Scores {
		criterion, ok := criteria[item.CriteriaID]
		if !ok {
			return failed(fmt.Errorf("unknown criteria_id %q", item.CriteriaID))
		}
		if seen[item.CriteriaID] {
			return failed(fmt.Errorf("duplicate criteria_id %q", item.CriteriaID))
		}
		seen[item.CriteriaID] = true
		if item.Score > criterion.MaxScore+scoreEpsilon {
			return failed(fmt.Errorf("score %g for %q exceeds max %g", item.Score, item.CriteriaID, criterion.MaxScore))
		}
		total += item.Score
		scores = append(scores, models.CriterionGrade{CriteriaID: item.CriteriaID, Score: item.Score, Feedback: strings.TrimSpace(item.Feedback)})
	}
	for id := range criteria {
		if !seen[id] {
			return failed(fmt.Errorf("missing score for criteria_id %q", id))
		}
	}

	return models.AutoGradeResult{
		Status:          models.AutoGradeStatusGraded,
		Scores:          scores,
		Total:           total,
		OverallFeedback: strings.TrimSpace(payload.OverallFeedback),
	}
}

func rubricForPrompt(criteria map[string]models.GradingCriterion) []ai.RubricCriterion {
	ids := make([]string, 0, len(criteria))
	for id := range criteria {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rubric := make([]ai.RubricCriterion, 0, len(ids))
	for _, id := range ids {
		rubric = append(rubric, ai.RubricCriterion{ID: id, Name: criteria[id].Name, MaxScore: criteria[id].MaxScore})
	}
	return rubric
}
