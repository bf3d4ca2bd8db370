package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
)

// CourseService manages courses, rubrics and rosters.
type CourseService interface {
	CreateCourse(ctx context.Context, req dto.CourseCreateRequest, actor Actor) (dto.CourseResponse, error)
	GetCourse(ctx context.Context, id uint) (dto.CourseResponse, error)
	CreateAssignment(ctx context.Context, courseID uint, req dto.AssignmentCreateRequest, actor Actor) (dto.AssignmentResponse, error)
	EnrollStudent(ctx context.Context, courseID, userID uint, actor Actor) error
	AddTA(ctx context.Context, courseID, userID uint, actor Actor) error
	DeleteCourse(ctx context.Context, id uint, actor Actor) error
	DeleteAssignment(ctx context.Context, id uint, actor Actor) error
}

type courseService struct {
	courses     repository.CourseRepository
	assignments repository.AssignmentRepository
	reports     repository.ReportRepository
	activity    ActivityRecorder
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewCourseService constructs the course manager.
func NewCourseService(courses repository.CourseRepository, assignments repository.AssignmentRepository, reports repository.ReportRepository, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) CourseService {
	return &courseService{
		courses:     courses,
		assignments: assignments,
		reports:     reports,
		activity:    activity,
		validator:   validate,
		logger:      logger.With().Str("component", "course_service").Logger(),
	}
}

func (s *courseService) CreateCourse(ctx context.Context, req dto.CourseCreateRequest, actor Actor) (dto.CourseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseResponse{}, err
	}

	course := models.Course{
		Name: strings.TrimSpace(req.Name),
		Code: strings.ToUpper(strings.TrimSpace(req.Code)),
	}
	if err := s.courses.Create(ctx, &course); err != nil {
		return dto.CourseResponse{}, err
	}

	s.audit(ctx, actor, "course.created", "course", course.ID, map[string]interface{}{"code": course.Code})
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) GetCourse(ctx context.Context, id uint) (dto.CourseResponse, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return dto.CourseResponse{}, err
	}
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) CreateAssignment(ctx context.Context, courseID uint, req dto.AssignmentCreateRequest, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return dto.AssignmentResponse{}, err
	}

	criteria := make(map[string]models.GradingCriterion, len(req.GradingCriteria))
	for id, criterion := range req.GradingCriteria {
		criteria[strings.TrimSpace(id)] = models.GradingCriterion{
			Name:     strings.TrimSpace(criterion.Name),
			MaxScore: criterion.MaxScore,
		}
	}
	rubric, err := models.EncodeBlob(criteria)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		CourseID:        courseID,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		DueDate:         req.DueDate,
		GradingCriteria: rubric,
	}
	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.audit(ctx, actor, "assignment.created", "assignment", assignment.ID, map[string]interface{}{
		"course_id": courseID,
		"max_total": assignment.MaxTotal(),
	})
	return dto.NewAssignmentResponse(assignment), nil
}

func (s *courseService) EnrollStudent(ctx context.Context, courseID, userID uint, actor Actor) error {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return err
	}
	if err := s.courses.AddStudent(ctx, courseID, userID); err != nil {
		return err
	}
	s.audit(ctx, actor, "course.student_enrolled", "course", courseID, map[string]interface{}{"user_id": userID})
	return nil
}

func (s *courseService) AddTA(ctx context.Context, courseID, userID uint, actor Actor) error {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return err
	}
	if err := s.courses.AddTA(ctx, courseID, userID); err != nil {
		return err
	}
	s.audit(ctx, actor, "course.ta_assigned", "course", courseID, map[string]interface{}{"user_id": userID})
	return nil
}

// DeleteCourse refuses while any report is bound to one of its assignments.
func (s *courseService) DeleteCourse(ctx context.Context, id uint, actor Actor) error {
	if _, err := s.findCourse(ctx, id); err != nil {
		return err
	}
	count, err := s.reports.CountByCourse(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSubmissionsExist
	}
	if err := s.courses.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCourseNotFound
		}
		return err
	}

	s.audit(ctx, actor, "course.deleted", "course", id, nil)
	return nil
}

// DeleteAssignment refuses while reports are bound to the assignment.
func (s *courseService) DeleteAssignment(ctx context.Context, id uint, actor Actor) error {
	count, err := s.reports.CountByAssignment(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrSubmissionsExist
	}
	if err := s.assignments.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssignmentNotFound
		}
		return err
	}

	s.audit(ctx, actor, "assignment.deleted", "assignment", id, nil)
	return nil
}

func (s *courseService) findCourse(ctx context.Context, id uint) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Course{}, ErrCourseNotFound
		}
		return models.Course{}, err
	}
	return course, nil
}

func (s *courseService) audit(ctx context.Context, actor Actor, action, entityType string, id uint, metadata map[string]interface{}) {
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatUint(uint64(id), 10),
		Metadata:   metadata,
	})
}
