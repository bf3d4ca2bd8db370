package service

import (
	"context"
	"errors"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
)

const initialQuestionLimit = 3

// ReportService serves report reads and the student actions on a finished report.
type ReportService interface {
	Get(ctx context.Context, id string, actor Actor) (dto.ReportResponse, error)
	Authorize(ctx context.Context, id string, actor Actor) error
	Answer(ctx context.Context, id, questionID, answer string, actor Actor) (models.QAEntry, error)
	SubmitToAssignment(ctx context.Context, id string, assignmentID uint, actor Actor) (dto.SubmitReportResponse, error)
}

type reportService struct {
	reports     repository.ReportRepository
	assignments repository.AssignmentRepository
	events      ReportEventPublisher
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReportService constructs the report read service.
func NewReportService(reports repository.ReportRepository, assignments repository.AssignmentRepository, events ReportEventPublisher, activity ActivityRecorder, logger zerolog.Logger) ReportService {
	return &reportService{
		reports:     reports,
		assignments: assignments,
		events:      publisherOrNoop(events),
		activity:    activity,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "report_service").Logger(),
		now:         time.Now,
	}
}

func (s *reportService) Get(ctx context.Context, id string, actor Actor) (dto.ReportResponse, error) {
	report, err := loadReport(ctx, s.reports, id)
	if err != nil {
		return dto.ReportResponse{}, err
	}
	if !canAccess(report, actor) {
		return dto.ReportResponse{}, ErrReportForbidden
	}

	response := dto.ReportResponse{ReportID: report.ID, Status: report.Status}
	switch report.Status {
	case models.ReportStatusProcessingComparison:
		summary, err := report.SummaryValue()
		if err != nil {
			return dto.ReportResponse{}, corrupt(err)
		}
		response.Data = dto.ReportSummaryData{Summary: summary}
	case models.ReportStatusProcessingQuestions:
		summary, err := report.SummaryValue()
		if err != nil {
			return dto.ReportResponse{}, corrupt(err)
		}
		details, err := similarityDetails(report)
		if err != nil {
			return dto.ReportResponse{}, corrupt(err)
		}
		response.Data = dto.ReportSimilarityData{Summary: summary, Similarity: details}
	case models.ReportStatusCompleted:
		data, err := completedData(report)
		if err != nil {
			return dto.ReportResponse{}, corrupt(err)
		}
		response.Data = data
	case models.ReportStatusError:
		response.Data = dto.ReportErrorData{Message: report.ErrorMessage}
	}
	return response, nil
}

func (s *reportService) Authorize(ctx context.Context, id string, actor Actor) error {
	report, err := loadReport(ctx, s.reports, id)
	if err != nil {
		return err
	}
	if !canAccess(report, actor) {
		return ErrReportForbidden
	}
	return nil
}

// Answer records a reply on an unanswered question.
func (s *reportService) Answer(ctx context.Context, id, questionID, answer string, actor Actor) (models.QAEntry, error) {
	cleaned := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(answer)))
	if cleaned == "" {
		return models.QAEntry{}, ErrEmptyAnswer
	}

	var answered models.QAEntry
	_, err := mutate(ctx, s.reports, id, func(report *models.Report) error {
		if !canAccess(*report, actor) {
			return ErrReportForbidden
		}
		history, err := report.QAHistoryValue()
		if err != nil {
			return corrupt(err)
		}

		index := -1
		for i, entry := range history {
			if entry.QuestionID == questionID && !entry.IsAnswered() {
				index = i
				break
			}
		}
		if index < 0 {
			return ErrQuestionNotFound
		}

		now := s.now().UTC()
		text := cleaned
		history[index].Answer = &text
		history[index].AnsweredAt = &now
		answered = history[index]

		report.QAHistory, err = models.EncodeBlob(history)
		return err
	})
	if err != nil {
		return models.QAEntry{}, err
	}

	s.logger.Debug().Str("report_id", id).Str("question_id", questionID).Msg("question answered")
	return answered, nil
}

// SubmitToAssignment binds a completed report owned by actor to an assignment.
func (s *reportService) SubmitToAssignment(ctx context.Context, id string, assignmentID uint, actor Actor) (dto.SubmitReportResponse, error) {
	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmitReportResponse{}, ErrAssignmentNotFound
		}
		return dto.SubmitReportResponse{}, err
	}

	now := s.now().UTC()
	updated, err := mutate(ctx, s.reports, id, func(report *models.Report) error {
		if report.OwnerID != actor.ID {
			return ErrReportForbidden
		}
		if report.Status != models.ReportStatusCompleted {
			return ErrReportNotCompleted
		}
		if report.AssignmentID != nil {
			return ErrAlreadySubmitted
		}
		bound := assignmentID
		submitted := now
		report.AssignmentID = &bound
		report.SubmittedAt = &submitted
		return nil
	})
	if err != nil {
		return dto.SubmitReportResponse{}, err
	}

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     "report.submitted",
		EntityType: "report",
		EntityID:   id,
		Metadata:   map[string]interface{}{"assignment_id": strconv.FormatUint(uint64(assignmentID), 10)},
	})
	s.events.Publish(ctx, ReportEvent{ReportID: id, Status: updated.Status, Kind: EventStatusChanged, Message: "submitted"})

	return dto.SubmitReportResponse{ReportID: id, AssignmentID: assignmentID, SubmittedAt: now}, nil
}

func similarityDetails(report models.Report) (dto.SimilarityDetails, error) {
	comparisons, err := report.ComparisonsValue()
	if err != nil {
		return dto.SimilarityDetails{}, err
	}
	high, err := report.HighSimilarityValue()
	if err != nil {
		return dto.SimilarityDetails{}, err
	}
	return dto.SimilarityDetails{Comparisons: comparisons, HighSimilarity: high, Flagged: len(high) > 0}, nil
}

func completedData(report models.Report) (dto.ReportCompletedData, error) {
	summary, err := report.SummaryValue()
	if err != nil {
		return dto.ReportCompletedData{}, err
	}
	details, err := similarityDetails(report)
	if err != nil {
		return dto.ReportCompletedData{}, err
	}
	history, err := report.QAHistoryValue()
	if err != nil {
		return dto.ReportCompletedData{}, err
	}
	autoGrade, err := report.AutoGradeValue()
	if err != nil {
		return dto.ReportCompletedData{}, err
	}
	deepAnalysis, err := report.DeepAnalysisValue()
	if err != nil {
		return dto.ReportCompletedData{}, err
	}

	initial := make([]models.QAEntry, 0, initialQuestionLimit)
	for _, entry := range history {
		if entry.ParentQuestionID == nil && len(initial) < initialQuestionLimit {
			initial = append(initial, entry)
		}
	}

	data := dto.ReportCompletedData{
		DocType:          report.DocType,
		Snippet:          report.Snippet,
		SourceFileURL:    report.SourceFileURL,
		Summary:          summary,
		Similarity:       details,
		InitialQuestions: dto.NewQuestionResponseSlice(initial),
		QAHistory:        dto.NewQuestionResponseSlice(history),
		QuestionError:    report.QuestionError,
		IsRefilling:      report.IsRefilling,
		AssignmentID:     report.AssignmentID,
		SubmittedAt:      report.SubmittedAt,
		Grading: dto.GradingDetails{
			Grade:     report.Grade,
			Feedback:  report.Feedback,
			GradedBy:  report.GradedBy,
			GradedAt:  report.GradedAt,
			AutoGrade: autoGrade,
		},
	}
	if len(deepAnalysis) > 0 {
		data.DeepAnalysis = deepAnalysis
	}
	return data, nil
}
