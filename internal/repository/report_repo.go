package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// ErrRevisionConflict is returned when a report was modified after it was read.
var ErrRevisionConflict = errors.New("repository: report revision conflict")

var processingStatuses = []string{
	models.ReportStatusProcessing,
	models.ReportStatusProcessingAnalysis,
	models.ReportStatusProcessingComparison,
	models.ReportStatusProcessingQuestions,
}

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (models.Report, error)
	Update(ctx context.Context, report *models.Report) error
	ListComparisonCandidates(ctx context.Context, excludeID string) ([]models.Report, error)
	ListByAssignmentWithoutAutoGrade(ctx context.Context, assignmentID uint) ([]models.Report, error)
	CountByAssignment(ctx context.Context, assignmentID uint) (int64, error)
	CountByCourse(ctx context.Context, courseID uint) (int64, error)
	MarkStale(ctx context.Context, before time.Time, message string) ([]string, error)
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository instantiates a GORM-backed repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		return models.Report{}, err
	}

	return report, nil
}

// Update writes every mutable column when the stored revision still matches
// report.Revision. On success report.Revision is advanced.
func (r *reportRepository) Update(ctx context.Context, report *models.Report) error {
	expected := report.Revision
	now := time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id = ? AND revision = ?", report.ID, expected).
		Updates(map[string]interface{}{
			"owner_id":        report.OwnerID,
			"assignment_id":   report.AssignmentID,
			"status":          report.Status,
			"doc_type":        report.DocType,
			"is_test":         report.IsTest,
			"text":            report.Text,
			"snippet":         report.Snippet,
			"source_file_url": report.SourceFileURL,
			"summary":         report.Summary,
			"thesis_vector":   report.ThesisVector,
			"claim_vector":    report.ClaimVector,
			"comparisons":     report.Comparisons,
			"high_similarity": report.HighSimilarity,
			"qa_history":      report.QAHistory,
			"question_pool":   report.QuestionPool,
			"is_refilling":    report.IsRefilling,
			"grade":           report.Grade,
			"feedback":        report.Feedback,
			"graded_by":       report.GradedBy,
			"graded_at":       report.GradedAt,
			"auto_grade":      report.AutoGrade,
			"deep_analysis":   report.DeepAnalysis,
			"error_message":   report.ErrorMessage,
			"question_error":  report.QuestionError,
			"submitted_at":    report.SubmittedAt,
			"revision":        expected + 1,
			"updated_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("id = ?", report.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrRevisionConflict
	}

	report.Revision = expected + 1
	report.UpdatedAt = now
	return nil
}

func (r *reportRepository) ListComparisonCandidates(ctx context.Context, excludeID string) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.WithContext(ctx).
		Select("id", "summary", "thesis_vector", "claim_vector").
		Where("is_test = ?", false).
		Where("id <> ?", excludeID).
		Where("thesis_vector IS NOT NULL AND claim_vector IS NOT NULL").
		Order("created_at ASC").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (r *reportRepository) ListByAssignmentWithoutAutoGrade(ctx context.Context, assignmentID uint) ([]models.Report, error) {
	var reports []models.Report
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("auto_grade IS NULL").
		Order("submitted_at ASC").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}

	return reports, nil
}

func (r *reportRepository) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("assignment_id = ?", assignmentID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *reportRepository) CountByCourse(ctx context.Context, courseID uint) (int64, error) {
	var count int64
	sub := r.db.Model(&models.Assignment{}).Select("id").Where("course_id = ?", courseID)
	if err := r.db.WithContext(ctx).Model(&models.Report{}).Where("assignment_id IN (?)", sub).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkStale moves every report that has sat in a processing status since
// before into the error status and returns the affected ids.
func (r *reportRepository) MarkStale(ctx context.Context, before time.Time, message string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("status IN ? AND updated_at < ?", processingStatuses, before).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	err = r.db.WithContext(ctx).
		Model(&models.Report{}).
		Where("id IN ? AND status IN ? AND updated_at < ?", ids, processingStatuses, before).
		Updates(map[string]interface{}{
			"status":        models.ReportStatusError,
			"error_message": message,
			"revision":      gorm.Expr("revision + 1"),
			"updated_at":    time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}
