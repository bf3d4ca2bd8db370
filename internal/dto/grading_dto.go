package dto

import (
	"time"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// GradeReportRequest is a manual grade from a TA or teacher.
type GradeReportRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=5000"`
}

// GradeResponse reports the stored manual grade.
type GradeResponse struct {
	ReportID string     `json:"report_id"`
	Grade    *float64   `json:"grade"`
	Feedback string     `json:"feedback"`
	GradedBy *uint      `json:"graded_by"`
	GradedAt *time.Time `json:"graded_at"`
}

// NewGradeResponse converts a graded report.
func NewGradeResponse(report models.Report) GradeResponse {
	return GradeResponse{
		ReportID: report.ID,
		Grade:    report.Grade,
		Feedback: report.Feedback,
		GradedBy: report.GradedBy,
		GradedAt: report.GradedAt,
	}
}

// AutoGradeResponse wraps a stored auto-grade result.
type AutoGradeResponse struct {
	ReportID string                 `json:"report_id"`
	Result   models.AutoGradeResult `json:"result"`
}

// BulkAutoGradeResponse tallies a bulk auto-grade run.
type BulkAutoGradeResponse struct {
	AssignmentID uint `json:"assignment_id"`
	Total        int  `json:"total"`
	Succeeded    int  `json:"succeeded"`
	Failed       int  `json:"failed"`
}

// QueuedResponse acknowledges background work.
type QueuedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
