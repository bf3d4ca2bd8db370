package dto

import (
	"encoding/json"
	"time"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// AnalyzeRequest is the JSON or multipart body of a new essay submission.
type AnalyzeRequest struct {
	Text    string `json:"text" form:"text"`
	DocType string `json:"doc_type" form:"doc_type" validate:"omitempty,max=64"`
	IsTest  bool   `json:"is_test" form:"is_test"`
}

// AnalyzeResponse returns the id of the report being analysed.
type AnalyzeResponse struct {
	ReportID string `json:"report_id"`
}

// AnswerRequest answers one asked question.
type AnswerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	UserAnswer string `json:"user_answer" validate:"required,max=10000"`
}

// DeepDiveRequest asks for a follow-up on an answered question.
type DeepDiveRequest struct {
	ParentQuestionID string `json:"parent_question_id" validate:"required"`
}

// SubmitReportRequest binds a completed report to an assignment.
type SubmitReportRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required,gt=0"`
}

// QuestionResponse is one asked question.
type QuestionResponse struct {
	QuestionID       string     `json:"question_id"`
	Question         string     `json:"question"`
	Type             string     `json:"type"`
	ParentQuestionID *string    `json:"parent_question_id,omitempty"`
	Answer           *string    `json:"answer,omitempty"`
	AskedAt          time.Time  `json:"asked_at"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
}

// NewQuestionResponse converts a QA entry.
func NewQuestionResponse(entry models.QAEntry) QuestionResponse {
	return QuestionResponse{
		QuestionID:       entry.QuestionID,
		Question:         entry.Question,
		Type:             entry.Type,
		ParentQuestionID: entry.ParentQuestionID,
		Answer:           entry.Answer,
		AskedAt:          entry.AskedAt,
		AnsweredAt:       entry.AnsweredAt,
	}
}

// NewQuestionResponseSlice converts a QA history.
func NewQuestionResponseSlice(entries []models.QAEntry) []QuestionResponse {
	responses := make([]QuestionResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, NewQuestionResponse(entry))
	}
	return responses
}

// ReportResponse is the status-shaped view of a report. Data depends on Status.
type ReportResponse struct {
	ReportID string      `json:"report_id"`
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
}

// ReportSummaryData is returned once the analysis stage has finished.
type ReportSummaryData struct {
	Summary *models.StructuredSummary `json:"summary"`
}

// SimilarityDetails lists the comparisons and the ones over the plagiarism threshold.
type SimilarityDetails struct {
	Comparisons    []models.ComparisonResult `json:"comparisons"`
	HighSimilarity []models.ComparisonResult `json:"high_similarity"`
	Flagged        bool                      `json:"flagged"`
}

// ReportSimilarityData is returned while questions are being generated.
type ReportSimilarityData struct {
	Summary    *models.StructuredSummary `json:"summary"`
	Similarity SimilarityDetails         `json:"similarity"`
}

// GradingDetails carries the manual and automatic grading state.
type GradingDetails struct {
	Grade     *float64                `json:"grade"`
	Feedback  string                  `json:"feedback,omitempty"`
	GradedBy  *uint                   `json:"graded_by,omitempty"`
	GradedAt  *time.Time              `json:"graded_at,omitempty"`
	AutoGrade *models.AutoGradeResult `json:"auto_grade,omitempty"`
}

// ReportCompletedData is the full payload of a finished report.
type ReportCompletedData struct {
	DocType          string                     `json:"doc_type,omitempty"`
	Snippet          string                     `json:"snippet"`
	SourceFileURL    string                     `json:"source_file_url,omitempty"`
	Summary          *models.StructuredSummary  `json:"summary"`
	Similarity       SimilarityDetails          `json:"similarity"`
	InitialQuestions []QuestionResponse         `json:"initial_questions"`
	QAHistory        []QuestionResponse         `json:"qa_history"`
	QuestionError    string                     `json:"question_error,omitempty"`
	IsRefilling      bool                       `json:"is_refilling"`
	AssignmentID     *uint                      `json:"assignment_id,omitempty"`
	SubmittedAt      *time.Time                 `json:"submitted_at,omitempty"`
	Grading          GradingDetails             `json:"grading"`
	DeepAnalysis     map[string]json.RawMessage `json:"deep_analysis,omitempty"`
}

// ReportErrorData explains why analysis failed.
type ReportErrorData struct {
	Message string `json:"message"`
}

// SubmitReportResponse confirms an assignment binding.
type SubmitReportResponse struct {
	ReportID     string    `json:"report_id"`
	AssignmentID uint      `json:"assignment_id"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
