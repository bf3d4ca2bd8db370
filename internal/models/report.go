package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Report status values. Status only moves forward, except into ReportStatusError.
const (
	ReportStatusProcessing           = "processing"
	ReportStatusProcessingAnalysis   = "processing_analysis"
	ReportStatusProcessingComparison = "processing_comparison"
	ReportStatusProcessingQuestions  = "processing_questions"
	ReportStatusCompleted            = "completed"
	ReportStatusError                = "error"
)

// Question types produced by the question generator.
const (
	QuestionTypeCritical    = "critical"
	QuestionTypePerspective = "perspective"
	QuestionTypeExtension   = "extension"
	QuestionTypeDeepDive    = "deep_dive"
)

// InitialQuestionTypes lists the types the initial question set draws from, in display order.
var InitialQuestionTypes = []string{QuestionTypeCritical, QuestionTypePerspective, QuestionTypeExtension}

// Report is the central record for one essay submission.
type Report struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	OwnerID        uint           `gorm:"not null;index" json:"owner_id"`
	AssignmentID   *uint          `gorm:"index" json:"assignment_id"`
	Status         string         `gorm:"size:32;not null;index" json:"status"`
	DocType        string         `gorm:"size:64" json:"doc_type"`
	IsTest         bool           `gorm:"not null;default:false;index" json:"is_test"`
	Text           string         `gorm:"type:text" json:"-"`
	Snippet        string         `gorm:"type:text" json:"snippet"`
	SourceFileURL  string         `gorm:"size:512" json:"source_file_url"`
	Summary        datatypes.JSON `json:"summary"`
	ThesisVector   datatypes.JSON `json:"-"`
	ClaimVector    datatypes.JSON `json:"-"`
	Comparisons    datatypes.JSON `json:"comparisons"`
	HighSimilarity datatypes.JSON `json:"high_similarity"`
	QAHistory      datatypes.JSON `gorm:"column:qa_history" json:"qa_history"`
	QuestionPool   datatypes.JSON `json:"question_pool"`
	IsRefilling    bool           `gorm:"not null;default:false" json:"is_refilling"`
	Grade          *float64       `json:"grade"`
	Feedback       string         `gorm:"type:text" json:"feedback"`
	GradedBy       *uint          `json:"graded_by"`
	GradedAt       *time.Time     `json:"graded_at"`
	AutoGrade      datatypes.JSON `json:"auto_grade"`
	DeepAnalysis   datatypes.JSON `json:"deep_analysis"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message"`
	QuestionError  string         `gorm:"type:text" json:"question_error"`
	Revision       int            `gorm:"not null;default:0" json:"revision"`
	SubmittedAt    *time.Time     `json:"submitted_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// StructuredSummary is the fixed-schema extraction returned by the summarizer.
type StructuredSummary struct {
	CoreThesis        string      `json:"core_thesis"`
	Claim             string      `json:"claim"`
	Reasoning         string      `json:"reasoning"`
	FlowPattern       FlowPattern `json:"flow_pattern"`
	ProblemFraming    string      `json:"problem_framing"`
	ConclusionFraming string      `json:"conclusion_framing"`
	KeyConcepts       string      `json:"key_concepts"`
}

// FlowPattern is the argument graph of an essay.
type FlowPattern struct {
	Nodes []string    `json:"nodes"`
	Edges [][2]string `json:"edges"`
}

// QAEntry is one asked question. A nil ParentQuestionID marks a root question.
type QAEntry struct {
	QuestionID       string     `json:"question_id"`
	Question         string     `json:"question"`
	Type             string     `json:"type"`
	Answer           *string    `json:"answer"`
	ParentQuestionID *string    `json:"parent_question_id"`
	AskedAt          time.Time  `json:"asked_at"`
	AnsweredAt       *time.Time `json:"answered_at,omitempty"`
}

// IsAnswered reports whether the entry carries an answer.
func (e QAEntry) IsAnswered() bool {
	return e.Answer != nil
}

// PoolQuestion is a generated question that has not been asked yet.
type PoolQuestion struct {
	Question string `json:"question"`
	Type     string `json:"type"`
}

// CriterionScores holds one value per comparison criterion.
type CriterionScores struct {
	CoreThesis        int `json:"core_thesis"`
	Claim             int `json:"claim"`
	Reasoning         int `json:"reasoning"`
	FlowPattern       int `json:"flow_pattern"`
	ProblemFraming    int `json:"problem_framing"`
	ConclusionFraming int `json:"conclusion_framing"`
}

// ComparisonResult is the outcome of comparing a report against one candidate.
type ComparisonResult struct {
	CandidateID      string          `json:"candidate_id"`
	VectorScore      float64         `json:"vector_score"`
	ThesisSimilarity float64         `json:"thesis_similarity"`
	ClaimSimilarity  float64         `json:"claim_similarity"`
	ComparisonReport string          `json:"comparison_report"`
	Scores           CriterionScores `json:"scores"`
	WeightedScores   CriterionScores `json:"weighted_scores"`
	Total            int             `json:"total"`
}

// CriterionGrade is one rubric line of an auto-grade result.
type CriterionGrade struct {
	CriteriaID string  `json:"criteria_id"`
	Score      float64 `json:"score"`
	Feedback   string  `json:"feedback"`
}

// AutoGradeResult is persisted on the report after an auto-grade attempt.
type AutoGradeResult struct {
	Status          string           `json:"status"`
	Scores          []CriterionGrade `json:"scores,omitempty"`
	Total           float64          `json:"total"`
	OverallFeedback string           `json:"overall_feedback,omitempty"`
	Error           string           `json:"error,omitempty"`
	Raw             string           `json:"raw,omitempty"`
	GradedAt        time.Time        `json:"graded_at"`
}

// Auto-grade result statuses.
const (
	AutoGradeStatusGraded = "graded"
	AutoGradeStatusFailed = "failed"
)

// BlobError reports a persisted JSON column that cannot be decoded.
type BlobError struct {
	Field string
	Err   error
}

func (e *BlobError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *BlobError) Unwrap() error { return e.Err }

// IsProcessingStatus reports whether status is one of the non-terminal pipeline states.
func IsProcessingStatus(status string) bool {
	switch status {
	case ReportStatusProcessing, ReportStatusProcessingAnalysis, ReportStatusProcessingComparison, ReportStatusProcessingQuestions:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the pipeline has finished for this report.
func (r Report) IsTerminal() bool {
	return r.Status == ReportStatusCompleted || r.Status == ReportStatusError
}

// SummaryValue decodes the structured summary. A nil result means the analysis stage has not run.
func (r Report) SummaryValue() (*StructuredSummary, error) {
	if len(r.Summary) == 0 {
		return nil, nil
	}
	var summary StructuredSummary
	if err := decodeBlob(r.Summary, "summary", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Vectors decodes the thesis and claim embeddings.
func (r Report) Vectors() ([]float64, []float64, error) {
	var thesis, claim []float64
	if err := decodeBlob(r.ThesisVector, "thesis_vector", &thesis); err != nil {
		return nil, nil, err
	}
	if err := decodeBlob(r.ClaimVector, "claim_vector", &claim); err != nil {
		return nil, nil, err
	}
	return thesis, claim, nil
}

// QAHistoryValue decodes the question/answer log.
func (r Report) QAHistoryValue() ([]QAEntry, error) {
	history := []QAEntry{}
	if err := decodeBlob(r.QAHistory, "qa_history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

// QuestionPoolValue decodes the pool of not-yet-asked questions.
func (r Report) QuestionPoolValue() ([]PoolQuestion, error) {
	pool := []PoolQuestion{}
	if err := decodeBlob(r.QuestionPool, "question_pool", &pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// ComparisonsValue decodes every pairwise comparison result.
func (r Report) ComparisonsValue() ([]ComparisonResult, error) {
	results := []ComparisonResult{}
	if err := decodeBlob(r.Comparisons, "comparisons", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// HighSimilarityValue decodes the comparisons at or above the plagiarism threshold.
func (r Report) HighSimilarityValue() ([]ComparisonResult, error) {
	results := []ComparisonResult{}
	if err := decodeBlob(r.HighSimilarity, "high_similarity", &results); err != nil {
		return nil, err
	}
	return results, nil
}

// AutoGradeValue decodes the auto-grade output. A nil result means no attempt was made.
func (r Report) AutoGradeValue() (*AutoGradeResult, error) {
	if len(r.AutoGrade) == 0 {
		return nil, nil
	}
	var result AutoGradeResult
	if err := decodeBlob(r.AutoGrade, "auto_grade", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeepAnalysisValue decodes the deep analysis sidecar keyed by analysis kind.
func (r Report) DeepAnalysisValue() (map[string]json.RawMessage, error) {
	sidecar := map[string]json.RawMessage{}
	if err := decodeBlob(r.DeepAnalysis, "deep_analysis", &sidecar); err != nil {
		return nil, err
	}
	return sidecar, nil
}

// EncodeBlob serialises a value for a JSON column.
func EncodeBlob(value interface{}) (datatypes.JSON, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(payload), nil
}

func decodeBlob(raw datatypes.JSON, field string, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &BlobError{Field: field, Err: err}
	}
	return nil
}
