package ai

import (
	"context"
	"encoding/json"
)

// Summary is the structured extraction of an essay.
type Summary struct {
	CoreThesis        string      `json:"core_thesis"`
	Claim             string      `json:"claim"`
	Reasoning         string      `json:"reasoning"`
	FlowPattern       FlowPattern `json:"flow_pattern"`
	ProblemFraming    string      `json:"problem_framing"`
	ConclusionFraming string      `json:"conclusion_framing"`
	KeyConcepts       string      `json:"key_concepts"`
}

// FlowPattern is the argument graph extracted from an essay.
type FlowPattern struct {
	Nodes []string    `json:"nodes"`
	Edges [][2]string `json:"edges"`
}

// ComparisonInput pairs the submission with one prior report.
type ComparisonInput struct {
	Submission Summary
	Candidate  Summary
}

// SimilarityContext describes a suspiciously similar prior report.
type SimilarityContext struct {
	CandidateID string
	Total       int
	Report      string
}

// QuestionRequest asks for a batch of Socratic questions.
type QuestionRequest struct {
	Summary        Summary
	Snippet        string
	HighSimilarity []SimilarityContext
	Count          int
	Types          []string
}

// Exchange is one answered question in a deep-dive chain.
type Exchange struct {
	Question string
	Answer   string
}

// FollowUpRequest asks for one follow-up question given a root-to-leaf chain.
type FollowUpRequest struct {
	Summary Summary
	Chain   []Exchange
}

// Question is a generated question with its type tag.
type Question struct {
	Question string `json:"question"`
	Type     string `json:"type"`
}

// RubricCriterion is one line of an assignment rubric.
type RubricCriterion struct {
	ID       string
	Name     string
	MaxScore float64
}

// GradingInput carries the rubric and essay for the scorer.
type GradingInput struct {
	AssignmentTitle string
	Rubric          []RubricCriterion
	Text            string
}

// DeepAnalysisInput feeds one sidecar analysis.
type DeepAnalysisInput struct {
	Text    string
	Summary Summary
}

// Summarizer extracts a structured summary from raw essay text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (Summary, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Comparer produces a free-text comparison report of two summaries.
type Comparer interface {
	Compare(ctx context.Context, input ComparisonInput) (string, error)
}

// QuestionGenerator produces Socratic questions.
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, req QuestionRequest) ([]Question, error)
	GenerateFollowUp(ctx context.Context, req FollowUpRequest) (Question, error)
}

// Grader scores an essay against a rubric and returns the raw JSON verdict.
// Callers validate the payload; implementations must not coerce it.
type Grader interface {
	Grade(ctx context.Context, input GradingInput) (string, error)
}

// DeepAnalyzer runs one named sidecar analysis and returns its JSON result.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, kind string, input DeepAnalysisInput) (json.RawMessage, error)
}
