package service

import (
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

func toAISummary(summary models.StructuredSummary) ai.Summary {
	return ai.Summary{
		CoreThesis:        summary.CoreThesis,
		Claim:             summary.Claim,
		Reasoning:         summary.Reasoning,
		FlowPattern:       ai.FlowPattern{Nodes: summary.FlowPattern.Nodes, Edges: summary.FlowPattern.Edges},
		ProblemFraming:    summary.ProblemFraming,
		ConclusionFraming: summary.ConclusionFraming,
		KeyConcepts:       summary.KeyConcepts,
	}
}

func fromAISummary(summary ai.Summary) models.StructuredSummary {
	return models.StructuredSummary{
		CoreThesis:        summary.CoreThesis,
		Claim:             summary.Claim,
		Reasoning:         summary.Reasoning,
		FlowPattern:       models.FlowPattern{Nodes: summary.FlowPattern.Nodes, Edges: summary.FlowPattern.Edges},
		ProblemFraming:    summary.ProblemFraming,
		ConclusionFraming: summary.ConclusionFraming,
		KeyConcepts:       summary.KeyConcepts,
	}
}

func similarityContext(results []models.ComparisonResult) []ai.SimilarityContext {
	contexts := make([]ai.SimilarityContext, 0, len(results))
	for _, result := range results {
		contexts = append(contexts, ai.SimilarityContext{
			CandidateID: result.CandidateID,
			Total:       result.Total,
			Report:      result.ComparisonReport,
		})
	}
	return contexts
}

// normalizeQuestionType maps unknown generator tags onto critical.
func normalizeQuestionType(questionType string) string {
	switch questionType {
	case models.QuestionTypeCritical, models.QuestionTypePerspective, models.QuestionTypeExtension, models.QuestionTypeDeepDive:
		return questionType
	default:
		return models.QuestionTypeCritical
	}
}

func toPoolQuestions(questions []ai.Question) []models.PoolQuestion {
	pool := make([]models.PoolQuestion, 0, len(questions))
	for _, question := range questions {
		pool = append(pool, models.PoolQuestion{
			Question: question.Question,
			Type:     normalizeQuestionType(question.Type),
		})
	}
	return pool
}
