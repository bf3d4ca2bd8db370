package similarity

import (
	"regexp"
	"strconv"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// Criterion weights. Conclusion framing is reported but never counted.
const (
	WeightCoreThesis        = 3
	WeightClaim             = 3
	WeightReasoning         = 2
	WeightFlowPattern       = 1
	WeightProblemFraming    = 1
	WeightConclusionFraming = 0
)

// MaxTotal is the highest weighted total a comparison can reach.
const MaxTotal = 5*WeightCoreThesis + 5*WeightClaim + 5*WeightReasoning + 5*WeightFlowPattern + 5*WeightProblemFraming + 5*WeightConclusionFraming

// A label must open its line (after bullets, numbering or markdown) and be
// followed by a single digit 1-5 on the same line. The strict form wants the
// digit right after a colon so that ranges like "(1-5)" are skipped.
type labelPattern struct {
	strict *regexp.Regexp
	loose  *regexp.Regexp
}

func newLabelPattern(label string) labelPattern {
	prefix := `(?im)^[^A-Za-z\n]*` + regexp.QuoteMeta(label)
	return labelPattern{
		strict: regexp.MustCompile(prefix + `[^\n]*?[:：]\s*[*_]*\s*([1-5])\b`),
		loose:  regexp.MustCompile(prefix + `[^0-9\n]*([1-5])\b`),
	}
}

var (
	coreThesisPattern        = newLabelPattern("Core Thesis")
	claimPattern             = newLabelPattern("Claim")
	reasoningPattern         = newLabelPattern("Reasoning")
	flowPatternPattern       = newLabelPattern("Flow Pattern")
	problemFramingPattern    = newLabelPattern("Problem Framing")
	conclusionFramingPattern = newLabelPattern("Conclusion Framing")
)

// ParseComparisonScores extracts the six raw criterion scores from a free-text
// comparison report. Labels that cannot be found score 0.
func ParseComparisonScores(report string) models.CriterionScores {
	return models.CriterionScores{
		CoreThesis:        extractScore(coreThesisPattern, report),
		Claim:             extractScore(claimPattern, report),
		Reasoning:         extractScore(reasoningPattern, report),
		FlowPattern:       extractScore(flowPatternPattern, report),
		ProblemFraming:    extractScore(problemFramingPattern, report),
		ConclusionFraming: extractScore(conclusionFramingPattern, report),
	}
}

// Weighted multiplies each raw score by its criterion weight.
func Weighted(scores models.CriterionScores) models.CriterionScores {
	return models.CriterionScores{
		CoreThesis:        scores.CoreThesis * WeightCoreThesis,
		Claim:             scores.Claim * WeightClaim,
		Reasoning:         scores.Reasoning * WeightReasoning,
		FlowPattern:       scores.FlowPattern * WeightFlowPattern,
		ProblemFraming:    scores.ProblemFraming * WeightProblemFraming,
		ConclusionFraming: scores.ConclusionFraming * WeightConclusionFraming,
	}
}

// WeightedTotal sums the weighted criterion scores.
func WeightedTotal(scores models.CriterionScores) int {
	w := Weighted(scores)
	return w.CoreThesis + w.Claim + w.Reasoning + w.FlowPattern + w.ProblemFraming + w.ConclusionFraming
}

// Score annotates a comparison result with its parsed breakdown and total.
func Score(result models.ComparisonResult) models.ComparisonResult {
	result.Scores = ParseComparisonScores(result.ComparisonReport)
	result.WeightedScores = Weighted(result.Scores)
	result.Total = WeightedTotal(result.Scores)
	return result
}

// FilterHighSimilarity keeps the results whose weighted total meets threshold.
func FilterHighSimilarity(results []models.ComparisonResult, threshold int) []models.ComparisonResult {
	filtered := make([]models.ComparisonResult, 0, len(results))
	for _, result := range results {
		scored := Score(result)
		if scored.Total >= threshold {
			filtered = append(filtered, scored)
		}
	}
	return filtered
}

func extractScore(pattern labelPattern, report string) int {
	match := pattern.strict.FindStringSubmatch(report)
	if len(match) < 2 {
		match = pattern.loose.FindStringSubmatch(report)
	}
	if len(match) < 2 {
		return 0
	}
	value, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return value
}
