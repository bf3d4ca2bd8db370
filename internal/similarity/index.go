// Package similarity ranks prior reports by embedding similarity and scores
// LLM comparison reports against the plagiarism rubric.
package similarity

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Weights applied to the per-dimension cosine similarities.
const (
	ThesisWeight = 0.6
	ClaimWeight  = 0.4
)

// Candidate is a prior report eligible for comparison.
type Candidate struct {
	ReportID     string
	ThesisVector []float64
	ClaimVector  []float64
}

// Match is a ranked candidate.
type Match struct {
	ReportID         string
	Score            float64
	ThesisSimilarity float64
	ClaimSimilarity  float64
}

// Cosine returns the cosine similarity of a and b. Empty, zero-norm or
// mismatched vectors yield 0.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

// CombinedScore weights thesis similarity above claim similarity.
func CombinedScore(thesisA, thesisB, claimA, claimB []float64) float64 {
	return ThesisWeight*Cosine(thesisA, thesisB) + ClaimWeight*Cosine(claimA, claimB)
}

// FindSimilar ranks candidates against the query vectors and returns the top N,
// skipping excludeID. Equal scores keep their input order.
func FindSimilar(excludeID string, thesis, claim []float64, candidates []Candidate, topN int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ReportID == excludeID {
			continue
		}
		thesisSim := Cosine(thesis, candidate.ThesisVector)
		claimSim := Cosine(claim, candidate.ClaimVector)
		matches = append(matches, Match{
			ReportID:         candidate.ReportID,
			Score:            ThesisWeight*thesisSim + ClaimWeight*claimSim,
			ThesisSimilarity: thesisSim,
			ClaimSimilarity:  claimSim,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topN >= 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches
}
