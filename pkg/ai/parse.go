package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is returned when a model response cannot be decoded.
var ErrMalformedResponse = errors.New("ai: malformed response")

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		content = content[newline+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// ParseJSONObject validates that content is a JSON object and returns it.
func ParseJSONObject(content string) (json.RawMessage, error) {
	content = stripFence(content)
	if !gjson.Valid(content) || !gjson.Parse(content).IsObject() {
		return nil, fmt.Errorf("%w: expected json object", ErrMalformedResponse)
	}
	return json.RawMessage(content), nil
}

// ParseSummary decodes a summary response. key_concepts may be a string or an array.
func ParseSummary(content string) (Summary, error) {
	content = stripFence(content)
	if !gjson.Valid(content) {
		return Summary{}, fmt.Errorf("%w: invalid summary json", ErrMalformedResponse)
	}

	root := gjson.Parse(content)
	summary := Summary{
		CoreThesis:        strings.TrimSpace(root.Get("core_thesis").String()),
		Claim:             strings.TrimSpace(root.Get("claim").String()),
		Reasoning:         strings.TrimSpace(root.Get("reasoning").String()),
		ProblemFraming:    strings.TrimSpace(root.Get("problem_framing").String()),
		ConclusionFraming: strings.TrimSpace(root.Get("conclusion_framing").String()),
	}

	concepts := root.Get("key_concepts")
	if concepts.IsArray() {
		parts := make([]string, 0, len(concepts.Array()))
		for _, item := range concepts.Array() {
			if value := strings.TrimSpace(item.String()); value != "" {
				parts = append(parts, value)
			}
		}
		summary.KeyConcepts = strings.Join(parts, ", ")
	} else {
		summary.KeyConcepts = strings.TrimSpace(concepts.String())
	}

	flow := root.Get("flow_pattern")
	for _, node := range flow.Get("nodes").Array() {
		summary.FlowPattern.Nodes = append(summary.FlowPattern.Nodes, node.String())
	}
	for _, edge := range flow.Get("edges").Array() {
		pair := edge.Array()
		if len(pair) != 2 {
			continue
		}
		summary.FlowPattern.Edges = append(summary.FlowPattern.Edges, [2]string{pair[0].String(), pair[1].String()})
	}

	if summary.CoreThesis == "" && summary.Claim == "" {
		return Summary{}, fmt.Errorf("%w: summary missing thesis and claim", ErrMalformedResponse)
	}
	return summary, nil
}

// ParseQuestions decodes a question batch. Both {"questions": [...]} and a bare
// array are accepted; blank questions are dropped.
func ParseQuestions(content string) ([]Question, error) {
	content = stripFence(content)
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("%w: invalid questions json", ErrMalformedResponse)
	}

	root := gjson.Parse(content)
	items := root.Get("questions")
	if root.IsArray() {
		items = root
	}
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: questions array missing", ErrMalformedResponse)
	}

	questions := make([]Question, 0, len(items.Array()))
	for _, item := range items.Array() {
		text := strings.TrimSpace(item.Get("question").String())
		if text == "" {
			continue
		}
		questions = append(questions, Question{
			Question: text,
			Type:     strings.ToLower(strings.TrimSpace(item.Get("type").String())),
		})
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions returned", ErrMalformedResponse)
	}
	return questions, nil
}

// ParseFollowUp decodes a single follow-up question.
func ParseFollowUp(content string) (Question, error) {
	content = stripFence(content)
	if !gjson.Valid(content) {
		return Question{}, fmt.Errorf("%w: invalid follow-up json", ErrMalformedResponse)
	}
	text := strings.TrimSpace(gjson.Get(content, "question").String())
	if text == "" {
		return Question{}, fmt.Errorf("%w: follow-up question missing", ErrMalformedResponse)
	}
	return Question{Question: text, Type: "deep_dive"}, nil
}
