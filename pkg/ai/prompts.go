package ai

import (
	"fmt"
	"strings"
)

const summarizeSystemPrompt = "You are a writing analyst. Read the essay and respond with a JSON object with keys " +
	"core_thesis, claim, reasoning, flow_pattern (object with nodes: array of strings and edges: array of [from, to] pairs), " +
	"problem_framing, conclusion_framing and key_concepts (comma separated). Use the essay's language."

const compareSystemPrompt = "You compare the argument structure of two essays. For each criterion write one line in the form " +
	"\"<Criterion>: <score>\" where score is an integer from 1 (unrelated) to 5 (identical), followed by a short justification. " +
	"The criteria are: Core Thesis, Claim, Reasoning, Flow Pattern, Problem Framing, Conclusion Framing."

const questionsSystemPrompt = "You are a Socratic tutor. Generate questions that push the student to examine their own argument. " +
	"Respond with a JSON object {\"questions\": [{\"question\": string, \"type\": string}]}. " +
	"Allowed types: critical, perspective, extension."

const followUpSystemPrompt = "You are a Socratic tutor continuing a dialogue. Given the essay summary and the chain of questions " +
	"and answers so far, ask exactly one follow-up question that digs deeper into the latest answer. " +
	"Respond with a JSON object {\"question\": string}."

const gradeSystemPrompt = "You grade essays against a rubric. Respond with a JSON object " +
	"{\"scores\": [{\"criteria_id\": string, \"score\": number, \"feedback\": string}], \"total\": number, \"overall_feedback\": string}. " +
	"Every rubric criterion must appear exactly once and no score may exceed the criterion maximum."

var deepAnalysisPrompts = map[string]string{
	AnalysisNeuronMap: "Map the concepts of the essay as a graph. Respond with a JSON object " +
		"{\"nodes\": [{\"id\": string, \"label\": string}], \"links\": [{\"source\": string, \"target\": string, \"relation\": string}]}.",
	AnalysisIntegrityScan: "Scan the essay for logical fallacies, unsupported claims and contradictions. Respond with a JSON object " +
		"{\"issues\": [{\"kind\": string, \"excerpt\": string, \"explanation\": string}]}.",
	AnalysisFlowDisconnect: "Find places where the argument flow breaks between consecutive steps. Respond with a JSON object " +
		"{\"disconnects\": [{\"from\": string, \"to\": string, \"explanation\": string}]}.",
}

func buildSummarizePrompt(text string) string {
	return "# Essay\n" + text + "\n\nReturn JSON."
}

func writeSummary(builder *strings.Builder, summary Summary) {
	fmt.Fprintf(builder, "Core Thesis: %s\n", summary.CoreThesis)
	fmt.Fprintf(builder, "Claim: %s\n", summary.Claim)
	fmt.Fprintf(builder, "Reasoning: %s\n", summary.Reasoning)
	if len(summary.FlowPattern.Nodes) > 0 {
		fmt.Fprintf(builder, "Flow Pattern: %s\n", strings.Join(summary.FlowPattern.Nodes, " -> "))
	}
	fmt.Fprintf(builder, "Problem Framing: %s\n", summary.ProblemFraming)
	fmt.Fprintf(builder, "Conclusion Framing: %s\n", summary.ConclusionFraming)
	if summary.KeyConcepts != "" {
		fmt.Fprintf(builder, "Key Concepts: %s\n", summary.KeyConcepts)
	}
}

func buildComparePrompt(input ComparisonInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Submission\n")
	writeSummary(&builder, input.Submission)
	builder.WriteString("\n# Prior Report\n")
	writeSummary(&builder, input.Candidate)
	return builder.String()
}

func buildQuestionsPrompt(req QuestionRequest) string {
	builder := strings.Builder{}
	builder.WriteString("# Summary\n")
	writeSummary(&builder, req.Summary)
	if req.Snippet != "" {
		builder.WriteString("\n# Excerpt\n")
		builder.WriteString(req.Snippet)
		builder.WriteString("\n")
	}
	if len(req.HighSimilarity) > 0 {
		builder.WriteString("\n# Similar Prior Work\n")
		for _, item := range req.HighSimilarity {
			fmt.Fprintf(&builder, "- %s (score %d)\n", item.CandidateID, item.Total)
		}
		builder.WriteString("Include questions that ask the student to distinguish their argument from this prior work.\n")
	}
	fmt.Fprintf(&builder, "\nGenerate %d questions", req.Count)
	if len(req.Types) > 0 {
		fmt.Fprintf(&builder, " with types drawn from: %s", strings.Join(req.Types, ", "))
	}
	builder.WriteString(". Return JSON.")
	return builder.String()
}

func buildFollowUpPrompt(req FollowUpRequest) string {
	builder := strings.Builder{}
	builder.WriteString("# Summary\n")
	writeSummary(&builder, req.Summary)
	builder.WriteString("\n# Dialogue\n")
	for i, exchange := range req.Chain {
		fmt.Fprintf(&builder, "Q%d: %s\nA%d: %s\n", i+1, exchange.Question, i+1, exchange.Answer)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func buildGradePrompt(input GradingInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Assignment\n")
	builder.WriteString(input.AssignmentTitle)
	builder.WriteString("\n\n## Rubric\n")
	for _, criterion := range input.Rubric {
		fmt.Fprintf(&builder, "- criteria_id=%s name=%q max_score=%g\n", criterion.ID, criterion.Name, criterion.MaxScore)
	}
	builder.WriteString("\n## Essay\n")
	builder.WriteString(input.Text)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}

func buildDeepAnalysisPrompt(input DeepAnalysisInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Summary\n")
	writeSummary(&builder, input.Summary)
	builder.WriteString("\n# Essay\n")
	builder.WriteString(input.Text)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}
