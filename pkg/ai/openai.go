package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aita",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI requests by operation",
	}, []string{"operation", "model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aita",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of AI requests that failed after retries",
	}, []string{"operation", "model"})

	aiRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aita",
		Subsystem: "ai",
		Name:      "request_retries_total",
		Help:      "Number of AI request retries caused by transient errors",
	}, []string{"operation"})
)

// ErrEmptyResponse is returned when the provider answers without content.
var ErrEmptyResponse = errors.New("ai: empty response")

// Sidecar analysis kinds.
const (
	AnalysisNeuronMap      = "neuron_map"
	AnalysisIntegrityScan  = "integrity_scan"
	AnalysisFlowDisconnect = "flow_disconnect"
)

// DeepAnalysisKinds lists every sidecar analysis in run order.
var DeepAnalysisKinds = []string{AnalysisNeuronMap, AnalysisIntegrityScan, AnalysisFlowDisconnect}

// OpenAIConfig defines configuration options for the OpenAI client.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float32
	MaxRetries     int
	RetryBaseDelay time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// OpenAIClient implements every AI capability against the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
	retry  retryPolicy
	tracer trace.Tracer
	logger zerolog.Logger
}

var (
	_ Summarizer        = (*OpenAIClient)(nil)
	_ Embedder          = (*OpenAIClient)(nil)
	_ Comparer          = (*OpenAIClient)(nil)
	_ QuestionGenerator = (*OpenAIClient)(nil)
	_ Grader            = (*OpenAIClient)(nil)
	_ DeepAnalyzer      = (*OpenAIClient)(nil)
)

// NewOpenAIClient builds a new client using the provided configuration.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT4oMini
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	policy := defaultRetryPolicy(cfg.MaxRetries)
	if cfg.RetryBaseDelay > 0 {
		policy.baseDelay = cfg.RetryBaseDelay
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		retry:  policy,
		tracer: otel.Tracer("github.com/chldlstlr7-art/AITA-sub000/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_client").Logger(),
	}, nil
}

// Summarize extracts the structured summary of text.
func (c *OpenAIClient) Summarize(ctx context.Context, text string) (Summary, error) {
	content, err := c.chat(ctx, "summarize", summarizeSystemPrompt, buildSummarizePrompt(text), true)
	if err != nil {
		return Summary{}, err
	}
	return ParseSummary(content)
}

// Embed returns the embedding vector of text.
func (c *OpenAIClient) Embed(parent context.Context, text string) ([]float64, error) {
	ctx, span := c.tracer.Start(parent, "openai.embed", trace.WithAttributes(
		attribute.String("model", c.cfg.EmbeddingModel),
	))
	defer span.End()

	start := time.Now()
	var vector []float64
	err := c.retry.do(ctx, c.onRetry("embed"), func(ctx context.Context) error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return ErrEmptyResponse
		}
		vector = make([]float64, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vector[i] = float64(v)
		}
		return nil
	})
	aiDuration.WithLabelValues("embed", c.cfg.EmbeddingModel).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues("embed", c.cfg.EmbeddingModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	return vector, nil
}

// Compare returns the free-text comparison report of two summaries.
func (c *OpenAIClient) Compare(ctx context.Context, input ComparisonInput) (string, error) {
	return c.chat(ctx, "compare", compareSystemPrompt, buildComparePrompt(input), false)
}

// GenerateQuestions returns a batch of typed questions.
func (c *OpenAIClient) GenerateQuestions(ctx context.Context, req QuestionRequest) ([]Question, error) {
	content, err := c.chat(ctx, "questions", questionsSystemPrompt, buildQuestionsPrompt(req), true)
	if err != nil {
		return nil, err
	}
	return ParseQuestions(content)
}

// GenerateFollowUp returns a single deep-dive question for the chain.
func (c *OpenAIClient) GenerateFollowUp(ctx context.Context, req FollowUpRequest) (Question, error) {
	content, err := c.chat(ctx, "follow_up", followUpSystemPrompt, buildFollowUpPrompt(req), true)
	if err != nil {
		return Question{}, err
	}
	return ParseFollowUp(content)
}

// Grade returns the raw JSON rubric verdict.
func (c *OpenAIClient) Grade(ctx context.Context, input GradingInput) (string, error) {
	content, err := c.chat(ctx, "grade", gradeSystemPrompt, buildGradePrompt(input), true)
	if err != nil {
		return "", err
	}
	return stripFence(content), nil
}

// Analyze runs one sidecar analysis.
func (c *OpenAIClient) Analyze(ctx context.Context, kind string, input DeepAnalysisInput) (json.RawMessage, error) {
	system, ok := deepAnalysisPrompts[kind]
	if !ok {
		return nil, fmt.Errorf("unknown analysis kind %q", kind)
	}
	content, err := c.chat(ctx, kind, system, buildDeepAnalysisPrompt(input), true)
	if err != nil {
		return nil, err
	}
	return ParseJSONObject(content)
}

func (c *OpenAIClient) chat(parent context.Context, operation, system, user string, jsonMode bool) (string, error) {
	ctx, span := c.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", c.cfg.ChatModel),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	var content string
	err := c.retry.do(ctx, c.onRetry(operation), func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return ErrEmptyResponse
		}
		return nil
	})
	aiDuration.WithLabelValues(operation, c.cfg.ChatModel).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(operation, c.cfg.ChatModel).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai %s: %w", operation, err)
	}
	return content, nil
}

func (c *OpenAIClient) onRetry(operation string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		aiRetries.WithLabelValues(operation).Inc()
		c.logger.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("transient ai error, retrying")
	}
}
