package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	JWTSecret              string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	OpenAIAPIKey           string
	OpenAIChatModel        string
	OpenAIEmbeddingModel   string
	AIMaxRetries           int
	EventsChannel          string
	CORSAllowOrigins       string
	Analysis               AnalysisConfig
	Worker                 WorkerConfig
	RateLimit              RateLimitConfig
}

// RateLimitConfig caps requests per user and minute on AI-heavy endpoints.
type RateLimitConfig struct {
	AnalyzePerMinute  int
	QuestionPerMinute int
}

// AnalysisConfig tunes the essay analysis pipeline and question pool.
type AnalysisConfig struct {
	MinTextLength        int
	SimilarityTopN       int
	SimilarityThreshold  int
	PoolLowWaterMark     int
	RefillBatchSize      int
	InitialQuestionCount int
}

// WorkerConfig bounds background task execution.
type WorkerConfig struct {
	Concurrency int
	TaskTimeout time.Duration
	StaleAfter  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AITA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "AITA API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "aita/reports")
	v.SetDefault("openai.chat_model", "gpt-4o-mini")
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("events.channel", "aita:reports")
	v.SetDefault("analysis.min_text_length", 50)
	v.SetDefault("similarity.top_n", 5)
	v.SetDefault("similarity.threshold", 30)
	v.SetDefault("pool.low_water_mark", 2)
	v.SetDefault("pool.refill_batch_size", 6)
	v.SetDefault("pool.initial_size", 9)
	v.SetDefault("worker.concurrency", 8)
	v.SetDefault("worker.task_timeout", "10m")
	v.SetDefault("worker.stale_after", "30m")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("ratelimit.analyze_per_minute", 5)
	v.SetDefault("ratelimit.question_per_minute", 30)

	taskTimeout, err := parseDuration(v, "worker.task_timeout", "10m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid worker task timeout: %w", err)
	}

	staleAfter, err := parseDuration(v, "worker.stale_after", "30m")
	if err != nil {
		return Config{}, fmt.Errorf("invalid worker stale threshold: %w", err)
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIChatModel:        v.GetString("openai.chat_model"),
		OpenAIEmbeddingModel:   v.GetString("openai.embedding_model"),
		AIMaxRetries:           v.GetInt("ai.max_retries"),
		EventsChannel:          v.GetString("events.channel"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		Analysis: AnalysisConfig{
			MinTextLength:        v.GetInt("analysis.min_text_length"),
			SimilarityTopN:       v.GetInt("similarity.top_n"),
			SimilarityThreshold:  v.GetInt("similarity.threshold"),
			PoolLowWaterMark:     v.GetInt("pool.low_water_mark"),
			RefillBatchSize:      v.GetInt("pool.refill_batch_size"),
			InitialQuestionCount: v.GetInt("pool.initial_size"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			TaskTimeout: taskTimeout,
			StaleAfter:  staleAfter,
		},
		RateLimit: RateLimitConfig{
			AnalyzePerMinute:  v.GetInt("ratelimit.analyze_per_minute"),
			QuestionPerMinute: v.GetInt("ratelimit.question_per_minute"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AIMaxRetries <= 0 {
		cfg.AIMaxRetries = 3
	}

	cfg.Analysis = cfg.Analysis.WithDefaults()

	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 8
	}

	return cfg, nil
}

// WithDefaults fills zero values with the production defaults.
func (a AnalysisConfig) WithDefaults() AnalysisConfig {
	if a.MinTextLength <= 0 {
		a.MinTextLength = 50
	}
	if a.SimilarityTopN <= 0 {
		a.SimilarityTopN = 5
	}
	if a.SimilarityThreshold <= 0 {
		a.SimilarityThreshold = 30
	}
	if a.PoolLowWaterMark <= 0 {
		a.PoolLowWaterMark = 2
	}
	if a.RefillBatchSize <= 0 {
		a.RefillBatchSize = 6
	}
	if a.InitialQuestionCount <= 0 {
		a.InitialQuestionCount = 9
	}
	return a
}

func parseDuration(v *viper.Viper, key, fallback string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		raw = fallback
	}
	return time.ParseDuration(raw)
}
