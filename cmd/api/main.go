package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/database"
	"github.com/chldlstlr7-art/AITA-sub000/internal/handler"
	"github.com/chldlstlr7-art/AITA-sub000/internal/middleware"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/router"
	"github.com/chldlstlr7-art/AITA-sub000/internal/service"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
	cloud "github.com/chldlstlr7-art/AITA-sub000/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	var uploader service.FileUploader
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		store, err := cloud.New(cloudCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploader = store
	} else {
		logger.Warn().Msg("cloudinary not configured, source files are not stored")
	}

	aiClient, err := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.OpenAIChatModel,
		EmbeddingModel: cfg.OpenAIEmbeddingModel,
		MaxRetries:     cfg.AIMaxRetries,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create openai client")
	}

	runner := worker.NewRunner(worker.Config{
		Concurrency: cfg.Worker.Concurrency,
		Timeout:     cfg.Worker.TaskTimeout,
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	reportRepo := repository.NewReportRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	events := service.NewReportEventService(redisClient, cfg.EventsChannel, natsConn, logger)
	events.Start(rootCtx)

	activityService := service.NewActivityService(activityRepo, logger)
	pipelineService := service.NewAnalysisPipelineService(service.AnalysisPipelineDeps{
		Reports:    reportRepo,
		Summarizer: aiClient,
		Embedder:   aiClient,
		Comparer:   aiClient,
		Questions:  aiClient,
		Scheduler:  runner,
		Events:     events,
		Uploader:   uploader,
		Config:     cfg.Analysis,
		StaleAfter: cfg.Worker.StaleAfter,
		Logger:     logger,
	})
	pipelineService.StartSupervisor(rootCtx)

	poolService := service.NewQuestionPoolService(reportRepo, aiClient, runner, events, cfg.Analysis, logger)
	deepDiveService := service.NewDeepDiveService(reportRepo, aiClient, runner, events, logger)
	deepAnalysisService := service.NewDeepAnalysisService(reportRepo, aiClient, runner, events, logger)
	reportService := service.NewReportService(reportRepo, assignmentRepo, events, activityService, logger)
	gradingService := service.NewGradingService(service.GradingDeps{
		Reports:     reportRepo,
		Assignments: assignmentRepo,
		Courses:     courseRepo,
		Grader:      aiClient,
		Scheduler:   runner,
		Events:      events,
		Activity:    activityService,
		Validator:   validate,
		Logger:      logger,
	})
	courseService := service.NewCourseService(courseRepo, assignmentRepo, reportRepo, activityService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    4 << 20,
	})

	middleware.Register(app, middleware.Config{
		Logger:       &logger,
		AllowOrigins: cfg.CORSAllowOrigins,
		AccessLog:    cfg.AppEnv == "development",
	})
	router.Register(app, cfg, router.Dependencies{
		ReportHandler: handler.NewReportHandler(handler.ReportHandlerDeps{
			Reports:         reportService,
			Pipeline:        pipelineService,
			Pool:            poolService,
			DeepDive:        deepDiveService,
			DeepAnalysis:    deepAnalysisService,
			Events:          events,
			Validator:       validate,
			Logger:          logger,
			AnalyzeLimiter:  router.AnalyzeLimiter(cfg),
			QuestionLimiter: router.QuestionLimiter(cfg),
		}),
		GradingHandler:  handler.NewGradingHandler(gradingService, validate, logger),
		CourseHandler:   handler.NewCourseHandler(courseService, validate, logger),
		ActivityHandler: handler.NewActivityHandler(activityService, logger),
		HealthProbes:    healthProbes(db, redisClient, natsConn),
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-rootCtx.Done()
	shutdown(app, runner, logger)
}

func healthProbes(db *gorm.DB, redisClient *redis.Client, natsConn *nats.Conn) map[string]handler.HealthProbe {
	probes := map[string]handler.HealthProbe{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if natsConn != nil {
		probes["nats"] = func(context.Context) error {
			if !natsConn.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	return probes
}

// shutdown stops accepting requests first, then drains background tasks.
func shutdown(app *fiber.App, runner *worker.Runner, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := runner.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("background tasks did not finish before shutdown")
	}

	logger.Info().Msg("server stopped")
}
