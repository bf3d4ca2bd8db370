package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/observability"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/similarity"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

const (
	snippetLength        = 500
	comparisonFanOut     = 3
	supervisorInterval   = time.Minute
	staleReportMessage   = "analysis timed out"
	fallbackQuestionText = "What is the single most important claim of your essay, and which evidence supports it best?"
)

// Pipeline stage names used in logs, metrics and failure messages.
const (
	stageAnalysis   = "analysis"
	stageComparison = "comparison"
	stageQuestions  = "questions"
)

var errStageSkipped = errors.New("stage skipped")

// TaskScheduler queues background work.
type TaskScheduler interface {
	Submit(task worker.Task) error
}

// FileUploader stores an uploaded source document and returns its URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// SourceFile is an uploaded plain-text document.
type SourceFile struct {
	Name    string
	Content []byte
}

// AnalysisRequest is a new essay submission.
type AnalysisRequest struct {
	Text    string
	DocType string
	IsTest  bool
	File    *SourceFile
}

// AnalysisPipelineService accepts essays and drives them through the analysis stages.
type AnalysisPipelineService interface {
	Submit(ctx context.Context, actor Actor, req AnalysisRequest) (string, error)
	StartSupervisor(ctx context.Context)
	SweepStale(ctx context.Context) (int, error)
}

// AnalysisPipelineDeps wires the pipeline collaborators.
type AnalysisPipelineDeps struct {
	Reports    repository.ReportRepository
	Summarizer ai.Summarizer
	Embedder   ai.Embedder
	Comparer   ai.Comparer
	Questions  ai.QuestionGenerator
	Scheduler  TaskScheduler
	Events     ReportEventPublisher
	Uploader   FileUploader
	Config     config.AnalysisConfig
	StaleAfter time.Duration
	Logger     zerolog.Logger
}

type analysisPipelineService struct {
	reports    repository.ReportRepository
	summarizer ai.Summarizer
	embedder   ai.Embedder
	comparer   ai.Comparer
	questions  ai.QuestionGenerator
	scheduler  TaskScheduler
	events     ReportEventPublisher
	uploader   FileUploader
	cfg        config.AnalysisConfig
	staleAfter time.Duration
	sanitizer  *bluemonday.Policy
	tracer     trace.Tracer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAnalysisPipelineService constructs the pipeline.
func NewAnalysisPipelineService(deps AnalysisPipelineDeps) AnalysisPipelineService {
	staleAfter := deps.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}

	return &analysisPipelineService{
		reports:    deps.Reports,
		summarizer: deps.Summarizer,
		embedder:   deps.Embedder,
		comparer:   deps.Comparer,
		questions:  deps.Questions,
		scheduler:  deps.Scheduler,
		events:     publisherOrNoop(deps.Events),
		uploader:   deps.Uploader,
		cfg:        deps.Config.WithDefaults(),
		staleAfter: staleAfter,
		sanitizer:  bluemonday.StrictPolicy(),
		tracer:     otel.Tracer("github.com/chldlstlr7-art/AITA-sub000/internal/service/analysis_pipeline"),
		logger:     deps.Logger.With().Str("component", "analysis_pipeline_service").Logger(),
		now:        time.Now,
	}
}

func (s *analysisPipelineService) Submit(ctx context.Context, actor Actor, req AnalysisRequest) (string, error) {
	text := req.Text
	if req.File != nil {
		if !mimetype.Detect(req.File.Content).Is("text/plain") {
			return "", ErrUnsupportedFileType
		}
		if strings.TrimSpace(text) == "" {
			text = string(req.File.Content)
		}
	}

	text = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(text)))
	if utf8.RuneCountInString(text) < s.cfg.MinTextLength {
		return "", ErrTextTooShort
	}

	report := models.Report{
		ID:      uuid.NewString(),
		OwnerID: actor.ID,
		Status:  models.ReportStatusProcessing,
		DocType: strings.TrimSpace(req.DocType),
		IsTest:  req.IsTest,
		Text:    text,
		Snippet: snippet(text),
	}

	if req.File != nil && s.uploader != nil {
		url, err := s.uploader.Upload(ctx, req.File.Name, bytes.NewReader(req.File.Content))
		if err != nil {
			s.logger.Warn().Err(err).Str("report_id", report.ID).Msg("source file upload failed")
		} else {
			report.SourceFileURL = url
		}
	}

	if err := s.reports.Create(ctx, &report); err != nil {
		return "", err
	}

	s.events.Publish(ctx, ReportEvent{ReportID: report.ID, Status: report.Status, Kind: EventStatusChanged})
	if err := s.schedule(report.ID, stageAnalysis, s.runAnalysis); err != nil {
		s.fail(ctx, report.ID, stageAnalysis, err)
		return "", ErrSchedulerUnavailable
	}

	s.logger.Info().
		Str("report_id", report.ID).
		Uint("owner_id", actor.ID).
		Bool("is_test", report.IsTest).
		Int("length", utf8.RuneCountInString(text)).
		Msg("report accepted for analysis")
	return report.ID, nil
}

func (s *analysisPipelineService) schedule(reportID, stage string, run func(ctx context.Context, reportID string) error) error {
	return s.scheduler.Submit(worker.Task{
		Name:     "pipeline." + stage,
		ReportID: reportID,
		Run: func(ctx context.Context) error {
			return run(ctx, reportID)
		},
		OnFailure: func(ctx context.Context, err error) {
			s.failStage(ctx, reportID, stage, err)
		},
	})
}

// enterStage moves the report from expected to next. A mismatched status
// means another trigger already ran this stage.
func (s *analysisPipelineService) enterStage(ctx context.Context, reportID, expected, next string) (models.Report, error) {
	return mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		if report.Status != expected {
			return errStageSkipped
		}
		report.Status = next
		return nil
	})
}

func (s *analysisPipelineService) runStage(ctx context.Context, reportID, stage string, fn func(ctx context.Context, log zerolog.Logger) error) error {
	ctx, span := s.tracer.Start(ctx, "pipeline."+stage, trace.WithAttributes(
		attribute.String("report.id", reportID),
	))
	defer span.End()

	log := s.logger.With().Str("report_id", reportID).Str("stage", stage).Logger()
	start := s.now()
	err := fn(ctx, log)
	observability.StageDuration().WithLabelValues(stage).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		observability.StageOutcomes().WithLabelValues(stage, "ok").Inc()
		log.Info().Dur("duration", time.Since(start)).Msg("stage completed")
		return nil
	case errors.Is(err, errStageSkipped):
		observability.StageOutcomes().WithLabelValues(stage, "skipped").Inc()
		log.Info().Msg("stage skipped, status already advanced")
		return nil
	default:
		observability.StageOutcomes().WithLabelValues(stage, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("stage failed")
		s.failStage(ctx, reportID, stage, err)
		return err
	}
}

func (s *analysisPipelineService) runAnalysis(ctx context.Context, reportID string) error {
	return s.runStage(ctx, reportID, stageAnalysis, func(ctx context.Context, log zerolog.Logger) error {
		report, err := s.enterStage(ctx, reportID, models.ReportStatusProcessing, models.ReportStatusProcessingAnalysis)
		if err != nil {
			return err
		}
		s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: report.Status, Kind: EventStatusChanged})

		summary, err := s.summarizer.Summarize(ctx, report.Text)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}

		var thesisVector, claimVector []float64
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			vector, err := s.embedder.Embed(groupCtx, strings.TrimSpace(summary.KeyConcepts+" "+summary.CoreThesis))
			if err != nil {
				return fmt.Errorf("embed thesis: %w", err)
			}
			thesisVector = vector
			return nil
		})
		group.Go(func() error {
			vector, err := s.embedder.Embed(groupCtx, strings.TrimSpace(summary.KeyConcepts+" "+summary.Claim))
			if err != nil {
				return fmt.Errorf("embed claim: %w", err)
			}
			claimVector = vector
			return nil
		})
		if err := group.Wait(); err != nil {
			return err
		}

		summaryBlob, err := models.EncodeBlob(fromAISummary(summary))
		if err != nil {
			return err
		}
		thesisBlob, err := models.EncodeBlob(thesisVector)
		if err != nil {
			return err
		}
		claimBlob, err := models.EncodeBlob(claimVector)
		if err != nil {
			return err
		}
		emptyList, _ := models.EncodeBlob([]struct{}{})

		updated, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
			if report.Status != models.ReportStatusProcessingAnalysis {
				return errStageSkipped
			}
			report.Summary = summaryBlob
			report.ThesisVector = thesisBlob
			report.ClaimVector = claimBlob
			report.QAHistory = emptyList
			report.QuestionPool = emptyList
			report.Status = models.ReportStatusProcessingComparison
			return nil
		})
		if err != nil {
			return err
		}

		log.Debug().Int("vector_dims", len(thesisVector)).Msg("summary and embeddings stored")
		s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: updated.Status, Kind: EventStatusChanged})
		return s.schedule(reportID, stageComparison, s.runComparison)
	})
}

func (s *analysisPipelineService) runComparison(ctx context.Context, reportID string) error {
	return s.runStage(ctx, reportID, stageComparison, func(ctx context.Context, log zerolog.Logger) error {
		report, err := loadReport(ctx, s.reports, reportID)
		if err != nil {
			return err
		}
		if report.Status != models.ReportStatusProcessingComparison {
			return errStageSkipped
		}

		summary, err := report.SummaryValue()
		if err != nil {
			return err
		}
		if summary == nil {
			return errors.New("summary missing")
		}
		thesis, claim, err := report.Vectors()
		if err != nil {
			return err
		}

		rows, err := s.reports.ListComparisonCandidates(ctx, reportID)
		if err != nil {
			return fmt.Errorf("list candidates: %w", err)
		}

		candidates := make([]similarity.Candidate, 0, len(rows))
		summaries := make(map[string]models.StructuredSummary, len(rows))
		for _, row := range rows {
			rowThesis, rowClaim, err := row.Vectors()
			if err != nil {
				log.Warn().Err(err).Str("candidate_id", row.ID).Msg("skipping candidate with unreadable vectors")
				continue
			}
			rowSummary, err := row.SummaryValue()
			if err != nil || rowSummary == nil {
				log.Warn().Err(err).Str("candidate_id", row.ID).Msg("skipping candidate without summary")
				continue
			}
			summaries[row.ID] = *rowSummary
			candidates = append(candidates, similarity.Candidate{ReportID: row.ID, ThesisVector: rowThesis, ClaimVector: rowClaim})
		}

		matches := similarity.FindSimilar(reportID, thesis, claim, candidates, s.cfg.SimilarityTopN)
		comparisons := make([]models.ComparisonResult, len(matches))

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(comparisonFanOut)
		for i, match := range matches {
			group.Go(func() error {
				text, err := s.comparer.Compare(groupCtx, ai.ComparisonInput{
					Submission: toAISummary(*summary),
					Candidate:  toAISummary(summaries[match.ReportID]),
				})
				if err != nil {
					return fmt.Errorf("compare with %s: %w", match.ReportID, err)
				}
				comparisons[i] = similarity.Score(models.ComparisonResult{
					CandidateID:      match.ReportID,
					VectorScore:      match.Score,
					ThesisSimilarity: match.ThesisSimilarity,
					ClaimSimilarity:  match.ClaimSimilarity,
					ComparisonReport: text,
				})
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		high := similarity.FilterHighSimilarity(comparisons, s.cfg.SimilarityThreshold)

		comparisonsBlob, err := models.EncodeBlob(comparisons)
		if err != nil {
			return err
		}
		highBlob, err := models.EncodeBlob(high)
		if err != nil {
			return err
		}

		updated, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
			if report.Status != models.ReportStatusProcessingComparison {
				return errStageSkipped
			}
			report.Comparisons = comparisonsBlob
			report.HighSimilarity = highBlob
			report.Status = models.ReportStatusProcessingQuestions
			return nil
		})
		if err != nil {
			return err
		}

		log.Info().Int("candidates", len(candidates)).Int("compared", len(comparisons)).Int("high_similarity", len(high)).Msg("comparison stored")
		s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: updated.Status, Kind: EventStatusChanged})
		return s.schedule(reportID, stageQuestions, s.runQuestions)
	})
}

func (s *analysisPipelineService) runQuestions(ctx context.Context, reportID string) error {
	return s.runStage(ctx, reportID, stageQuestions, func(ctx context.Context, log zerolog.Logger) error {
		report, err := loadReport(ctx, s.reports, reportID)
		if err != nil {
			return err
		}
		if report.Status != models.ReportStatusProcessingQuestions {
			return errStageSkipped
		}

		generated, genErr := s.generateInitialQuestions(ctx, report)
		return s.storeQuestions(ctx, log, reportID, generated, genErr)
	})
}

func (s *analysisPipelineService) generateInitialQuestions(ctx context.Context, report models.Report) ([]ai.Question, error) {
	summary, err := report.SummaryValue()
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, errors.New("summary missing")
	}
	high, err := report.HighSimilarityValue()
	if err != nil {
		return nil, err
	}

	return s.questions.GenerateQuestions(ctx, ai.QuestionRequest{
		Summary:        toAISummary(*summary),
		Snippet:        report.Snippet,
		HighSimilarity: similarityContext(high),
		Count:          s.cfg.InitialQuestionCount,
		Types:          models.InitialQuestionTypes,
	})
}

// storeQuestions completes the report. A generation failure of any kind
// leaves a single fallback root and records the cause in question_error.
func (s *analysisPipelineService) storeQuestions(ctx context.Context, log zerolog.Logger, reportID string, generated []ai.Question, genErr error) error {
	now := s.now().UTC()
	var roots []models.QAEntry
	var pool []models.PoolQuestion
	questionError := ""
	if genErr != nil {
		questionError = genErr.Error()
		log.Warn().Err(genErr).Msg("question generation failed, using fallback question")
		roots = []models.QAEntry{newQAEntry(fallbackQuestionText, models.QuestionTypeCritical, nil, now)}
		pool = []models.PoolQuestion{}
	} else {
		roots, pool = splitInitialQuestions(toPoolQuestions(generated), now)
	}

	historyBlob, err := models.EncodeBlob(roots)
	if err != nil {
		return err
	}
	poolBlob, err := models.EncodeBlob(pool)
	if err != nil {
		return err
	}

	_, err = mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		if report.Status != models.ReportStatusProcessingQuestions {
			return errStageSkipped
		}
		report.QAHistory = historyBlob
		report.QuestionPool = poolBlob
		report.QuestionError = questionError
		report.Status = models.ReportStatusCompleted
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("initial_questions", len(roots)).Int("pool_size", len(pool)).Bool("fallback", genErr != nil).Msg("questions stored")
	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: models.ReportStatusCompleted, Kind: EventStatusChanged})
	return nil
}

// failStage records a worker-level failure. The questions stage still
// completes the report with the fallback root.
func (s *analysisPipelineService) failStage(ctx context.Context, reportID, stage string, cause error) {
	if stage == stageQuestions {
		log := s.logger.With().Str("report_id", reportID).Str("stage", stage).Logger()
		err := s.storeQuestions(ctx, log, reportID, nil, cause)
		if err == nil || errors.Is(err, errStageSkipped) {
			return
		}
		log.Error().Err(err).Msg("failed to store fallback question")
	}
	s.fail(ctx, reportID, stage, cause)
}

// fail moves a non-terminal report into the error status.
func (s *analysisPipelineService) fail(ctx context.Context, reportID, stage string, cause error) {
	message := fmt.Sprintf("%s stage: %v", stage, cause)
	_, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		if report.IsTerminal() {
			return errNoChange
		}
		report.Status = models.ReportStatusError
		report.ErrorMessage = message
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("report_id", reportID).Str("stage", stage).Msg("failed to record stage failure")
		return
	}
	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: models.ReportStatusError, Kind: EventStatusChanged, Message: message})
}

func (s *analysisPipelineService) StartSupervisor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(supervisorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error().Err(err).Msg("stale report sweep failed")
				}
			}
		}
	}()
}

func (s *analysisPipelineService) SweepStale(ctx context.Context) (int, error) {
	ids, err := s.reports.MarkStale(ctx, s.now().Add(-s.staleAfter), staleReportMessage)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.logger.Warn().Str("report_id", id).Dur("stale_after", s.staleAfter).Msg("report marked as timed out")
		s.events.Publish(ctx, ReportEvent{ReportID: id, Status: models.ReportStatusError, Kind: EventStatusChanged, Message: staleReportMessage})
	}
	return len(ids), nil
}

// splitInitialQuestions chooses the first question of each initial type as a
// QA root and returns the rest, in generator order, as the pool.
func splitInitialQuestions(questions []models.PoolQuestion, now time.Time) ([]models.QAEntry, []models.PoolQuestion) {
	picked := make(map[int]bool, len(models.InitialQuestionTypes))
	roots := make([]models.QAEntry, 0, len(models.InitialQuestionTypes))
	for _, questionType := range models.InitialQuestionTypes {
		for i, question := range questions {
			if !picked[i] && question.Type == questionType {
				picked[i] = true
				roots = append(roots, newQAEntry(question.Question, question.Type, nil, now))
				break
			}
		}
	}

	pool := make([]models.PoolQuestion, 0, len(questions)-len(roots))
	for i, question := range questions {
		if !picked[i] {
			pool = append(pool, question)
		}
	}
	return roots, pool
}

func newQAEntry(question, questionType string, parentID *string, now time.Time) models.QAEntry {
	return models.QAEntry{
		QuestionID:       uuid.NewString(),
		Question:         question,
		Type:             questionType,
		ParentQuestionID: parentID,
		AskedAt:          now,
	}
}

func snippet(text string) string {
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetLength])
}
