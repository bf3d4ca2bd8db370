package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/config"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

const refillFlagTimeout = 30 * time.Second

// QuestionPoolService hands out pooled questions and keeps the pool topped up.
type QuestionPoolService interface {
	Next(ctx context.Context, reportID string, actor Actor) (models.QAEntry, error)
	Refill(ctx context.Context, reportID string) error
}

type questionPoolService struct {
	reports   repository.ReportRepository
	questions ai.QuestionGenerator
	scheduler TaskScheduler
	events    ReportEventPublisher
	cfg       config.AnalysisConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewQuestionPoolService constructs the pool manager.
func NewQuestionPoolService(reports repository.ReportRepository, questions ai.QuestionGenerator, scheduler TaskScheduler, events ReportEventPublisher, cfg config.AnalysisConfig, logger zerolog.Logger) QuestionPoolService {
	return &questionPoolService{
		reports:   reports,
		questions: questions,
		scheduler: scheduler,
		events:    publisherOrNoop(events),
		cfg:       cfg.WithDefaults(),
		logger:    logger.With().Str("component", "question_pool_service").Logger(),
		now:       time.Now,
	}
}

func (s *questionPoolService) Next(ctx context.Context, reportID string, actor Actor) (models.QAEntry, error) {
	var (
		popped        models.QAEntry
		triggerRefill bool
		poolEmpty     bool
		poolLeft      int
	)

	_, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		popped, triggerRefill, poolEmpty, poolLeft = models.QAEntry{}, false, false, 0

		if !canAccess(*report, actor) {
			return ErrReportForbidden
		}
		if report.Status != models.ReportStatusCompleted {
			return ErrReportNotCompleted
		}

		pool, err := report.QuestionPoolValue()
		if err != nil {
			return corrupt(err)
		}
		history, err := report.QAHistoryValue()
		if err != nil {
			return corrupt(err)
		}

		if len(pool) == 0 {
			if report.IsRefilling {
				return ErrPoolRefilling
			}
			report.IsRefilling = true
			triggerRefill, poolEmpty = true, true
			return nil
		}

		head := pool[0]
		pool = pool[1:]
		popped = newQAEntry(head.Question, head.Type, nil, s.now().UTC())
		history = append(history, popped)

		if len(pool) <= s.cfg.PoolLowWaterMark && !report.IsRefilling {
			report.IsRefilling = true
			triggerRefill = true
		}

		if report.QuestionPool, err = models.EncodeBlob(pool); err != nil {
			return err
		}
		if report.QAHistory, err = models.EncodeBlob(history); err != nil {
			return err
		}
		poolLeft = len(pool)
		return nil
	})
	if err != nil {
		return models.QAEntry{}, err
	}

	if triggerRefill {
		s.scheduleRefill(ctx, reportID)
	}
	if poolEmpty {
		s.logger.Warn().Str("report_id", reportID).Msg("question pool exhausted, emergency refill started")
		return models.QAEntry{}, ErrPoolEmpty
	}

	s.logger.Debug().Str("report_id", reportID).Str("question_id", popped.QuestionID).Int("pool_left", poolLeft).Bool("refill", triggerRefill).Msg("question popped from pool")
	return popped, nil
}

func (s *questionPoolService) scheduleRefill(ctx context.Context, reportID string) {
	err := s.scheduler.Submit(worker.Task{
		Name:     "pool.refill",
		ReportID: reportID,
		Run: func(ctx context.Context) error {
			return s.Refill(ctx, reportID)
		},
		OnFailure: func(ctx context.Context, err error) {
			s.clearRefilling(ctx, reportID)
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("report_id", reportID).Msg("failed to schedule pool refill")
		s.clearRefilling(ctx, reportID)
	}
}

// Refill generates a new batch and appends it to whatever the pool holds at
// write time. The refilling flag is cleared on every exit path.
func (s *questionPoolService) Refill(ctx context.Context, reportID string) error {
	defer s.clearRefilling(ctx, reportID)

	log := s.logger.With().Str("report_id", reportID).Logger()

	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		return err
	}
	summary, err := report.SummaryValue()
	if err != nil {
		return corrupt(err)
	}
	if summary == nil {
		return fmt.Errorf("refill %s: summary missing", reportID)
	}
	high, err := report.HighSimilarityValue()
	if err != nil {
		return corrupt(err)
	}

	generated, err := s.questions.GenerateQuestions(ctx, ai.QuestionRequest{
		Summary:        toAISummary(*summary),
		Snippet:        report.Snippet,
		HighSimilarity: similarityContext(high),
		Count:          s.cfg.RefillBatchSize,
		Types:          models.InitialQuestionTypes,
	})
	if err != nil {
		log.Error().Err(err).Msg("question refill generation failed")
		return err
	}
	if len(generated) > s.cfg.RefillBatchSize {
		generated = generated[:s.cfg.RefillBatchSize]
	}
	batch := toPoolQuestions(generated)

	_, err = mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		pool, err := report.QuestionPoolValue()
		if err != nil {
			return corrupt(err)
		}
		pool = append(pool, batch...)

		if report.QuestionPool, err = models.EncodeBlob(pool); err != nil {
			return err
		}
		report.IsRefilling = false
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("added", len(batch)).Msg("question pool refilled")
	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: models.ReportStatusCompleted, Kind: EventQuestionsReady})
	return nil
}

func (s *questionPoolService) clearRefilling(ctx context.Context, reportID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refillFlagTimeout)
	defer cancel()

	_, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		if !report.IsRefilling {
			return errNoChange
		}
		report.IsRefilling = false
		return nil
	})
	if err != nil && !errors.Is(err, ErrReportNotFound) {
		s.logger.Error().Err(err).Str("report_id", reportID).Msg("failed to clear refilling flag")
	}
}
