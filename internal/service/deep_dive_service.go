package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

// DeepDiveService generates follow-up questions on answered questions.
type DeepDiveService interface {
	Request(ctx context.Context, reportID, parentQuestionID string, actor Actor) error
	Generate(ctx context.Context, reportID, parentQuestionID string) error
}

type deepDiveService struct {
	reports   repository.ReportRepository
	questions ai.QuestionGenerator
	scheduler TaskScheduler
	events    ReportEventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDeepDiveService constructs the deep-dive generator.
func NewDeepDiveService(reports repository.ReportRepository, questions ai.QuestionGenerator, scheduler TaskScheduler, events ReportEventPublisher, logger zerolog.Logger) DeepDiveService {
	return &deepDiveService{
		reports:   reports,
		questions: questions,
		scheduler: scheduler,
		events:    publisherOrNoop(events),
		logger:    logger.With().Str("component", "deep_dive_service").Logger(),
		now:       time.Now,
	}
}

// Request validates the parent question and queues generation.
func (s *deepDiveService) Request(ctx context.Context, reportID, parentQuestionID string, actor Actor) error {
	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		return err
	}
	if !canAccess(report, actor) {
		return ErrReportForbidden
	}
	if report.Status != models.ReportStatusCompleted {
		return ErrReportNotCompleted
	}

	history, err := report.QAHistoryValue()
	if err != nil {
		return corrupt(err)
	}
	parent, ok := findEntry(history, parentQuestionID)
	if !ok {
		return ErrQuestionNotFound
	}
	if !parent.IsAnswered() {
		return ErrParentUnanswered
	}

	err = s.scheduler.Submit(worker.Task{
		Name:     "deep_dive.generate",
		ReportID: reportID,
		Run: func(ctx context.Context) error {
			return s.Generate(ctx, reportID, parentQuestionID)
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("report_id", reportID).Msg("failed to schedule deep-dive")
		return ErrSchedulerUnavailable
	}
	return nil
}

// Generate builds the root-to-parent chain, asks for a follow-up and appends it.
func (s *deepDiveService) Generate(ctx context.Context, reportID, parentQuestionID string) error {
	log := s.logger.With().Str("report_id", reportID).Str("parent_question_id", parentQuestionID).Logger()

	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		return err
	}
	summary, err := report.SummaryValue()
	if err != nil {
		return corrupt(err)
	}
	if summary == nil {
		log.Warn().Msg("deep-dive aborted, summary missing")
		return nil
	}
	history, err := report.QAHistoryValue()
	if err != nil {
		return corrupt(err)
	}

	chain, ok := ancestorChain(history, parentQuestionID)
	if !ok {
		log.Warn().Msg("deep-dive aborted, conversation chain is broken")
		return nil
	}

	question, err := s.questions.GenerateFollowUp(ctx, ai.FollowUpRequest{
		Summary: toAISummary(*summary),
		Chain:   chain,
	})
	if err != nil {
		log.Error().Err(err).Msg("deep-dive generation failed")
		return err
	}

	parentID := parentQuestionID
	entry := newQAEntry(question.Question, models.QuestionTypeDeepDive, &parentID, s.now().UTC())

	_, err = mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		current, err := report.QAHistoryValue()
		if err != nil {
			return corrupt(err)
		}
		current = append(current, entry)
		report.QAHistory, err = models.EncodeBlob(current)
		return err
	})
	if err != nil {
		return err
	}

	log.Info().Str("question_id", entry.QuestionID).Int("depth", len(chain)).Msg("deep-dive question appended")
	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: report.Status, Kind: EventDeepDiveReady})
	return nil
}

// ancestorChain walks from leafID to its root and returns the answered
// exchanges in root-to-leaf order. Any missing, unanswered or cyclic link
// breaks the chain.
func ancestorChain(history []models.QAEntry, leafID string) ([]ai.Exchange, bool) {
	byID := make(map[string]models.QAEntry, len(history))
	for _, entry := range history {
		byID[entry.QuestionID] = entry
	}

	var reversed []ai.Exchange
	visited := make(map[string]bool)
	current := &leafID
	for current != nil {
		if visited[*current] {
			return nil, false
		}
		visited[*current] = true

		entry, ok := byID[*current]
		if !ok || !entry.IsAnswered() {
			return nil, false
		}
		reversed = append(reversed, ai.Exchange{Question: entry.Question, Answer: *entry.Answer})
		current = entry.ParentQuestionID
	}

	chain := make([]ai.Exchange, len(reversed))
	for i, exchange := range reversed {
		chain[len(reversed)-1-i] = exchange
	}
	return chain, true
}

func findEntry(history []models.QAEntry, questionID string) (models.QAEntry, bool) {
	for _, entry := range history {
		if entry.QuestionID == questionID {
			return entry, true
		}
	}
	return models.QAEntry{}, false
}
