package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

// DeepAnalysisService runs the optional structural analyses and stores them beside the report.
type DeepAnalysisService interface {
	Queue(ctx context.Context, reportID string, actor Actor) error
	Run(ctx context.Context, reportID string) error
}

type deepAnalysisService struct {
	reports   repository.ReportRepository
	analyzer  ai.DeepAnalyzer
	scheduler TaskScheduler
	events    ReportEventPublisher
	tracer    trace.Tracer
	logger    zerolog.Logger

	mu    sync.Mutex
	locks map[string]*reportLock
}

// reportLock serializes sidecar merges for one report. refs counts holders
// and waiters so the entry can be dropped once nobody needs it.
type reportLock struct {
	mu   sync.Mutex
	refs int
}

// NewDeepAnalysisService constructs the deep analysis runner.
func NewDeepAnalysisService(reports repository.ReportRepository, analyzer ai.DeepAnalyzer, scheduler TaskScheduler, events ReportEventPublisher, logger zerolog.Logger) DeepAnalysisService {
	return &deepAnalysisService{
		reports:   reports,
		analyzer:  analyzer,
		scheduler: scheduler,
		events:    publisherOrNoop(events),
		tracer:    otel.Tracer("github.com/chldlstlr7-art/AITA-sub000/internal/service/deep_analysis"),
		logger:    logger.With().Str("component", "deep_analysis_service").Logger(),
		locks:     make(map[string]*reportLock),
	}
}

func (s *deepAnalysisService) Queue(ctx context.Context, reportID string, actor Actor) error {
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

	err = s.scheduler.Submit(worker.Task{
		Name:     "deep_analysis.run",
		ReportID: reportID,
		Run: func(ctx context.Context) error {
			return s.Run(ctx, reportID)
		},
	})
	if err != nil {
		return ErrSchedulerUnavailable
	}
	return nil
}

// Run launches every analysis kind in parallel. Each finished kind is merged
// into the sidecar as soon as it returns; a failed kind is stored as an error entry.
func (s *deepAnalysisService) Run(ctx context.Context, reportID string) error {
	ctx, span := s.tracer.Start(ctx, "deep_analysis.run", trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	report, err := loadReport(ctx, s.reports, reportID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	summary, err := report.SummaryValue()
	if err != nil {
		return corrupt(err)
	}
	input := ai.DeepAnalysisInput{Text: report.Text}
	if summary != nil {
		input.Summary = toAISummary(*summary)
	}

	log := s.logger.With().Str("report_id", reportID).Logger()

	var group errgroup.Group
	for _, kind := range ai.DeepAnalysisKinds {
		group.Go(func() error {
			result, err := s.analyzer.Analyze(ctx, kind, input)
			if err != nil {
				log.Warn().Err(err).Str("kind", kind).Msg("deep analysis failed")
				result, _ = json.Marshal(map[string]string{"error": err.Error()})
			}
			if err := s.merge(ctx, reportID, kind, result); err != nil {
				return fmt.Errorf("store %s: %w", kind, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deep_analysis_persist_failed")
		log.Error().Err(err).Msg("deep analysis results not stored")
		return err
	}

	log.Info().Int("kinds", len(ai.DeepAnalysisKinds)).Msg("deep analysis finished")
	s.events.Publish(ctx, ReportEvent{ReportID: reportID, Status: report.Status, Kind: EventDeepAnalysisRun})
	return nil
}

func (s *deepAnalysisService) merge(ctx context.Context, reportID, kind string, result json.RawMessage) error {
	unlock := s.lock(reportID)
	defer unlock()

	_, err := mutate(ctx, s.reports, reportID, func(report *models.Report) error {
		sidecar, err := report.DeepAnalysisValue()
		if err != nil {
			return corrupt(err)
		}
		sidecar[kind] = result
		report.DeepAnalysis, err = models.EncodeBlob(sidecar)
		return err
	})
	return err
}

func (s *deepAnalysisService) lock(reportID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[reportID]
	if !ok {
		lock = &reportLock{}
		s.locks[reportID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()

		s.mu.Lock()
		defer s.mu.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, reportID)
		}
	}
}

func (s *deepAnalysisService) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
