package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func testRunner(t *testing.T) *worker.Runner {
	t.Helper()
	runner := worker.NewRunner(worker.Config{Concurrency: 4, Timeout: 5 * time.Second}, testLogger())
	t.Cleanup(func() {
		_ = runner.Shutdown(context.Background())
	})
	return runner
}

func strPtr(value string) *string { return &value }

func uintPtr(value uint) *uint { return &value }

// memoryReportRepo enforces the same revision check as the GORM repository.
type memoryReportRepo struct {
	mu        sync.Mutex
	reports   map[string]models.Report
	updates   int
	conflicts int
}

func newMemoryReportRepo(reports ...models.Report) *memoryReportRepo {
	repo := &memoryReportRepo{reports: make(map[string]models.Report)}
	for _, report := range reports {
		repo.reports[report.ID] = report
	}
	return repo
}

func (m *memoryReportRepo) Create(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[report.ID]; exists {
		return fmt.Errorf("duplicate report %s", report.ID)
	}
	report.CreatedAt = time.Now()
	report.UpdatedAt = report.CreatedAt
	m.reports[report.ID] = *report
	return nil
}

func (m *memoryReportRepo) GetByID(ctx context.Context, id string) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok {
		return models.Report{}, gorm.ErrRecordNotFound
	}
	return report, nil
}

func (m *memoryReportRepo) Update(ctx context.Context, report *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.reports[report.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Revision != report.Revision {
		m.conflicts++
		return repository.ErrRevisionConflict
	}
	report.Revision++
	report.UpdatedAt = time.Now()
	m.reports[report.ID] = *report
	m.updates++
	return nil
}

func (m *memoryReportRepo) ListComparisonCandidates(ctx context.Context, excludeID string) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []models.Report
	for _, report := range m.reports {
		if report.ID == excludeID || report.IsTest || len(report.ThesisVector) == 0 || len(report.ClaimVector) == 0 {
			continue
		}
		candidates = append(candidates, report)
	}
	return candidates, nil
}

func (m *memoryReportRepo) ListByAssignmentWithoutAutoGrade(ctx context.Context, assignmentID uint) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []models.Report
	for _, report := range m.reports {
		if report.AssignmentID != nil && *report.AssignmentID == assignmentID && len(report.AutoGrade) == 0 {
			pending = append(pending, report)
		}
	}
	return pending, nil
}

func (m *memoryReportRepo) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, report := range m.reports {
		if report.AssignmentID != nil && *report.AssignmentID == assignmentID {
			count++
		}
	}
	return count, nil
}

func (m *memoryReportRepo) CountByCourse(ctx context.Context, courseID uint) (int64, error) {
	return 0, errors.New("not supported by memory repo")
}

func (m *memoryReportRepo) MarkStale(ctx context.Context, before time.Time, message string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, report := range m.reports {
		if models.IsProcessingStatus(report.Status) && report.UpdatedAt.Before(before) {
			report.Status = models.ReportStatusError
			report.ErrorMessage = message
			report.Revision++
			m.reports[id] = report
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryReportRepo) get(t *testing.T, id string) models.Report {
	t.Helper()
	report, err := m.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("report %s: %v", id, err)
	}
	return report
}

type memoryAssignmentRepo struct {
	assignments map[uint]models.Assignment
}

func newMemoryAssignmentRepo(assignments ...models.Assignment) *memoryAssignmentRepo {
	repo := &memoryAssignmentRepo{assignments: make(map[uint]models.Assignment)}
	for _, assignment := range assignments {
		repo.assignments[assignment.ID] = assignment
	}
	return repo
}

func (m *memoryAssignmentRepo) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, ok := m.assignments[id]
	if !ok {
		return models.Assignment{}, gorm.ErrRecordNotFound
	}
	return assignment, nil
}

func (m *memoryAssignmentRepo) ListByCourse(ctx context.Context, courseID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	for _, assignment := range m.assignments {
		if assignment.CourseID == courseID {
			assignments = append(assignments, assignment)
		}
	}
	return assignments, nil
}

func (m *memoryAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	assignment.ID = uint(len(m.assignments) + 1)
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *memoryAssignmentRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.assignments[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.assignments, id)
	return nil
}

type stubCourseRepo struct {
	tas map[uint][]uint
}

func (s *stubCourseRepo) Create(ctx context.Context, course *models.Course) error { return nil }

func (s *stubCourseRepo) GetByID(ctx context.Context, id uint) (models.Course, error) {
	return models.Course{ID: id}, nil
}

func (s *stubCourseRepo) AddStudent(ctx context.Context, courseID, userID uint) error { return nil }

func (s *stubCourseRepo) AddTA(ctx context.Context, courseID, userID uint) error { return nil }

func (s *stubCourseRepo) IsTA(ctx context.Context, courseID, userID uint) (bool, error) {
	for _, id := range s.tas[courseID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubCourseRepo) Delete(ctx context.Context, id uint) error { return nil }

type memoryActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (m *memoryActivityRecorder) Record(ctx context.Context, entry ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryActivityRecorder) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ReportEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, event ReportEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]string, 0, len(r.events))
	for _, event := range r.events {
		statuses = append(statuses, event.Status)
	}
	return statuses
}

func (r *recordingPublisher) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

// fakeAI implements every capability with canned, counted responses.
type fakeAI struct {
	mu sync.Mutex

	summary      ai.Summary
	summarizeErr error
	vector       []float64
	comparison   string
	questions    []ai.Question
	questionErr  error
	followUp     ai.Question
	followUpErr  error
	grade        string
	gradeErr     error
	analysisErr  map[string]error

	summarizeCalls int
	questionCalls  int
	followUpChains [][]ai.Exchange
	compareCalls   int
	questionCounts []int
}

func newFakeAI() *fakeAI {
	return &fakeAI{
		summary: ai.Summary{
			CoreThesis:  "Remote work raises output",
			Claim:       "Teams ship faster at home",
			Reasoning:   "Fewer interruptions",
			KeyConcepts: "remote work, productivity",
		},
		vector:     []float64{0.1, 0.2, 0.3},
		comparison: "Core Thesis: 2\nClaim: 2\nReasoning: 1\nFlow Pattern: 1\nProblem Framing: 1\nConclusion Framing: 1",
		questions:  questionBatch("q", 9),
		followUp:   ai.Question{Question: "Why does that follow?", Type: models.QuestionTypeDeepDive},
	}
}

func questionBatch(prefix string, count int) []ai.Question {
	questions := make([]ai.Question, 0, count)
	for i := 0; i < count; i++ {
		questionType := models.InitialQuestionTypes[i%len(models.InitialQuestionTypes)]
		questions = append(questions, ai.Question{Question: fmt.Sprintf("%s question %d?", prefix, i+1), Type: questionType})
	}
	return questions
}

func (f *fakeAI) Summarize(ctx context.Context, text string) (ai.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarizeCalls++
	return f.summary, f.summarizeErr
}

func (f *fakeAI) Embed(ctx context.Context, text string) ([]float64, error) {
	return append([]float64(nil), f.vector...), nil
}

func (f *fakeAI) Compare(ctx context.Context, input ai.ComparisonInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compareCalls++
	return f.comparison, nil
}

func (f *fakeAI) GenerateQuestions(ctx context.Context, req ai.QuestionRequest) ([]ai.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	f.questionCounts = append(f.questionCounts, req.Count)
	if f.questionErr != nil {
		return nil, f.questionErr
	}
	return append([]ai.Question(nil), f.questions...), nil
}

func (f *fakeAI) GenerateFollowUp(ctx context.Context, req ai.FollowUpRequest) (ai.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUpChains = append(f.followUpChains, req.Chain)
	return f.followUp, f.followUpErr
}

func (f *fakeAI) Grade(ctx context.Context, input ai.GradingInput) (string, error) {
	return f.grade, f.gradeErr
}

func (f *fakeAI) Analyze(ctx context.Context, kind string, input ai.DeepAnalysisInput) (json.RawMessage, error) {
	if err := f.analysisErr[kind]; err != nil {
		return nil, err
	}
	return json.RawMessage(fmt.Sprintf(`{"kind":%q}`, kind)), nil
}

func essay() string {
	return strings.Repeat("Remote work lets teams focus on deep work. ", 4)
}

func mustBlob(t *testing.T, value interface{}) []byte {
	t.Helper()
	blob, err := models.EncodeBlob(value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return blob
}
