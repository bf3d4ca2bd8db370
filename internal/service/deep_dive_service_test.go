package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/worker"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

func chainHistory() []models.QAEntry {
	now := time.Now().UTC()
	return []models.QAEntry{
		{QuestionID: "root", Question: "Q1?", Type: models.QuestionTypeCritical, Answer: strPtr("A1"), AskedAt: now},
		{QuestionID: "child", Question: "Q2?", Type: models.QuestionTypeDeepDive, Answer: strPtr("A2"), ParentQuestionID: strPtr("root"), AskedAt: now},
		{QuestionID: "open", Question: "Q3?", Type: models.QuestionTypePerspective, AskedAt: now},
	}
}

// queueingScheduler holds tasks until the test runs them.
type queueingScheduler struct{ tasks []worker.Task }

func (q *queueingScheduler) Submit(task worker.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

func TestDeepDiveBuildsThreeLevelChain(t *testing.T) {
	history := append(chainHistory(), models.QAEntry{
		QuestionID:       "grandchild",
		Question:         "Q4?",
		Type:             models.QuestionTypeDeepDive,
		Answer:           strPtr("A4"),
		ParentQuestionID: strPtr("child"),
		AskedAt:          time.Now().UTC(),
	})
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, history))
	fake := newFakeAI()
	runner := testRunner(t)
	events := &recordingPublisher{}
	svc := NewDeepDiveService(repo, fake, runner, events, testLogger())

	require.NoError(t, svc.Request(context.Background(), "r-1", "grandchild", Actor{ID: 1}))
	runner.Wait()

	require.Len(t, fake.followUpChains, 1)
	require.Equal(t, []ai.Exchange{
		{Question: "Q1?", Answer: "A1"},
		{Question: "Q2?", Answer: "A2"},
		{Question: "Q4?", Answer: "A4"},
	}, fake.followUpChains[0])

	stored, err := repo.get(t, "r-1").QAHistoryValue()
	require.NoError(t, err)
	require.Len(t, stored, 5)
	added := stored[4]
	require.Equal(t, models.QuestionTypeDeepDive, added.Type)
	require.NotNil(t, added.ParentQuestionID)
	require.Equal(t, "grandchild", *added.ParentQuestionID)
	require.Nil(t, added.Answer)
	require.Contains(t, events.kinds(), EventDeepDiveReady)
}

func TestDeepDiveGenerateSkipsBrokenChain(t *testing.T) {
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, chainHistory()))
	fake := newFakeAI()
	scheduler := &queueingScheduler{}
	svc := NewDeepDiveService(repo, fake, scheduler, nil, testLogger())

	require.NoError(t, svc.Request(context.Background(), "r-1", "child", Actor{ID: 1}))
	require.Len(t, scheduler.tasks, 1)

	// The root disappears between validation and generation.
	report := repo.get(t, "r-1")
	report.QAHistory = mustBlob(t, chainHistory()[1:])
	repo.reports["r-1"] = report

	require.NoError(t, scheduler.tasks[0].Run(context.Background()))

	require.Empty(t, fake.followUpChains)
	history, err := repo.get(t, "r-1").QAHistoryValue()
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestDeepDiveRejectsUnansweredParent(t *testing.T) {
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, chainHistory()))
	fake := newFakeAI()
	svc := NewDeepDiveService(repo, fake, testRunner(t), nil, testLogger())

	err := svc.Request(context.Background(), "r-1", "open", Actor{ID: 1})
	require.ErrorIs(t, err, ErrParentUnanswered)
	require.Empty(t, fake.followUpChains)
}

func TestDeepDiveUnknownParent(t *testing.T) {
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, chainHistory()))
	svc := NewDeepDiveService(repo, newFakeAI(), testRunner(t), nil, testLogger())

	err := svc.Request(context.Background(), "r-1", "missing", Actor{ID: 1})
	require.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestDeepDiveStaffMayRequest(t *testing.T) {
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, chainHistory()))
	runner := testRunner(t)
	svc := NewDeepDiveService(repo, newFakeAI(), runner, nil, testLogger())

	require.NoError(t, svc.Request(context.Background(), "r-1", "root", Actor{ID: 7, Role: RoleTA}))
	runner.Wait()

	history, err := repo.get(t, "r-1").QAHistoryValue()
	require.NoError(t, err)
	require.Len(t, history, 4)
}

func TestAncestorChainStopsOnCycle(t *testing.T) {
	history := []models.QAEntry{
		{QuestionID: "a", Question: "A?", Answer: strPtr("x"), ParentQuestionID: strPtr("b")},
		{QuestionID: "b", Question: "B?", Answer: strPtr("y"), ParentQuestionID: strPtr("a")},
	}

	_, ok := ancestorChain(history, "a")
	require.False(t, ok)
}

func TestAncestorChainRequiresAnsweredAncestors(t *testing.T) {
	history := []models.QAEntry{
		{QuestionID: "root", Question: "R?"},
		{QuestionID: "leaf", Question: "L?", Answer: strPtr("x"), ParentQuestionID: strPtr("root")},
	}

	_, ok := ancestorChain(history, "leaf")
	require.False(t, ok)
}
