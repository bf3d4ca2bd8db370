package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/pkg/ai"
)

func TestDeepAnalysisMergesEveryKind(t *testing.T) {
	repo := newMemoryReportRepo(completedReport(t, "r-1", nil, nil))
	fake := newFakeAI()
	fake.analysisErr = map[string]error{ai.AnalysisFlowDisconnect: errors.New("timeout")}
	runner := testRunner(t)
	events := &recordingPublisher{}
	svc := NewDeepAnalysisService(repo, fake, runner, events, testLogger())

	require.NoError(t, svc.Queue(context.Background(), "r-1", Actor{ID: 1}))
	runner.Wait()

	sidecar, err := repo.get(t, "r-1").DeepAnalysisValue()
	require.NoError(t, err)
	require.Len(t, sidecar, len(ai.DeepAnalysisKinds))
	require.JSONEq(t, `{"kind":"neuron_map"}`, string(sidecar[ai.AnalysisNeuronMap]))
	require.JSONEq(t, `{"kind":"integrity_scan"}`, string(sidecar[ai.AnalysisIntegrityScan]))
	require.JSONEq(t, `{"error":"timeout"}`, string(sidecar[ai.AnalysisFlowDisconnect]))
	require.Contains(t, events.kinds(), EventDeepAnalysisRun)
}

func TestDeepAnalysisKeepsStatusAndHistory(t *testing.T) {
	report := completedReport(t, "r-1", poolOf("p1?"), chainHistory())
	repo := newMemoryReportRepo(report)
	svc := NewDeepAnalysisService(repo, newFakeAI(), testRunner(t), nil, testLogger())

	require.NoError(t, svc.Run(context.Background(), "r-1"))

	stored := repo.get(t, "r-1")
	require.Equal(t, models.ReportStatusCompleted, stored.Status)
	history, err := stored.QAHistoryValue()
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Zero(t, svc.(*deepAnalysisService).lockCount())
}

func TestDeepAnalysisLockSerializesAndReleases(t *testing.T) {
	svc := NewDeepAnalysisService(newMemoryReportRepo(), newFakeAI(), testRunner(t), nil, testLogger()).(*deepAnalysisService)

	unlock := svc.lock("r-1")
	acquired := make(chan struct{})
	go func() {
		release := svc.lock("r-1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock early")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
	require.Eventually(t, func() bool { return svc.lockCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDeepAnalysisQueueRequiresCompletedReport(t *testing.T) {
	report := completedReport(t, "r-1", nil, nil)
	report.Status = models.ReportStatusProcessingComparison
	svc := NewDeepAnalysisService(newMemoryReportRepo(report), newFakeAI(), testRunner(t), nil, testLogger())

	require.ErrorIs(t, svc.Queue(context.Background(), "r-1", Actor{ID: 1}), ErrReportNotCompleted)
	require.ErrorIs(t, svc.Queue(context.Background(), "missing", Actor{ID: 1}), ErrReportNotFound)
}
