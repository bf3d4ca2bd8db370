package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	filter  repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.filter = filter
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksSecrets(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	err := svc.Record(context.Background(), ActivityEntry{
		Actor:      Actor{ID: 1, Role: "Teacher"},
		Action:     "Report.Graded",
		EntityType: "report",
		EntityID:   "r-1",
		Metadata: map[string]interface{}{
			"email":        "student@example.com",
			"access_token": "abc",
			"score":        18,
		},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	entry := repo.entries[0]
	require.Equal(t, "report.graded", entry.Action)
	require.Equal(t, "teacher", entry.ActorRole)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, "***", entry.Metadata["access_token"])
	require.Equal(t, 18, entry.Metadata["score"])
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	err := svc.Record(context.Background(), ActivityEntry{EntityType: "report"})
	require.Error(t, err)
}

func TestActivityServiceListPaginates(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(context.Background(), ActivityEntry{Action: "course.created", EntityType: "course"}))
	}

	resp, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 2, ActorID: 4, ActorRole: " TA ", Domain: "Report.", EntityType: " course "})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	require.Equal(t, int64(3), resp.Pagination.TotalItems)
	require.Equal(t, 2, resp.Pagination.TotalPages)
	require.Equal(t, "course", repo.filter.EntityType)
	require.Equal(t, uint(4), *repo.filter.ActorID)
	require.Equal(t, "ta", repo.filter.ActorRole)
	require.Equal(t, "report", repo.filter.Domain)
	require.Equal(t, "system", repo.entries[0].ActorRole)
}
