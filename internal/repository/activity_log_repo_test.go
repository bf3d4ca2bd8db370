package repository

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

func TestActivityLogRepositoryFiltersAndPages(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	entries := []models.ActivityLog{
		{ActorID: 1, ActorRole: "teacher", Action: "course.created", EntityType: "course", EntityID: "1"},
		{ActorID: 1, ActorRole: "teacher", Action: "assignment.created", EntityType: "assignment", EntityID: "4"},
		{ActorID: 2, ActorRole: "ta", Action: "report.graded", EntityType: "report", EntityID: "r-1", Metadata: datatypes.JSONMap{"score": 18}},
		{ActorID: 1, ActorRole: "teacher", Action: "report.graded", EntityType: "report", EntityID: "r-2"},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	actor := uint(1)
	items, total, err := repo.List(ctx, ActivityLogFilter{ActorID: &actor, Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	require.Equal(t, "r-2", items[0].EntityID)

	items, total, err = repo.List(ctx, ActivityLogFilter{Action: "report.graded", EntityID: "r-1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "ta", items[0].ActorRole)
	require.Equal(t, json.Number("18"), items[0].Metadata["score"])

	items, total, err = repo.List(ctx, ActivityLogFilter{ActorRole: "teacher", Domain: "report"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "r-2", items[0].EntityID)
}
