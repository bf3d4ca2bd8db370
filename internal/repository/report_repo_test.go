package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Course{}, &models.CourseStudent{}, &models.CourseTA{}, &models.Assignment{}, &models.Report{}, &models.ActivityLog{}))
	return db
}

func vector(values ...float64) datatypes.JSON {
	raw, _ := models.EncodeBlob(values)
	return raw
}

func TestReportRepositoryUpdateDetectsRevisionConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	report := models.Report{ID: "r-1", OwnerID: 1, Status: models.ReportStatusProcessing}
	require.NoError(t, repo.Create(ctx, &report))

	first, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)

	first.Status = models.ReportStatusProcessingAnalysis
	require.NoError(t, repo.Update(ctx, &first))
	require.Equal(t, 1, first.Revision)

	second.Status = models.ReportStatusError
	require.ErrorIs(t, repo.Update(ctx, &second), ErrRevisionConflict)

	stored, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusProcessingAnalysis, stored.Status)
	require.Equal(t, 1, stored.Revision)
}

func TestReportRepositoryUpdateMissingReport(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)

	err := repo.Update(context.Background(), &models.Report{ID: "missing"})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReportRepositoryUpdateClearsFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	report := models.Report{ID: "r-1", OwnerID: 1, Status: models.ReportStatusCompleted, IsRefilling: true}
	require.NoError(t, repo.Create(ctx, &report))

	report.IsRefilling = false
	require.NoError(t, repo.Update(ctx, &report))

	stored, err := repo.GetByID(ctx, "r-1")
	require.NoError(t, err)
	require.False(t, stored.IsRefilling)
}

func TestReportRepositoryListComparisonCandidates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	reports := []models.Report{
		{ID: "self", Status: models.ReportStatusProcessingComparison, ThesisVector: vector(1), ClaimVector: vector(1)},
		{ID: "eligible", Status: models.ReportStatusCompleted, ThesisVector: vector(1), ClaimVector: vector(1)},
		{ID: "test-doc", Status: models.ReportStatusCompleted, IsTest: true, ThesisVector: vector(1), ClaimVector: vector(1)},
		{ID: "no-vectors", Status: models.ReportStatusProcessing},
		{ID: "half", Status: models.ReportStatusCompleted, ThesisVector: vector(1)},
	}
	for i := range reports {
		require.NoError(t, repo.Create(ctx, &reports[i]))
	}

	candidates, err := repo.ListComparisonCandidates(ctx, "self")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "eligible", candidates[0].ID)
}

func TestReportRepositoryMarkStale(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	reports := []models.Report{
		{ID: "stuck", Status: models.ReportStatusProcessingComparison, UpdatedAt: old},
		{ID: "fresh", Status: models.ReportStatusProcessingAnalysis},
		{ID: "done", Status: models.ReportStatusCompleted, UpdatedAt: old},
	}
	for i := range reports {
		require.NoError(t, db.Create(&reports[i]).Error)
	}
	require.NoError(t, db.Model(&models.Report{}).Where("id IN ?", []string{"stuck", "done"}).UpdateColumn("updated_at", old).Error)

	ids, err := repo.MarkStale(ctx, time.Now().Add(-30*time.Minute), "analysis timed out")
	require.NoError(t, err)
	require.Equal(t, []string{"stuck"}, ids)

	stuck, err := repo.GetByID(ctx, "stuck")
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusError, stuck.Status)
	require.Equal(t, "analysis timed out", stuck.ErrorMessage)
	require.Equal(t, 1, stuck.Revision)

	fresh, err := repo.GetByID(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusProcessingAnalysis, fresh.Status)
}

func TestReportRepositoryCountsByAssignmentAndCourse(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)
	ctx := context.Background()

	course := models.Course{Name: "Writing", Code: "W101"}
	require.NoError(t, db.Create(&course).Error)
	assignment := models.Assignment{CourseID: course.ID, Title: "Essay 1"}
	require.NoError(t, db.Create(&assignment).Error)

	bound := models.Report{ID: "bound", Status: models.ReportStatusCompleted, AssignmentID: &assignment.ID}
	graded := models.Report{ID: "graded", Status: models.ReportStatusCompleted, AssignmentID: &assignment.ID, AutoGrade: datatypes.JSON(`{"status":"graded"}`)}
	require.NoError(t, repo.Create(ctx, &bound))
	require.NoError(t, repo.Create(ctx, &graded))
	require.NoError(t, repo.Create(ctx, &models.Report{ID: "loose", Status: models.ReportStatusCompleted}))

	count, err := repo.CountByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	count, err = repo.CountByCourse(ctx, course.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	pending, err := repo.ListByAssignmentWithoutAutoGrade(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "bound", pending[0].ID)
}
