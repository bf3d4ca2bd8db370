package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/dto"
	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
	"github.com/chldlstlr7-art/AITA-sub000/internal/repository"
)

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Course{}, &models.CourseStudent{}, &models.CourseTA{}, &models.Assignment{}, &models.Report{}, &models.ActivityLog{}))
	return db
}

func newTestCourseService(t *testing.T, db *gorm.DB) (CourseService, ActivityService) {
	t.Helper()
	activity := NewActivityService(repository.NewActivityLogRepository(db), testLogger())
	svc := NewCourseService(
		repository.NewCourseRepository(db),
		repository.NewAssignmentRepository(db),
		repository.NewReportRepository(db),
		activity,
		testValidator(),
		testLogger(),
	)
	return svc, activity
}

func TestCourseServiceCreatesCourseWithRubric(t *testing.T) {
	db := setupServiceDB(t)
	svc, activity := newTestCourseService(t, db)
	ctx := context.Background()
	teacher := Actor{ID: 9, Role: RoleTeacher}

	course, err := svc.CreateCourse(ctx, dto.CourseCreateRequest{Name: "Academic Writing", Code: "wr101"}, teacher)
	require.NoError(t, err)
	require.Equal(t, "WR101", course.Code)

	assignment, err := svc.CreateAssignment(ctx, course.ID, dto.AssignmentCreateRequest{
		Title: "Essay 1",
		GradingCriteria: map[string]dto.GradingCriterionRequest{
			"thesis":   {Name: "Thesis", MaxScore: 10},
			"evidence": {Name: "Evidence", MaxScore: 15},
		},
	}, teacher)
	require.NoError(t, err)
	require.Equal(t, 25.0, assignment.MaxTotal)

	require.NoError(t, svc.EnrollStudent(ctx, course.ID, 1, teacher))
	require.NoError(t, svc.EnrollStudent(ctx, course.ID, 1, teacher))
	require.NoError(t, svc.AddTA(ctx, course.ID, 42, teacher))

	loaded, err := svc.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	require.Equal(t, []uint{1}, loaded.StudentIDs)
	require.Equal(t, []uint{42}, loaded.TAIDs)
	require.Len(t, loaded.Assignments, 1)

	logs, err := activity.List(ctx, dto.ActivityListRequest{Page: 1, PageSize: 10, EntityType: "course"})
	require.NoError(t, err)
	require.NotEmpty(t, logs.Items)
}

func TestCourseServiceRejectsInvalidRubric(t *testing.T) {
	db := setupServiceDB(t)
	svc, _ := newTestCourseService(t, db)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, dto.CourseCreateRequest{Name: "Writing", Code: "W1"}, Actor{ID: 9, Role: RoleTeacher})
	require.NoError(t, err)

	_, err = svc.CreateAssignment(ctx, course.ID, dto.AssignmentCreateRequest{
		Title:           "Essay",
		GradingCriteria: map[string]dto.GradingCriterionRequest{"thesis": {Name: "Thesis", MaxScore: 0}},
	}, Actor{ID: 9, Role: RoleTeacher})
	require.Error(t, err)

	_, err = svc.CreateAssignment(ctx, 404, dto.AssignmentCreateRequest{Title: "Essay"}, Actor{ID: 9, Role: RoleTeacher})
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestCourseServiceDeleteGuardsSubmissions(t *testing.T) {
	db := setupServiceDB(t)
	svc, _ := newTestCourseService(t, db)
	ctx := context.Background()
	teacher := Actor{ID: 9, Role: RoleTeacher}

	course, err := svc.CreateCourse(ctx, dto.CourseCreateRequest{Name: "Writing", Code: "W2"}, teacher)
	require.NoError(t, err)
	assignment, err := svc.CreateAssignment(ctx, course.ID, dto.AssignmentCreateRequest{Title: "Essay"}, teacher)
	require.NoError(t, err)

	bound := models.Report{ID: "r-1", OwnerID: 1, Status: models.ReportStatusCompleted, AssignmentID: &assignment.ID}
	require.NoError(t, db.Create(&bound).Error)

	require.ErrorIs(t, svc.DeleteAssignment(ctx, assignment.ID, teacher), ErrSubmissionsExist)
	require.ErrorIs(t, svc.DeleteCourse(ctx, course.ID, teacher), ErrSubmissionsExist)

	require.NoError(t, db.Delete(&models.Report{}, "id = ?", "r-1").Error)
	require.NoError(t, svc.DeleteCourse(ctx, course.ID, teacher))

	_, err = svc.GetCourse(ctx, course.ID)
	require.ErrorIs(t, err, ErrCourseNotFound)
	require.ErrorIs(t, svc.DeleteAssignment(ctx, assignment.ID, teacher), ErrAssignmentNotFound)
}
