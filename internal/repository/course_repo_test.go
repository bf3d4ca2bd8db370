package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

func TestCourseRepositoryRosterAndDelete(t *testing.T) {
	db := setupTestDB(t)
	courses := NewCourseRepository(db)
	assignments := NewAssignmentRepository(db)
	ctx := context.Background()

	course := models.Course{Name: "Rhetoric", Code: "RH200"}
	require.NoError(t, courses.Create(ctx, &course))
	require.NoError(t, assignments.Create(ctx, &models.Assignment{CourseID: course.ID, Title: "Argument essay"}))

	require.NoError(t, courses.AddStudent(ctx, course.ID, 7))
	require.NoError(t, courses.AddStudent(ctx, course.ID, 7))
	require.NoError(t, courses.AddTA(ctx, course.ID, 9))

	isTA, err := courses.IsTA(ctx, course.ID, 9)
	require.NoError(t, err)
	require.True(t, isTA)
	isTA, err = courses.IsTA(ctx, course.ID, 7)
	require.NoError(t, err)
	require.False(t, isTA)

	loaded, err := courses.GetByID(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Students, 1)
	require.Len(t, loaded.TAs, 1)
	require.Len(t, loaded.Assignments, 1)

	require.NoError(t, courses.Delete(ctx, course.ID))
	_, err = courses.GetByID(ctx, course.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	remaining, err := assignments.ListByCourse(ctx, course.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	require.ErrorIs(t, courses.Delete(ctx, course.ID), gorm.ErrRecordNotFound)
}
