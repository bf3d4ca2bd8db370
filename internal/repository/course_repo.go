package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// CourseRepository defines persistence operations for courses and their rosters.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (models.Course, error)
	AddStudent(ctx context.Context, courseID, userID uint) error
	AddTA(ctx context.Context, courseID, userID uint) error
	IsTA(ctx context.Context, courseID, userID uint) (bool, error)
	Delete(ctx context.Context, id uint) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Preload("Assignments").Preload("Students").Preload("TAs").First(&course, id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

// AddStudent enrolls a student. Enrolling twice is a no-op.
func (r *courseRepository) AddStudent(ctx context.Context, courseID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CourseStudent{CourseID: courseID, UserID: userID}).Error
}

// AddTA assigns a teaching assistant. Assigning twice is a no-op.
func (r *courseRepository) AddTA(ctx context.Context, courseID, userID uint) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CourseTA{CourseID: courseID, UserID: userID}).Error
}

func (r *courseRepository) IsTA(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CourseTA{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Delete removes the course with its assignments and roster rows.
func (r *courseRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", id).Delete(&models.CourseStudent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", id).Delete(&models.CourseTA{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", id).Delete(&models.Assignment{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Course{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
