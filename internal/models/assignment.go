package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment is a course task that reports can be submitted to.
type Assignment struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CourseID        uint           `gorm:"not null;index" json:"course_id"`
	Title           string         `gorm:"size:255;not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	DueDate         *time.Time     `json:"due_date"`
	GradingCriteria datatypes.JSON `json:"grading_criteria"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// GradingCriterion is one rubric line.
type GradingCriterion struct {
	Name     string  `json:"name"`
	MaxScore float64 `json:"max_score"`
}

// Criteria decodes the rubric keyed by criterion id.
func (a Assignment) Criteria() (map[string]GradingCriterion, error) {
	criteria := map[string]GradingCriterion{}
	if err := decodeBlob(a.GradingCriteria, "grading_criteria", &criteria); err != nil {
		return nil, err
	}
	return criteria, nil
}

// MaxTotal returns the sum of every criterion's max score, or zero without a rubric.
func (a Assignment) MaxTotal() float64 {
	criteria, err := a.Criteria()
	if err != nil {
		return 0
	}
	total := 0.0
	for _, criterion := range criteria {
		total += criterion.MaxScore
	}
	return total
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return a.DueDate != nil && reference.After(*a.DueDate)
}
