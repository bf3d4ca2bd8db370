package models

import "time"

// Course groups assignments, enrolled students and assigned teaching assistants.
type Course struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Code        string          `gorm:"size:64;uniqueIndex" json:"code"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Assignments []Assignment    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignments,omitempty"`
	Students    []CourseStudent `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	TAs         []CourseTA      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// CourseStudent enrolls a student in a course.
type CourseStudent struct {
	CourseID  uint      `gorm:"primaryKey" json:"course_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CourseTA assigns a teaching assistant to a course.
type CourseTA struct {
	CourseID  uint      `gorm:"primaryKey" json:"course_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the junction table name readable.
func (CourseTA) TableName() string {
	return "course_tas"
}
