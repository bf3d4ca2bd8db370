package dto

import (
	"time"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// CourseCreateRequest creates a course.
type CourseCreateRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Code string `json:"code" validate:"required,max=64"`
}

// GradingCriterionRequest is one rubric line.
type GradingCriterionRequest struct {
	Name     string  `json:"name" validate:"required,max=255"`
	MaxScore float64 `json:"max_score" validate:"gt=0"`
}

// AssignmentCreateRequest creates an assignment inside a course.
type AssignmentCreateRequest struct {
	Title           string                             `json:"title" validate:"required,max=255"`
	Description     string                             `json:"description" validate:"max=10000"`
	DueDate         *time.Time                         `json:"due_date"`
	GradingCriteria map[string]GradingCriterionRequest `json:"grading_criteria" validate:"omitempty,dive,keys,required,max=64,endkeys"`
}

// RosterRequest adds a user to a course roster.
type RosterRequest struct {
	UserID uint `json:"user_id" validate:"required,gt=0"`
}

// CourseResponse serializes a course.
type CourseResponse struct {
	ID          uint                 `json:"id"`
	Name        string               `json:"name"`
	Code        string               `json:"code"`
	Assignments []AssignmentResponse `json:"assignments"`
	StudentIDs  []uint               `json:"student_ids"`
	TAIDs       []uint               `json:"ta_ids"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AssignmentResponse serializes an assignment with its rubric.
type AssignmentResponse struct {
	ID              uint                               `json:"id"`
	CourseID        uint                               `json:"course_id"`
	Title           string                             `json:"title"`
	Description     string                             `json:"description"`
	DueDate         *time.Time                         `json:"due_date"`
	GradingCriteria map[string]models.GradingCriterion `json:"grading_criteria"`
	MaxTotal        float64                            `json:"max_total"`
	CreatedAt       time.Time                          `json:"created_at"`
}

// NewAssignmentResponse converts an assignment. An unreadable rubric is returned empty.
func NewAssignmentResponse(assignment models.Assignment) AssignmentResponse {
	criteria, err := assignment.Criteria()
	if err != nil {
		criteria = map[string]models.GradingCriterion{}
	}
	return AssignmentResponse{
		ID:              assignment.ID,
		CourseID:        assignment.CourseID,
		Title:           assignment.Title,
		Description:     assignment.Description,
		DueDate:         assignment.DueDate,
		GradingCriteria: criteria,
		MaxTotal:        assignment.MaxTotal(),
		CreatedAt:       assignment.CreatedAt,
	}
}

// NewCourseResponse converts a course with its preloaded relations.
func NewCourseResponse(course models.Course) CourseResponse {
	assignments := make([]AssignmentResponse, 0, len(course.Assignments))
	for _, assignment := range course.Assignments {
		assignments = append(assignments, NewAssignmentResponse(assignment))
	}
	students := make([]uint, 0, len(course.Students))
	for _, student := range course.Students {
		students = append(students, student.UserID)
	}
	tas := make([]uint, 0, len(course.TAs))
	for _, ta := range course.TAs {
		tas = append(tas, ta.UserID)
	}
	return CourseResponse{
		ID:          course.ID,
		Name:        course.Name,
		Code:        course.Code,
		Assignments: assignments,
		StudentIDs:  students,
		TAIDs:       tas,
		CreatedAt:   course.CreatedAt,
	}
}
