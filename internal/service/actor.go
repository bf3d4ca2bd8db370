package service

import (
	"strings"

	"github.com/chldlstlr7-art/AITA-sub000/internal/models"
)

// Roles recognised by report access checks.
const (
	RoleStudent = "student"
	RoleTA      = "ta"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Actor represents the authenticated caller of a service operation.
type Actor struct {
	ID   uint
	Role string
}

// IsStaff reports whether the actor grades or manages coursework.
func (a Actor) IsStaff() bool {
	switch strings.ToLower(strings.TrimSpace(a.Role)) {
	case RoleTA, RoleTeacher, RoleAdmin:
		return true
	default:
		return false
	}
}

// canAccess reports whether actor may read report.
func canAccess(report models.Report, actor Actor) bool {
	return report.OwnerID == actor.ID || actor.IsStaff()
}
