package core

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var ErrStudentRequired = errors.New("student_id is required when acting for a student")

// Role prefixes. A user's roles all start with one of these.
const (
	RoleAdmin     = "admin:"
	RoleCounselor = "counselor:"
	RoleStudent   = "student:"
)

// Actor is the authenticated user performing an operation.
// It is passed explicitly to every service call that checks ownership or visibility.
type Actor struct {
	ID    string
	Name  string
	Email string
	Roles []string
}

func (a Actor) hasRolePrefix(prefix string) bool {
	for _, role := range a.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool     { return a.hasRolePrefix(RoleAdmin) }
func (a Actor) IsCounselor() bool { return a.hasRolePrefix(RoleCounselor) }
func (a Actor) IsStudent() bool   { return a.hasRolePrefix(RoleStudent) }

// IsStaff reports whether the actor reviews work (counselors and admins).
func (a Actor) IsStaff() bool { return a.IsAdmin() || a.IsCounselor() }

// OwnerStudent returns the student a new record belongs to. Students own what they create;
// everyone else must name the student.
func OwnerStudent(actor Actor, studentID string) (string, error) {
	if actor.IsStudent() {
		return actor.ID, nil
	}
	if studentID == "" {
		return "", NewValidationError(ErrStudentRequired, FieldError{Field: "student_id", Error: "this field is required"})
	}
	return studentID, nil
}

// AccessChecker decides whether an actor may see and act on a student's records.
type AccessChecker interface {
	CheckStudentAccess(ctx context.Context, actor Actor, studentID string) error
	// VisibleStudentIDs lists the students whose records the actor may list.
	// all is true when the actor sees every student.
	VisibleStudentIDs(ctx context.Context, actor Actor) (ids []string, all bool, err error)
}
