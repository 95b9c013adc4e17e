package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/admitdesk/admitdesk/core"
)

// Roles. A role belongs to the group whose prefix it starts with.
const (
	RoleAdmin      = core.RoleAdmin
	RoleAdminOwner = core.RoleAdmin + "owner"

	RoleCounselor     = core.RoleCounselor
	RoleCounselorLead = core.RoleCounselor + "lead"

	RoleStudent = core.RoleStudent
)

// Role describes an assignable role. Priority orders who may grant what: nobody grants a role above their own.
type Role struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Priority int    `json:"-"`
}

// Roles lists every role, lowest priority first.
var Roles = []Role{
	{Name: "Student", Value: RoleStudent, Priority: 1},
	{Name: "Counselor", Value: RoleCounselor, Priority: 11},
	{Name: "Lead Counselor", Value: RoleCounselorLead, Priority: 12},
	{Name: "Admin", Value: RoleAdmin, Priority: 21},
	{Name: "Admin Owner", Value: RoleAdminOwner, Priority: 30},
}

var AllRoles = lo.Map(Roles, func(r Role, _ int) string { return r.Value })

// RolePriority is 0 for unknown roles.
func RolePriority(role string) int {
	r, _ := lo.Find(Roles, func(r Role) bool { return r.Value == role })
	return r.Priority
}

func MaxRolePriority(roles []string) int {
	if len(roles) == 0 {
		return 0
	}
	return lo.Max(lo.Map(roles, func(role string, _ int) int { return RolePriority(role) }))
}

type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	IsActive       bool       `json:"is_active"`
	Roles          []string   `json:"roles"`
	HighSchool     string     `json:"high_school,omitempty"`
	GraduationYear *int       `json:"graduation_year,omitempty"`
	PasswordHash   []byte     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"` // UTC
	UpdatedAt      time.Time  `json:"updated_at"` // UTC
	LastLogin      *time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	return lo.SomeBy(u.Roles, func(role string) bool { return strings.HasPrefix(role, prefix) })
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsCounselor() bool {
	return u.RoleStartsWith(RoleCounselor)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// Actor returns the core.Actor acting on behalf of u.
func (u User) Actor() core.Actor {
	return core.Actor{ID: u.ID, Name: u.Name, Email: u.Email, Roles: u.Roles}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,min=1,allroles"`
	HighSchool      string   `json:"high_school"`
	GraduationYear  *int     `json:"graduation_year" validate:"omitempty,min=1900,max=2200"`
}

func (nu *NewUser) Validate(ctx context.Context, svc *Service, validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.HighSchool = core.CleanString(nu.HighSchool)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	HighSchool      *string  `json:"high_school"`
	GraduationYear  *int     `json:"graduation_year" validate:"omitempty,min=1900,max=2200"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, svc *Service, validate *validator.Validate) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.checkUniqueness(ctx, uu.Email, origUsr.ID)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// GetFilter selects a single User. The first non-empty field wins.
type GetFilter struct {
	ID    string
	Email string
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`

	// IDs restricts results to these users. Not bindable.
	IDs []string `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Assignment links a counselor to a student they follow.
type Assignment struct {
	CounselorID string    `json:"counselor_id" validate:"required,uuid"`
	StudentID   string    `json:"student_id" validate:"required,uuid"`
	CreatedAt   time.Time `json:"created_at"`
}
