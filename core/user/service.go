package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccountDeactivated   = errors.New("account deactivated")
	ErrInvalidAssignment    = errors.New("assignments link a counselor to a student")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []string, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		AssignStudent(ctx context.Context, asg Assignment, exec ...core.DBExecutor) error
		UnassignStudent(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) error
		IsAssigned(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) (bool, error)
		// ListAssignments returns the assignments of a counselor or of a student (whichever ID is set).
		ListAssignments(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) ([]Assignment, error)
	}

	Service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen tokenGenerator
	}
)

var _ core.AccessChecker = (*Service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		tokenGen: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   3 * 24 * time.Hour,
			nowFunc:   time.Now,
		},
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, excludedIDs); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Create registers a new user. Only admins create accounts and nobody grants a role above their own.
func (svc *Service) Create(ctx context.Context, actor core.Actor, nu NewUser) (User, error) {
	if !actor.IsAdmin() {
		return User{}, core.ErrForbidden
	}
	if MaxRolePriority(nu.Roles) > MaxRolePriority(actor.Roles) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "not enough rights to set these roles"})
	}

	now := core.NowFunc()
	usr := User{
		Name:           nu.Name,
		Email:          nu.Email,
		IsActive:       true,
		Roles:          nu.Roles,
		HighSchool:     nu.HighSchool,
		GraduationYear: nu.GraduationYear,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Authenticate checks the credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}

	now := core.NowFunc()
	usr.LastLogin = &now
	usr, err = svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "setting last login")
}

// GetByID returns a user without visibility checks. Used to resolve the authenticated actor.
func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

// Get returns a user the actor is allowed to see:
// themselves, anyone for admins, assigned students for counselors and assigned counselors for students.
func (svc *Service) Get(ctx context.Context, actor core.Actor, id string) (User, error) {
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		return User{}, err
	}
	if actor.ID == usr.ID || actor.IsAdmin() {
		return usr, nil
	}

	var assigned bool
	switch {
	case actor.IsCounselor() && usr.IsStudent():
		assigned, err = svc.repo.IsAssigned(ctx, actor.ID, usr.ID)
	case actor.IsStudent() && usr.IsCounselor():
		assigned, err = svc.repo.IsAssigned(ctx, usr.ID, actor.ID)
	}
	if err != nil {
		return User{}, errors.Wrap(err, "checking assignment")
	}
	if !assigned {
		return User{}, ErrNotFound
	}
	return usr, nil
}

// Query lists users. Admins see everyone, counselors only their assigned students.
func (svc *Service) Query(ctx context.Context, actor core.Actor, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	switch {
	case actor.IsAdmin():
		filter.IDs = nil
	case actor.IsCounselor():
		ids, err := svc.studentIDs(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return []User{}, nil
		}
		filter.IDs = ids
		filter.Roles = []string{RoleStudent}
	default:
		return nil, core.ErrForbidden
	}
	ordering = core.AllowedOrderings(ordering, "name", "email", "created_at", "is_active", "last_login")
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

// ListStudents returns the students followed by the actor (every student for admins).
func (svc *Service) ListStudents(ctx context.Context, actor core.Actor) ([]User, error) {
	return svc.Query(ctx, actor, &QueryFilter{Roles: []string{RoleStudent}}, []core.DBOrdering{{Field: "name", Ascending: true}})
}

// Counselors returns the counselors assigned to a student.
func (svc *Service) Counselors(ctx context.Context, studentID string) ([]User, error) {
	asgs, err := svc.repo.ListAssignments(ctx, "", studentID)
	if err != nil {
		return nil, errors.Wrap(err, "listing assignments")
	}
	if len(asgs) == 0 {
		return []User{}, nil
	}
	ids := make([]string, 0, len(asgs))
	for _, asg := range asgs {
		ids = append(ids, asg.CounselorID)
	}
	return svc.repo.QueryUsers(ctx, &QueryFilter{IDs: ids}, nil)
}

func (svc *Service) studentIDs(ctx context.Context, counselorID string) ([]string, error) {
	asgs, err := svc.repo.ListAssignments(ctx, counselorID, "")
	if err != nil {
		return nil, errors.Wrap(err, "listing assignments")
	}
	ids := make([]string, 0, len(asgs))
	for _, asg := range asgs {
		ids = append(ids, asg.StudentID)
	}
	return ids, nil
}

// Update modifies a user. Users update their own profile; roles, activation and emails are admin only.
func (svc *Service) Update(ctx context.Context, actor core.Actor, usr User, uu UpdateUser) (User, error) {
	if !actor.IsAdmin() {
		if actor.ID != usr.ID || uu.IsActive != nil || uu.Roles != nil || uu.Email != usr.Email {
			return User{}, core.ErrForbidden
		}
	}
	if MaxRolePriority(uu.Roles) > MaxRolePriority(actor.Roles) {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "not enough rights to set these roles"})
	}

	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.HighSchool != nil {
		usr.HighSchool = core.CleanString(*uu.HighSchool)
	}
	if uu.GraduationYear != nil {
		usr.GraduationYear = uu.GraduationYear
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// Delete removes users. Admins cannot delete themselves.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, ids ...string) error {
	if !actor.IsAdmin() {
		return core.ErrForbidden
	}
	for _, id := range ids {
		if id == actor.ID {
			return core.ErrForbidden
		}
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

// AssignStudent makes a counselor follow a student.
func (svc *Service) AssignStudent(ctx context.Context, actor core.Actor, counselorID, studentID string) (Assignment, error) {
	if !actor.IsAdmin() {
		return Assignment{}, core.ErrForbidden
	}
	counselor, err := svc.repo.GetUser(ctx, GetFilter{ID: counselorID})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "finding counselor")
	}
	student, err := svc.repo.GetUser(ctx, GetFilter{ID: studentID})
	if err != nil {
		return Assignment{}, errors.Wrap(err, "finding student")
	}
	if !counselor.IsCounselor() || !student.IsStudent() {
		return Assignment{}, core.NewValidationError(ErrInvalidAssignment)
	}

	asg := Assignment{CounselorID: counselor.ID, StudentID: student.ID, CreatedAt: core.NowFunc()}
	if err := svc.repo.AssignStudent(ctx, asg); err != nil {
		return Assignment{}, errors.Wrap(err, "assigning student")
	}
	return asg, nil
}

func (svc *Service) UnassignStudent(ctx context.Context, actor core.Actor, counselorID, studentID string) error {
	if !actor.IsAdmin() {
		return core.ErrForbidden
	}
	return svc.repo.UnassignStudent(ctx, counselorID, studentID)
}

// CheckStudentAccess returns core.ErrForbidden unless the actor is the student,
// an admin, or a counselor assigned to the student.
func (svc *Service) CheckStudentAccess(ctx context.Context, actor core.Actor, studentID string) error {
	if actor.ID == "" {
		return core.ErrUnauthenticated
	}
	if actor.ID == studentID || actor.IsAdmin() {
		return nil
	}
	if actor.IsCounselor() {
		ok, err := svc.repo.IsAssigned(ctx, actor.ID, studentID)
		if err != nil {
			return errors.Wrap(err, "checking assignment")
		}
		if ok {
			return nil
		}
	}
	return core.ErrForbidden
}

func (svc *Service) VisibleStudentIDs(ctx context.Context, actor core.Actor) ([]string, bool, error) {
	switch {
	case actor.ID == "":
		return nil, false, core.ErrUnauthenticated
	case actor.IsAdmin():
		return nil, true, nil
	case actor.IsCounselor():
		ids, err := svc.studentIDs(ctx, actor.ID)
		return ids, false, err
	default:
		return []string{actor.ID}, false, nil
	}
}

// RequestPasswordReset emails a password reset link to the user owning email.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	token, err := svc.tokenGen.makeToken(usr)
	if err != nil {
		return errors.Wrap(err, "making token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
	return nil
}

// ResetPassword sets a new password when the reset token is valid.
func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalid := func(field string) error {
		return core.NewValidationError(errInvalidToken, core.FieldError{Field: field, Error: "invalid value"})
	}

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalid("uid")
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalid("uid")
		}
		return errors.Wrap(err, "finding user")
	}
	if err := svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return invalid("token")
	}

	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = core.NowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}
