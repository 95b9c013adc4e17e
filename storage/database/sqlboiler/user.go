package boiledrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

const userColumns = `id, name, email, roles, is_active, password_hash, high_school, graduation_year, created_at, updated_at, last_login`

type userRow struct {
	ID             string         `boil:"id"`
	Name           string         `boil:"name"`
	Email          string         `boil:"email"`
	Roles          pq.StringArray `boil:"roles"`
	IsActive       bool           `boil:"is_active"`
	PasswordHash   []byte         `boil:"password_hash"`
	HighSchool     string         `boil:"high_school"`
	GraduationYear null.Int       `boil:"graduation_year"`
	CreatedAt      time.Time      `boil:"created_at"`
	UpdatedAt      time.Time      `boil:"updated_at"`
	LastLogin      null.Time      `boil:"last_login"`
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) boil(usr user.User) userRow {
	row := userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Email:        usr.Email,
		Roles:        usr.Roles,
		IsActive:     usr.IsActive,
		PasswordHash: usr.PasswordHash,
		HighSchool:   usr.HighSchool,
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.TimeFromPtr(usr.LastLogin),
	}
	if usr.GraduationYear != nil {
		row.GraduationYear = null.IntFrom(*usr.GraduationYear)
	}
	if row.PasswordHash == nil {
		row.PasswordHash = []byte{}
	}
	if row.Roles == nil {
		row.Roles = pq.StringArray{}
	}
	return row
}

func (repo userRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		IsActive:     row.IsActive,
		Roles:        row.Roles,
		HighSchool:   row.HighSchool,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Ptr(),
	}
	if row.GraduationYear.Valid {
		year := row.GraduationYear.Int
		usr.GraduationYear = &year
	}
	return usr
}

func (repo userRepository) unboilSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []string, exec ...core.DBExecutor) error {
	w := new(where)
	w.add("lower(email) = lower(?)", email)
	if len(excludedIDs) > 0 {
		w.add("NOT (id = ANY(?))", pq.Array(excludedIDs))
	}

	var res struct {
		Exists bool `boil:"exists"`
	}
	q := `SELECT EXISTS (SELECT 1 FROM "user"` + w.String() + `) AS "exists"`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &res); err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if res.Exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	row := repo.boil(usr)
	_, err := queries.Raw(
		`INSERT INTO "user" (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.Name, row.Email, row.Roles, row.IsActive, row.PasswordHash, row.HighSchool,
		row.GraduationYear, row.CreatedAt, row.UpdatedAt, row.LastLogin,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if isUniqueViolation(err, "") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	w := new(where)
	if filter != nil {
		if filter.IDs != nil {
			w.add("id = ANY(?)", pq.Array(filter.IDs))
		}
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add("(name ILIKE ? OR email ILIKE ?)", val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			patterns := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				patterns = append(patterns, role+"%")
			}
			w.add("EXISTS (SELECT 1 FROM unnest(roles) user_role WHERE user_role LIKE ANY(?))", pq.Array(patterns))
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			w.add("created_at >= ?", filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			w.add("created_at <= ?", filter.CreatedTo.UTC())
		}
	}

	var rows []userRow
	q := `SELECT ` + userColumns + ` FROM "user"` + w.String() + orderBy(ordering, "created_at ASC")
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unboilSlice(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	w := new(where)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Email != "":
		w.add("lower(email) = lower(?)", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM "user"` + w.String()
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &row); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return repo.unboil(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.boil(usr)
	res, err := queries.Raw(
		`UPDATE "user" SET name = $2, email = $3, roles = $4, is_active = $5, password_hash = $6,
			high_school = $7, graduation_year = $8, updated_at = $9, last_login = $10
		WHERE id = $1`,
		row.ID, row.Name, row.Email, row.Roles, row.IsActive, row.PasswordHash,
		row.HighSchool, row.GraduationYear, row.UpdatedAt, row.LastLogin,
	).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		if isUniqueViolation(err, "") {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.unboil(row), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	res, err := queries.Raw(`DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids)).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting users")
}

func (repo userRepository) AssignStudent(ctx context.Context, asg user.Assignment, exec ...core.DBExecutor) error {
	_, err := queries.Raw(
		`INSERT INTO counselor_student (counselor_id, student_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (counselor_id, student_id) DO NOTHING`,
		asg.CounselorID, asg.StudentID, asg.CreatedAt.UTC(),
	).ExecContext(ctx, repo.getExec(exec))
	return errors.Wrap(err, "inserting assignment")
}

func (repo userRepository) UnassignStudent(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) error {
	_, err := queries.Raw(
		`DELETE FROM counselor_student WHERE counselor_id = $1 AND student_id = $2`, counselorID, studentID,
	).ExecContext(ctx, repo.getExec(exec))
	return errors.Wrap(err, "deleting assignment")
}

func (repo userRepository) IsAssigned(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) (bool, error) {
	var res struct {
		Exists bool `boil:"exists"`
	}
	err := queries.Raw(
		`SELECT EXISTS (SELECT 1 FROM counselor_student WHERE counselor_id = $1 AND student_id = $2) AS "exists"`,
		counselorID, studentID,
	).Bind(ctx, repo.getExec(exec), &res)
	return res.Exists, errors.Wrap(err, "checking assignment")
}

type assignmentRow struct {
	CounselorID string    `boil:"counselor_id"`
	StudentID   string    `boil:"student_id"`
	CreatedAt   time.Time `boil:"created_at"`
}

func (repo userRepository) ListAssignments(ctx context.Context, counselorID, studentID string, exec ...core.DBExecutor) ([]user.Assignment, error) {
	w := new(where)
	if counselorID != "" {
		w.add("counselor_id = ?", counselorID)
	}
	if studentID != "" {
		w.add("student_id = ?", studentID)
	}

	var rows []assignmentRow
	q := `SELECT counselor_id, student_id, created_at FROM counselor_student` + w.String() + ` ORDER BY created_at`
	if err := queries.Raw(q, w.args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "listing assignments")
	}
	asgs := make([]user.Assignment, 0, len(rows))
	for _, row := range rows {
		asgs = append(asgs, user.Assignment(row))
	}
	return asgs, nil
}
