package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs []string, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.tables.users {
		if strings.EqualFold(usr.Email, email) && !containsString(excludedIDs, usr.ID) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if usr.ID == "" {
		usr.ID = uuid.New().String()
	}
	repo.db.tables.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.db.tables.users {
		if filter != nil {
			if filter.IDs != nil && !containsString(filter.IDs, usr.ID) {
				continue
			}
			if filter.Search != "" && !containsFold(usr.Name, filter.Search) && !containsFold(usr.Email, filter.Search) {
				continue
			}
			if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			if !inRange(usr.CreatedAt, filter.CreatedFrom, filter.CreatedTo) {
				continue
			}
		}
		users = append(users, usr)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	sortBy(users, ordering, func(a, b user.User, field string) int {
		switch field {
		case "name":
			return compareStrings(a.Name, b.Name)
		case "email":
			return compareStrings(a.Email, b.Email)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		case "last_login":
			return compareTimePtrs(a.LastLogin, b.LastLogin)
		case "is_active":
			return compareStrings(boolKey(a.IsActive), boolKey(b.IsActive))
		}
		return 0
	})
	return users, nil
}

func hasAnyRole(usr user.User, prefixes []string) bool {
	for _, prefix := range prefixes {
		if usr.RoleStartsWith(prefix) {
			return true
		}
	}
	return false
}

func boolKey(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.tables.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, usr := range repo.db.tables.users {
			if strings.EqualFold(usr.Email, filter.Email) {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tables.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	repo.db.tables.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.tables.users[id]; ok {
			delete(repo.db.tables.users, id)
			n++
		}
	}
	for key := range repo.db.tables.assignments {
		if containsString(ids, key.counselorID) || containsString(ids, key.studentID) {
			delete(repo.db.tables.assignments, key)
		}
	}
	return n, nil
}

func (repo *userRepository) AssignStudent(_ context.Context, asg user.Assignment, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := assignmentKey{asg.CounselorID, asg.StudentID}
	if _, ok := repo.db.tables.assignments[key]; !ok {
		repo.db.tables.assignments[key] = asg
	}
	return nil
}

func (repo *userRepository) UnassignStudent(_ context.Context, counselorID, studentID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.tables.assignments, assignmentKey{counselorID, studentID})
	return nil
}

func (repo *userRepository) IsAssigned(_ context.Context, counselorID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.tables.assignments[assignmentKey{counselorID, studentID}]
	return ok, nil
}

func (repo *userRepository) ListAssignments(_ context.Context, counselorID, studentID string, _ ...core.DBExecutor) ([]user.Assignment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	asgs := make([]user.Assignment, 0)
	for key, asg := range repo.db.tables.assignments {
		if (counselorID == "" || key.counselorID == counselorID) && (studentID == "" || key.studentID == studentID) {
			asgs = append(asgs, asg)
		}
	}
	sort.Slice(asgs, func(i, j int) bool { return asgs[i].CreatedAt.Before(asgs[j].CreatedAt) })
	return asgs, nil
}
