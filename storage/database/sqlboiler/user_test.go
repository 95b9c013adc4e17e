package boiledrepos_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core/user"
	"github.com/admitdesk/admitdesk/tests"
)

func TestUserRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	s := testutil.NewDBStack(t, db)
	admin, counselor, student := s.People(t)

	got, err := s.UserRepo.GetUser(ctx, user.GetFilter{Email: "SAM@test.io"})
	require.NoError(t, err)
	assert.Equal(t, student.ID, got.ID)
	assert.Equal(t, []string{user.RoleStudent}, got.Roles)
	assert.Empty(t, got.PasswordHash)
	assert.Nil(t, got.LastLogin)

	year := 2031
	got.HighSchool = "Lincoln High"
	got.GraduationYear = &year
	_, err = s.UserRepo.UpdateUser(ctx, got)
	require.NoError(t, err)
	got, err = s.UserRepo.GetUser(ctx, user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	assert.Equal(t, "Lincoln High", got.HighSchool)
	require.NotNil(t, got.GraduationYear)
	assert.Equal(t, 2031, *got.GraduationYear)

	_, err = s.UserRepo.CreateUser(ctx, user.User{Name: "Dup", Email: admin.Email, CreatedAt: admin.CreatedAt, UpdatedAt: admin.UpdatedAt})
	assert.Equal(t, user.ErrEmailExists, err)

	_, err = s.UserRepo.GetUser(ctx, user.GetFilter{ID: "nope"})
	assert.Equal(t, user.ErrNotFound, err)

	ok, err := s.UserRepo.IsAssigned(ctx, counselor.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, s.UserRepo.UnassignStudent(ctx, counselor.ID, student.ID))
	ok, err = s.UserRepo.IsAssigned(ctx, counselor.ID, student.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
