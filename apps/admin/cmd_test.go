package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core/user"
	inmemdb "github.com/admitdesk/admitdesk/storage/database/inmem"
	testutil "github.com/admitdesk/admitdesk/tests"
)

func setup(t *testing.T) *commandLine {
	return &commandLine{
		usrRepo: inmemdb.NewUserRepository(inmemdb.Open()),
		out:     &bytes.Buffer{},
	}
}

func mockPassword(t *testing.T, pwd string) {
	orig := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = orig })
}

type cliTest struct {
	name       string
	args       []string // without program name
	pwd        string
	wantErr    error
	wantErrStr string
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.ErrorIs(t, err, tt.wantErr)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Contains(t, err.Error(), tt.wantErrStr)
		}
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_root(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErrStr: `unknown command "lol"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	orig := migrateFunc
	migrateFunc = func(_ *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "down", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { migrateFunc = orig })

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: `"lol": no such command`},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down", "down-to", "redo", "status"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	tests := []cliTest{
		{name: "no email", args: []string{"adduser"}, pwd: "pwd", wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "--email", "new@test.io"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "--email", "new@test.io", "--role", "dean"}, pwd: "pwd", wantErr: errUnknownRole},
		{name: "create admin", args: []string{"adduser", "--email", " New@Test.io ", "--name", "New Admin"}, pwd: "pwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "new@test.io"})
	require.NoError(t, err)
	assert.Equal(t, "New Admin", usr.Name)
	assert.Equal(t, []string{user.RoleAdmin}, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("pwd"))

	t.Run("update existing user", func(t *testing.T) {
		mockPassword(t, "other")
		require.NoError(t, cli.run([]string{"admin", "adduser", "--email", "new@test.io", "--role", user.RoleCounselor}))

		updated, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: "new@test.io"})
		require.NoError(t, err)
		assert.Equal(t, usr.ID, updated.ID)
		assert.Equal(t, "New Admin", updated.Name)
		assert.Equal(t, []string{user.RoleCounselor}, updated.Roles)
		assert.NoError(t, updated.CheckPassword("other"))
	})
}

func Test_commandLine_assign(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	counselor := testutil.CreateUser(t, cli.usrRepo, "Counselor", "counselor@test.io", "", []string{user.RoleCounselor}, true)
	student := testutil.CreateUser(t, cli.usrRepo, "Student", "student@test.io", "", []string{user.RoleStudent}, true)

	tests := []cliTest{
		{name: "no args", args: []string{"assign"}, wantErr: errHelp},
		{name: "no student", args: []string{"assign", "--counselor", counselor.Email}, wantErr: errHelp},
		{name: "unknown counselor", args: []string{"assign", "--counselor", "lol@test.io", "--student", student.Email}, wantErr: user.ErrNotFound},
		{name: "not a counselor", args: []string{"assign", "--counselor", student.Email, "--student", student.Email}, wantErr: errNotCounselor},
		{name: "not a student", args: []string{"assign", "--counselor", counselor.Email, "--student", counselor.Email}, wantErr: errNotStudent},
		{name: "assign", args: []string{"assign", "--counselor", counselor.Email, "--student", student.Email}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	ok, err := cli.usrRepo.IsAssigned(ctx, counselor.ID, student.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cli.run([]string{"admin", "assign", "--counselor", counselor.Email, "--student", student.Email, "--remove"}))
	ok, err = cli.usrRepo.IsAssigned(ctx, counselor.ID, student.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)

	usr := testutil.CreateUser(t, cli.usrRepo, "User", "awe@test.io", "mdr", []string{user.RoleStudent}, true)

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "--email", "lol@test.io"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "--email", "lol@test.io"}, pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "--email", "AWE@test.io"}, pwd: "lmao"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(t, tt.pwd)
			tt.check(t, cli.run(append([]string{"admin"}, tt.args...)))
		})
	}

	refreshed, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}
