package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

var errUnknownRole = errors.New("unknown role")

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "adduser --email EMAIL [--name NAME] [--role ROLE]",
		Short: "Create a user, or update the role and password of an existing one. The password is prompted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(name, email, role, pwd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.writer(), "user %s saved (%s)\n", usr.Email, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "The user's full name")
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	cmd.Flags().StringVar(&role, "role", user.RoleAdmin, "One of the user roles")
	return cmd
}

// addUser updates or creates an active user having the single role `role`.
func (cli *commandLine) addUser(name, email, role, pwd string) (user.User, error) {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	if !lo.Contains(user.AllRoles, role) {
		return user.User{}, errors.Wrap(errUnknownRole, role)
	}

	now := core.NowFunc()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return user.User{}, err
		}
		usr = user.User{Email: email, CreatedAt: now}
	}
	if name != "" {
		usr.Name = name
	}
	if usr.Name == "" {
		usr.Name = email
	}
	usr.Roles = []string{role}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}

	if exists {
		return cli.usrRepo.UpdateUser(ctx, usr)
	}
	return cli.usrRepo.CreateUser(ctx, usr)
}
