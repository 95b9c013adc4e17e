package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "resetpassword --email EMAIL",
		Short: "Reset a user's password. The password is prompted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			if err = cli.resetPassword(email, pwd); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.writer(), "password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "The user's email")
	return cmd
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = core.NowFunc()
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
