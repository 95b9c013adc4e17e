package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/user"
)

var (
	errNotCounselor = errors.New("not a counselor")
	errNotStudent   = errors.New("not a student")
)

func (cli *commandLine) assignCmd() *cobra.Command {
	var counselor, student string
	var remove bool
	cmd := &cobra.Command{
		Use:   "assign --counselor EMAIL --student EMAIL [--remove]",
		Short: "Assign a student to a counselor, or remove the assignment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if counselor == "" || student == "" {
				_ = cmd.Usage()
				return errHelp
			}
			if err := cli.assign(counselor, student, remove); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cli.writer(), "assignments updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&counselor, "counselor", "", "The counselor's email")
	cmd.Flags().StringVar(&student, "student", "", "The student's email")
	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the assignment instead")
	return cmd
}

func (cli *commandLine) assign(counselorEmail, studentEmail string, remove bool) error {
	ctx := context.Background()
	get := func(email string) (user.User, error) {
		usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
		return usr, errors.Wrap(err, email)
	}

	counselor, err := get(counselorEmail)
	if err != nil {
		return err
	}
	if !counselor.IsCounselor() {
		return errors.Wrap(errNotCounselor, counselor.Email)
	}
	student, err := get(studentEmail)
	if err != nil {
		return err
	}
	if !student.IsStudent() {
		return errors.Wrap(errNotStudent, student.Email)
	}

	if remove {
		return cli.usrRepo.UnassignStudent(ctx, counselor.ID, student.ID)
	}
	return cli.usrRepo.AssignStudent(ctx, user.Assignment{
		CounselorID: counselor.ID,
		StudentID:   student.ID,
		CreatedAt:   core.NowFunc(),
	})
}
