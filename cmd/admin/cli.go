package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"attendsync/internal/attendance"
	"attendsync/internal/auth"
	"attendsync/internal/roster"
)

var readPasswordFunc = term.ReadPassword // mockable

var errNoSchema = errors.New("the configured data backend has no schema to migrate")

type commandLine struct {
	migrate  func(ctx context.Context) error
	gate     *auth.Gate
	students attendance.StudentStore
}

func (cli *commandLine) root() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Administrative tasks for attendsync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cli.migrateCmd(), cli.facultyCmd(), cli.studentCmd())
	return root
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cli.migrate == nil {
				return errNoSchema
			}
			if err := cli.migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

func (cli *commandLine) facultyCmd() *cobra.Command {
	faculty := &cobra.Command{Use: "faculty", Short: "Manage faculty accounts"}

	var email string
	setPassword := &cobra.Command{
		Use:   "set-password",
		Short: "Set the password of an allow-listed faculty member (prompted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := cli.gate.AllowList().Lookup(email); !ok {
				return fmt.Errorf("%s is not on FACULTY_ALLOWLIST", email)
			}
			fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
			pwd, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if len(pwd) == 0 {
				return errors.New("password must not be empty")
			}
			if err := cli.gate.SetPassword(cmd.Context(), email, string(pwd)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password set for %s\n", email)
			return nil
		},
	}
	setPassword.Flags().StringVar(&email, "email", "", "faculty email address")
	_ = setPassword.MarkFlagRequired("email")

	faculty.AddCommand(setPassword)
	return faculty
}

func (cli *commandLine) studentCmd() *cobra.Command {
	student := &cobra.Command{Use: "student", Short: "Inspect student records"}

	var d attendance.Descriptor
	list := &cobra.Command{
		Use:   "list",
		Short: "List students of a program, optionally narrowed to a branch and year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, err := cli.students.StudentsByProgram(cmd.Context(), d.Program)
			if err != nil {
				return err
			}
			if d.Branch != "" || d.Year != "" {
				all = filterCohort(all, d)
			}
			return printStudents(cmd.OutOrStdout(), all)
		},
	}
	list.Flags().StringVar(&d.Program, "program", "", "program name, e.g. B.Tech")
	list.Flags().StringVar(&d.Branch, "branch", "", "branch filter")
	list.Flags().StringVar(&d.Year, "year", "", "year filter, e.g. \"1st Year\"")
	_ = list.MarkFlagRequired("program")

	student.AddCommand(list)
	return student
}

// filterCohort keeps students matching the non-empty parts of d, in name order.
func filterCohort(students []attendance.Student, d attendance.Descriptor) []attendance.Student {
	out := make([]attendance.Student, 0, len(students))
	for _, s := range students {
		if d.Branch != "" && s.Branch != d.Branch {
			continue
		}
		if d.Year != "" && s.Year != d.Year {
			continue
		}
		out = append(out, s)
	}
	if d.Branch != "" && d.Year != "" {
		return roster.Resolve(out, d)
	}
	return out
}

func printStudents(w io.Writer, students []attendance.Student) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINSTITUTE ID\tBRANCH\tYEAR\tEMAIL")
	for _, s := range students {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.InstituteID, s.Branch, s.Year, strings.ToLower(s.Email))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d student(s)\n", len(students))
	return nil
}
