package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/pueriangeli/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB // nil when running on the in-memory database
	usrRepo user.Repository
	out     io.Writer
}

// rootCmd builds a fresh command tree so that flags never leak from one run to the next.
func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Pueri Angeli administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.addUserCmd(), cli.resetPasswordCmd(), cli.migrateCmd())
	return root
}

func (cli *commandLine) addUserCmd() *cobra.Command {
	var firstName, lastName, email, role string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a user, or update the one registered with this email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				_ = cmd.Help()
				return errHelp
			}
			r, err := user.ParseRole(role)
			if err != nil {
				return err
			}
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Help()
				return errHelp
			}
			return cli.addUser(cmd.Context(), firstName, lastName, email, pwd, r)
		},
	}
	cmd.Flags().StringVar(&firstName, "first", "", "first name")
	cmd.Flags().StringVar(&lastName, "last", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address; the password will be prompted next")
	cmd.Flags().StringVar(&role, "role", user.RoleAdmin.String(), "parent, teacher, admin or developer")
	return cmd
}

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				_ = cmd.Help()
				return errHelp
			}
			pwd, err := cli.promptPassword()
			if err != nil {
				return err
			}
			if pwd == "" {
				_ = cmd.Help()
				return errHelp
			}
			return cli.resetPassword(cmd.Context(), email, pwd)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "the user's email; the password will be prompted next")
	return cmd
}

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "migrate COMMAND [ARGS]",
		Short:              "Run database migrations (up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix)",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return errHelp
			}
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

// run executes the command line; args include the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}
