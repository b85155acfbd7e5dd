package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/tuition/core/debtor"
	"github.com/trezcool/tuition/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	out       io.Writer
	usrSvc    *user.Service
	debtorSvc *debtor.Service
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME [-email EMAIL] [-role ROLE] - create an admin account")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	_, _ = fmt.Fprintln(cli.out, "  debtors [-month M -year Y] [-group GROUP_ID] [-limit N] - print the debtors report")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The admin's full name.")
	addUserUname := addUserCmd.String("username", "", "The admin's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The admin's email.")
	addUserRole := addUserCmd.String("role", user.RoleAdminOwner, "The admin's role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	debtorsCmd := flag.NewFlagSet("debtors", flag.ContinueOnError)
	debtorsMonth := debtorsCmd.Int("month", 0, "Only report this billing month (1-12); requires -year.")
	debtorsYear := debtorsCmd.Int("year", 0, "Only report this billing year; requires -month.")
	debtorsGroup := debtorsCmd.String("group", "", "Only report the members of this group (uuid).")
	debtorsLimit := debtorsCmd.Int("limit", debtor.MaxLimit, "Maximum number of debtors to print.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, debtorsCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserUname == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, confirm, err := cli.promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: confirm,
			Roles:           []string{*addUserRole},
		})
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, confirm, err := cli.promptPassword(true)
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd, confirm)
	case "debtors":
		if err := debtorsCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.debtors(debtor.Filter{
			Month:   monthFlag(*debtorsMonth),
			Year:    *debtorsYear,
			GroupID: *debtorsGroup,
			Limit:   *debtorsLimit,
		})
	default:
		cli.printUsage()
		return errHelp
	}
}

// promptPassword reads the password (and its confirmation) without echoing it.
func (cli *commandLine) promptPassword(confirm bool) (string, string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil || len(pwd) == 0 || !confirm {
		return string(pwd), string(pwd), err
	}

	_, _ = fmt.Fprint(cli.out, "Confirm password:")
	again, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	return string(pwd), string(again), err
}
