package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/debtor"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/student"
	"github.com/trezcool/tuition/core/user"
	inmemdb "github.com/trezcool/tuition/storage/database/inmem"
	testutil "github.com/trezcool/tuition/tests"
)

type fixture struct {
	cli     *commandLine
	out     *bytes.Buffer
	db      *inmemdb.DB
	usrRepo user.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	validate, _ := testutil.NewValidator()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	out := new(bytes.Buffer)

	debtorSvc := debtor.NewService(
		inmemdb.NewStudentDirectory(db),
		inmemdb.NewPaymentRepository(db),
		debtor.Options{Threshold: decimal.NewFromInt(1)},
		validate,
	)
	debtorSvc.NowFunc = func() time.Time { return time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC) }

	return &fixture{
		cli: &commandLine{
			out:       out,
			usrSvc:    user.NewService(usrRepo, validate),
			debtorSvc: debtorSvc,
		},
		out:     out,
		db:      db,
		usrRepo: usrRepo,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func mockPasswords(pwds ...string) {
	i := 0
	readPasswordFunc = func(fd int) ([]byte, error) {
		if i >= len(pwds) {
			return nil, nil
		}
		pwd := pwds[i]
		i++
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "add_discount_reason", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	f := setup(t)

	tests := []struct {
		cliTest
		pwds []string
	}{
		{cliTest: cliTest{name: "no args", args: []string{"adduser"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no password", args: []string{"adduser", "-name", "Jane", "-username", "janedoe"}, wantErr: errHelp}},
		{
			cliTest: cliTest{name: "short username", args: []string{"adduser", "-name", "Jane", "-username", "jane"}},
			pwds:    []string{"Str0ng.Pass", "Str0ng.Pass"},
		},
		{
			cliTest: cliTest{name: "mismatch", args: []string{"adduser", "-name", "Jane", "-username", "janedoe"}},
			pwds:    []string{"Str0ng.Pass", "Str0ng.Pas"},
		},
		{
			cliTest: cliTest{name: "unknown role", args: []string{"adduser", "-name", "Jane", "-username", "janedoe", "-role", "teacher"}},
			pwds:    []string{"Str0ng.Pass", "Str0ng.Pass"},
		},
		{
			cliTest: cliTest{name: "created", args: []string{"adduser", "-name", "Jane", "-username", "janedoe", "-email", "jane@example.com"}},
			pwds:    []string{"Str0ng.Pass", "Str0ng.Pass"},
		},
		{
			cliTest: cliTest{name: "duplicate", args: []string{"adduser", "-name", "Jane", "-username", "janedoe"}},
			pwds:    []string{"Str0ng.Pass", "Str0ng.Pass"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			mockPasswords(tt.pwds...)
			err := f.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.name == "created":
				require.NoError(t, err)
				usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "janedoe"})
				require.NoError(t, err)
				assert.Equal(t, []string{user.RoleAdminOwner}, usr.Roles)
				assert.NoError(t, usr.CheckPassword("Str0ng.Pass"))
			default:
				assert.True(t, core.IsValidation(err), "got %v", err)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	f := setup(t)

	usr := testutil.CreateUser(t, f.usrRepo, "User", "awesome", "awe@test.cd", "Old.Passw0rd", []string{user.RoleAdmin}, true)

	tests := []struct {
		cliTest
		pwds []string
	}{
		{cliTest: cliTest{name: "no command", wantErr: errHelp}},
		{cliTest: cliTest{name: "unknown command", args: []string{"lol"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp}},
		{cliTest: cliTest{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp}},
		{
			cliTest: cliTest{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, wantErr: user.ErrNotFound},
			pwds:    []string{"N3w.Passw0rd", "N3w.Passw0rd"},
		},
		{
			cliTest: cliTest{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}},
			pwds:    []string{"N3w.Passw0rd", "N3w.Passw0rd"},
		},
		{
			cliTest: cliTest{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}},
			pwds:    []string{"An0ther.Pass", "An0ther.Pass"},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			mockPasswords(tt.pwds...)
			err := f.cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			refreshed, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwds[0]))
		})
	}
}

func Test_commandLine_debtors(t *testing.T) {
	f := setup(t)
	eng := f.db.AddGroup(student.Group{Code: "ENG-1", Name: "English", MonthlyPrice: decimal.NewFromInt(500000)})
	aziza := f.db.AddStudent(student.Student{
		Code:           "S-001",
		FirstName:      "Aziza",
		LastName:       "Karimova",
		EnrollmentDate: time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
	}, eng.ID)
	f.db.AddStudent(student.Student{
		Code:           "S-002",
		FirstName:      "Bobur",
		LastName:       "Aliyev",
		EnrollmentDate: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	}, eng.ID)

	_, err := inmemdb.NewPaymentRepository(f.db).CreateEntry(context.Background(), payment.Entry{
		StudentID:    aziza.ID,
		GroupID:      eng.ID,
		Amount:       decimal.NewFromInt(500000),
		Type:         payment.TypeCash,
		Date:         time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC),
		BillingMonth: billing.Month(1),
		BillingYear:  2024,
	})
	require.NoError(t, err)

	require.NoError(t, f.cli.run([]string{"admin", "debtors"}))
	out := f.out.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "TOTAL DEBT")
	assert.Contains(t, lines[1], "S-001")
	assert.Contains(t, lines[1], "1000000.00")
	assert.Contains(t, lines[2], "S-002")
	assert.Contains(t, lines[2], "500000.00")
	assert.Equal(t, "2 debtor(s)", lines[3])

	f.out.Reset()
	err = f.cli.run([]string{"admin", "debtors", "-month", "3"})
	assert.True(t, core.IsValidation(err))
}
