package main

import (
	"context"

	"github.com/trezcool/tuition/core/user"
)

func (cli *commandLine) resetPassword(uname, pwd, confirm string) error {
	_, err := cli.usrSvc.ResetPassword(context.Background(), user.ResetUserPassword{
		Username:        uname,
		Password:        pwd,
		PasswordConfirm: confirm,
	})
	return err
}
