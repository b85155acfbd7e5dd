package main

import (
	"context"
	"fmt"

	"github.com/trezcool/tuition/core/user"
)

func (cli *commandLine) addUser(nu user.NewUser) error {
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "created %s (%s)\n", usr.Username, usr.ID)
	return nil
}
