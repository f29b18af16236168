package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.users.SetPassword(context.Background(), email, pwd)
}

func (cli *commandLine) setPIN(email, pin string) error {
	ctx := context.Background()
	usr, err := cli.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	return cli.users.SetAdminPIN(ctx, usr.ID, pin)
}
