package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/imusici/accademia/core/user"
)

// addUser creates a user. An existing user keeps its record but is reactivated with the new password.
func (cli *commandLine) addUser(nu user.NewUser) error {
	ctx := context.Background()

	usr, err := cli.users.GetByEmail(ctx, nu.Email)
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		_, err = cli.users.Create(ctx, nu)
		return err
	}

	active := true
	if _, err := cli.users.Update(ctx, usr.ID, user.UpdateUser{IsActive: &active, Password: nu.Password}); err != nil {
		return err
	}
	return nil
}
