package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(ctx context.Context, firstName, lastName, email, pwd string, role user.Role) error {
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return err
	}

	usr.Email = email
	if firstName = core.CleanString(firstName); firstName != "" {
		usr.FirstName = firstName
	}
	if lastName = core.CleanString(lastName); lastName != "" {
		usr.LastName = lastName
	}
	usr.Role = role
	usr.IsActive = true
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
