package main

import (
	"context"

	"github.com/edtools/edcore/core/operator"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.operatorSvc.ResetPassword(context.Background(), operator.PasswordReset{
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
}
