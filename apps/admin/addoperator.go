package main

import (
	"context"
	"fmt"

	"github.com/edtools/edcore/core/operator"
)

// addOperator creates an active operator holding roles.
func (cli *commandLine) addOperator(name, email, pwd string, roles []string) error {
	op, err := cli.operatorSvc.Create(context.Background(), operator.NewOperator{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "operator %s created (id %s, roles %v)\n", op.Email, op.ID, op.Roles)
	return nil
}
