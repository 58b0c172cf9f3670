package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
)

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decoding %s", path)
}

func (cli *commandLine) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, string(data))
	return err
}

func (cli *commandLine) syncEnrollment(path string) error {
	if cli.lmsSvc == nil {
		return core.NewConfigError("moodle.url")
	}
	var req lms.SyncRequest
	if err := readJSON(path, &req); err != nil {
		return err
	}
	if err := req.Validate(cli.validate); err != nil {
		return err
	}

	res, err := cli.lmsSvc.SyncEnrollment(context.Background(), req)
	if err != nil {
		// completed steps are reported along with the failure
		_ = cli.printJSON(res)
		return err
	}
	return cli.printJSON(res)
}

func (cli *commandLine) provision(path string) error {
	if cli.identitySvc == nil {
		return core.NewConfigError("azure.tenantID")
	}
	var a identity.Applicant
	if err := readJSON(path, &a); err != nil {
		return err
	}
	if err := a.Validate(cli.validate); err != nil {
		return err
	}

	res, err := cli.identitySvc.Provision(context.Background(), a)
	if err != nil {
		return err
	}
	return cli.printJSON(res)
}
