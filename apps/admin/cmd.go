package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db          *sql.DB
	validate    *validator.Validate
	operatorSvc *operator.Service
	paymentSvc  *payment.Service
	lmsSvc      *lms.Service      // nil when moodle is not configured
	identitySvc *identity.Service // nil when the directory is not configured
	out         io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status...)")
	fmt.Fprintln(cli.out, "  addoperator -name NAME -email EMAIL -roles ROLES - create a back-office operator")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset an operator's password")
	fmt.Fprintln(cli.out, "  sync -file FILE - mirror the enrollment described in FILE (JSON) into the LMS")
	fmt.Fprintln(cli.out, "  provision -file FILE - create the institutional account of the applicant in FILE (JSON)")
	fmt.Fprintln(cli.out, "  pay -student ID -reference REF -amount AMOUNT - allocate a manual payment")
	fmt.Fprintln(cli.out, "  report -out FILE [-student IDS] - write the fee collection report (xlsx)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addOperatorCmd := flag.NewFlagSet("addoperator", flag.ContinueOnError)
	addOperatorName := addOperatorCmd.String("name", "", "The operator's full name.")
	addOperatorEmail := addOperatorCmd.String("email", "", "The operator's email. The password will be prompted next.")
	addOperatorRoles := addOperatorCmd.String("roles", operator.RoleBursar, "Comma separated roles: "+strings.Join(operator.AllRoles, ", "))

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The operator's email. The password will be prompted next.")

	syncCmd := flag.NewFlagSet("sync", flag.ContinueOnError)
	syncFile := syncCmd.String("file", "", "JSON file holding the student, year, term and course.")

	provisionCmd := flag.NewFlagSet("provision", flag.ContinueOnError)
	provisionFile := provisionCmd.String("file", "", "JSON file holding the applicant.")

	payCmd := flag.NewFlagSet("pay", flag.ContinueOnError)
	payStudent := payCmd.String("student", "", "The student's id.")
	payReference := payCmd.String("reference", "", "The payment reference (receipt number). Replays are ignored.")
	payAmount := payCmd.String("amount", "", "The amount paid.")
	payCurrency := payCmd.String("currency", "", "The payment currency; defaults to the obligations'.")

	reportCmd := flag.NewFlagSet("report", flag.ContinueOnError)
	reportOut := reportCmd.String("out", "collection.xlsx", "The xlsx file to write.")
	reportStudents := reportCmd.String("student", "", "Comma separated student ids; all students when empty.")

	for _, fs := range []*flag.FlagSet{addOperatorCmd, resetPasswordCmd, syncCmd, provisionCmd, payCmd, reportCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addoperator":
		if err := addOperatorCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addOperatorName == "" || *addOperatorEmail == "" {
			addOperatorCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addOperatorCmd.Usage()
			return errHelp
		}
		return cli.addOperator(*addOperatorName, *addOperatorEmail, pwd, strings.Split(*addOperatorRoles, ","))

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "sync":
		if err := syncCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *syncFile == "" {
			syncCmd.Usage()
			return errHelp
		}
		return cli.syncEnrollment(*syncFile)

	case "provision":
		if err := provisionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *provisionFile == "" {
			provisionCmd.Usage()
			return errHelp
		}
		return cli.provision(*provisionFile)

	case "pay":
		if err := payCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *payStudent == "" || *payReference == "" || *payAmount == "" {
			payCmd.Usage()
			return errHelp
		}
		return cli.pay(*payStudent, *payReference, *payAmount, *payCurrency)

	case "report":
		if err := reportCmd.Parse(args[2:]); err != nil {
			return err
		}
		var students []string
		if *reportStudents != "" {
			students = strings.Split(*reportStudents, ",")
		}
		return cli.collectionReport(*reportOut, students...)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
