package main

import (
	"fmt"
	"os"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/fee"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
	appfs "github.com/edtools/edcore/fs"
	emailsvc "github.com/edtools/edcore/services/email"
	"github.com/edtools/edcore/services/graph"
	logsvc "github.com/edtools/edcore/services/logger"
	"github.com/edtools/edcore/services/moodle"
	stripesvc "github.com/edtools/edcore/services/stripe"
	"github.com/edtools/edcore/storage/database"
	sqlxrepos "github.com/edtools/edcore/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(conf, os.Stderr)
	logger.Enable(false)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()

	validate, translator := core.NewValidator()
	operator.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cli := commandLine{
		db:          db.DB,
		validate:    validate,
		operatorSvc: operator.NewService(sqlxrepos.NewOperatorRepository(db), validate),
		paymentSvc:  payment.NewService(sqlxrepos.NewPaymentRepository(db), stripesvc.NewGateway(conf, logger), nil, conf, logger),
		out:         os.Stdout,
	}
	if client, err := moodle.NewClient(conf, logger); err == nil {
		cli.lmsSvc = lms.NewService(client, conf, logger)
	}
	switch dir, err := graph.NewClient(conf, logger); {
	case conf.Azure.Sandbox || !conf.Azure.Enabled:
		cli.identitySvc = identity.NewService(nil, mailSvc, conf, logger)
	case err == nil:
		cli.identitySvc = identity.NewService(dir, mailSvc, conf, logger)
	}

	// start CLI
	err = cli.run(os.Args)
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait()
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		db.Close()
		os.Exit(1)
	}
}
