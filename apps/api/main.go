package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/edtools/edcore/apps/api/echo"
	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/fee"
	"github.com/edtools/edcore/core/identity"
	"github.com/edtools/edcore/core/lms"
	"github.com/edtools/edcore/core/operator"
	"github.com/edtools/edcore/core/payment"
	appfs "github.com/edtools/edcore/fs"
	emailsvc "github.com/edtools/edcore/services/email"
	"github.com/edtools/edcore/services/graph"
	locksvc "github.com/edtools/edcore/services/lock"
	logsvc "github.com/edtools/edcore/services/logger"
	"github.com/edtools/edcore/services/moodle"
	stripesvc "github.com/edtools/edcore/services/stripe"
	"github.com/edtools/edcore/storage/database"
	sqlxrepos "github.com/edtools/edcore/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	var locker payment.Locker
	if conf.Redis.Addr != "" {
		rdb := locksvc.NewRedisClient(conf)
		defer func() { _ = rdb.Close() }()
		locker = locksvc.NewRedisLocker(rdb, logger)
	} else {
		logger.Warn("redis.addr not set: payments are not locked across instances")
	}

	validate, translator := core.NewValidator()
	operator.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)

	operatorSvc := operator.NewService(sqlxrepos.NewOperatorRepository(db), validate)
	paymentSvc := payment.NewService(
		sqlxrepos.NewPaymentRepository(db),
		stripesvc.NewGateway(conf, logger),
		locker,
		conf,
		logger,
	)
	lmsSvc := newLMSService(conf, logger)
	identitySvc := newIdentityService(conf, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			Validate:    validate,
			Translator:  translator,
			OperatorSvc: operatorSvc,
			PaymentSvc:  paymentSvc,
			LMSSvc:      lmsSvc,
			IdentitySvc: identitySvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

// newLMSService returns nil when Moodle is not configured.
func newLMSService(conf *core.Config, logger core.Logger) *lms.Service {
	client, err := moodle.NewClient(conf, logger)
	if err != nil {
		logger.Warn("lms sync disabled", err)
		return nil
	}
	return lms.NewService(client, conf, logger)
}

// newIdentityService returns nil when the directory is needed but not configured.
func newIdentityService(conf *core.Config, mailSvc core.EmailService, logger core.Logger) *identity.Service {
	if conf.Azure.Sandbox || !conf.Azure.Enabled {
		return identity.NewService(nil, mailSvc, conf, logger)
	}
	dir, err := graph.NewClient(conf, logger)
	if err != nil {
		logger.Warn("identity provisioning disabled", err)
		return nil
	}
	return identity.NewService(dir, mailSvc, conf, logger)
}
