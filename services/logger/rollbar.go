package logsvc

import (
	"fmt"
	"io"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"github.com/sirupsen/logrus"

	"github.com/edtools/edcore/core"
)

// RollbarLogger reports events to Rollbar and writes them locally as logrus entries.
type RollbarLogger struct {
	local *logrus.Logger
	exit  func(int)
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(conf *core.Config, out ...io.Writer) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)

	return &RollbarLogger{local: NewLocal(conf, out...), exit: os.Exit}
}

// NewLocal returns the local logrus logger: JSON lines unless in debug mode.
func NewLocal(conf *core.Config, out ...io.Writer) *logrus.Logger {
	local := logrus.New()
	if len(out) > 0 {
		local.SetOutput(out[0])
	}
	if conf.Debug {
		local.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		local.SetLevel(logrus.DebugLevel)
	} else {
		local.SetFormatter(&logrus.JSONFormatter{})
		local.SetLevel(logrus.InfoLevel)
	}
	return local
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// expected args: error, map[string]interface{}, core.LogPerson (in any order)
func (l *RollbarLogger) prepare(msg string, args []interface{}) ([]interface{}, logrus.Fields) {
	var personSet bool
	fields := make(logrus.Fields)
	rbArgs := make([]interface{}, 0, len(args)+1)
	rbArgs = append(rbArgs, msg)

	for _, arg := range args {
		switch a := arg.(type) {
		case core.LogPerson:
			if !personSet { // only set one person
				rollbar.SetPerson(a.ID, a.Username, a.Email)
				fields["person"] = a.ID
				personSet = true
			}
			continue
		case error:
			fields[logrus.ErrorKey] = fmt.Sprintf("%+v", a)
		case map[string]interface{}:
			for k, v := range a {
				fields[k] = v
			}
		default:
			fields[fmt.Sprintf("arg%d", len(rbArgs))] = a
		}
		rbArgs = append(rbArgs, arg)
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return rbArgs, fields
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Debug(rbArgs...)
	l.local.WithFields(fields).Debug(msg)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Info(rbArgs...)
	l.local.WithFields(fields).Info(msg)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Warning(rbArgs...)
	l.local.WithFields(fields).Warn(msg)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Error(rbArgs...)
	l.local.WithFields(fields).Error(msg)
}

// Fatal reports msg, waits for Rollbar to flush and exits.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	rbArgs, fields := l.prepare(msg, args)
	rollbar.Critical(rbArgs...)
	rollbar.Wait()
	l.local.WithFields(fields).Error(msg)
	l.exit(1)
}
