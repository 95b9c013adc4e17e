// Package logsvc prints logs through a standard logger and reports them to Rollbar.
package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/admitdesk/admitdesk/core"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger configures the process-wide Rollbar client. Reporting stays off without a token and in tests.
func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is one log call split the way Rollbar wants it.
type entry struct {
	actor  *core.Actor
	report []interface{} // msg, then errors and extras maps
	print  []interface{}
}

// split sorts args: a core.Actor becomes the Rollbar person (the first one only),
// anything else (error, map[string]interface{}) is reported and printed.
func split(msg string, args []interface{}) entry {
	e := entry{report: []interface{}{msg}}
	for _, arg := range args {
		if actor, ok := arg.(core.Actor); ok {
			if e.actor == nil && actor.ID != "" {
				a := actor
				e.actor = &a
			}
			continue
		}
		e.report = append(e.report, arg)
		e.print = append(e.print, arg)
	}
	return e
}

func (l RollbarLogger) log(level, msg string, args []interface{}) {
	e := split(msg, args)
	if e.actor != nil {
		rollbar.SetPerson(e.actor.ID, e.actor.Name, e.actor.Email)
	} else {
		rollbar.ClearPerson()
	}
	rollbar.Log(level, e.report...)

	l.std.Printf("[%s] %s", level, msg)
	for _, arg := range e.print {
		l.std.Printf("%+v", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(rollbar.DEBUG, msg, args) }
func (l RollbarLogger) Info(msg string, args ...interface{})  { l.log(rollbar.INFO, msg, args) }
func (l RollbarLogger) Warn(msg string, args ...interface{})  { l.log(rollbar.WARN, msg, args) }
func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(rollbar.ERR, msg, args) }

// Fatal reports, waits for pending Rollbar items and exits.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
