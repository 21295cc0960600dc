package observability

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	sentryEnabled atomic.Bool
	strictDefects atomic.Bool
)

// InitErrorReporting enables Sentry when dsn is set. strict makes
// ReportDefect panic, which is what development builds want.
func InitErrorReporting(dsn, environment string, strict bool) error {
	strictDefects.Store(strict)
	if dsn == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     serviceName + "@" + Version,
	})
	if err != nil {
		return err
	}
	sentryEnabled.Store(true)
	return nil
}

// FlushErrorReporting waits for queued events to be delivered.
func FlushErrorReporting() {
	if sentryEnabled.Load() {
		sentry.Flush(2 * time.Second)
	}
}

// ReportDefect records a contract violation (InvalidState). These are not
// user-facing: they are logged, sent to Sentry and, in strict mode, panic.
func ReportDefect(component string, err error) {
	if err == nil {
		return
	}
	logger := ForComponent(component)
	logger.Error().Err(err).Msg("Pipeline contract violation")

	if sentryEnabled.Load() {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", component)
			sentry.CaptureException(err)
		})
	}
	if strictDefects.Load() {
		panic(errors.Join(errors.New(component+": contract violation"), err))
	}
}

// ReportFailure sends an unexpected but recovered failure to Sentry.
func ReportFailure(component string, err error) {
	if err == nil || !sentryEnabled.Load() {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetLevel(sentry.LevelWarning)
		sentry.CaptureException(err)
	})
}
