package logsvc

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/trezcool/jamii/core"
)

// CronLogger routes robfig/cron logs through a core.Logger.
type CronLogger struct {
	logger  core.Logger
	verbose bool // cron info logs are chatty: one entry per wake-up
}

var _ cron.Logger = (*CronLogger)(nil)

func NewCronLogger(logger core.Logger, verbose bool) *CronLogger {
	return &CronLogger{logger: logger, verbose: verbose}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.verbose {
		l.logger.Info(formatKeysAndValues("cron: "+msg, keysAndValues))
	}
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(formatKeysAndValues("cron: "+msg, keysAndValues), err)
}

func formatKeysAndValues(msg string, keysAndValues []interface{}) string {
	if len(keysAndValues) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(keysAndValues); i += 2 {
		b.WriteString(", ")
		if i+1 < len(keysAndValues) {
			_, _ = fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
		} else {
			_, _ = fmt.Fprintf(&b, "%v", keysAndValues[i])
		}
	}
	return b.String()
}
