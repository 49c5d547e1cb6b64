package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/subscription"
)

const sweepTimeout = 10 * time.Minute

// sweeper is the cron job running the subscription expiry sweep.
type sweeper struct {
	svc     subscription.Service
	mailSvc core.EmailService
	logger  core.Logger
}

var _ cron.Job = (*sweeper)(nil) // interface compliance check

func newSweeper(svc subscription.Service, mailSvc core.EmailService, logger core.Logger) *sweeper {
	vala.BeginValidation().Validate(
		vala.IsNotNil(svc, "svc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &sweeper{svc: svc, mailSvc: mailSvc, logger: logger}
}

func (s *sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := s.svc.Sweep(ctx, subscription.NowFunc())
	// a run ends once its notices are out, so stopping the scheduler never drops them
	s.mailSvc.Wait()
	if err != nil {
		s.logger.Error(fmt.Sprintf("sweeping subscriptions: %v", err), err)
		return
	}
	for _, item := range report.Failed {
		s.logger.Warn(fmt.Sprintf("subscription sweep failed (%s) %s: %s", item.Action, item.SubscriptionID, item.Error))
	}
}

// newScheduler registers the sweep on schedule. Runs never overlap: a run still going when the next
// one is due makes cron skip the latter.
func newScheduler(schedule string, job cron.Job, logger cron.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddJob(schedule, job); err != nil {
		return nil, errors.Wrapf(err, "scheduling subscription sweep (%q)", schedule)
	}
	return c, nil
}
