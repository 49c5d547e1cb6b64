package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/user"
)

// Sweep actions
const (
	ActionWarn      = "warned"
	ActionDowngrade = "downgraded"
	ActionSkip      = "skipped"
	ActionFail      = "failed"
)

var (
	NowFunc = core.NowUTC // mockable

	ErrNotFound = errors.New("subscription not found")

	sweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jamii_subscription_sweep_total",
		Help: "Subscriptions handled by the expiry sweep, by action.",
	}, []string{"action"})

	sweepLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jamii_subscription_sweep_last_run_timestamp_seconds",
		Help: "Unix time of the last completed expiry sweep.",
	})
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// QuerySubscriptions applies AND operation on available QueryFilter fields.
		QuerySubscriptions(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		DeleteSubscriptionsByID(ctx context.Context, ids ...string) (int, error)
	}

	// Accounts is the part of the user service subscriptions depend on.
	Accounts interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		GrantRole(ctx context.Context, id, role string) (user.User, error)
		RevokeRole(ctx context.Context, id, role string) (user.User, error)
	}

	service struct {
		repo        Repository
		accounts    Accounts
		mailSvc     core.EmailService
		logger      core.Logger
		premiumRole string
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, accounts Accounts, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(accounts, "accounts"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	premiumRole := conf.Subscription.PremiumRole
	if premiumRole == "" {
		premiumRole = user.RoleMemberPremium
	}
	return &service{
		repo:        repo,
		accounts:    accounts,
		mailSvc:     mailSvc,
		logger:      logger,
		premiumRole: premiumRole,
	}
}

func (svc *service) Create(ctx context.Context, ns NewSubscription) (Subscription, error) {
	if _, err := svc.accounts.GetByID(ctx, ns.UserID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Subscription{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: err.Error()})
		}
		return Subscription{}, errors.Wrap(err, "finding subscription owner")
	}

	now := NowFunc()
	sub := Subscription{
		UserID:    ns.UserID,
		Plan:      ns.Plan,
		Status:    ns.Status,
		StartDate: ns.StartDate.UTC(),
		EndDate:   utcPtr(ns.EndDate),
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub, err := svc.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return Subscription{}, errors.Wrap(err, "creating subscription")
	}
	if err = svc.syncRole(ctx, sub, now); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

// Update applies us on sub. us must have been validated against sub.
func (svc *service) Update(ctx context.Context, sub Subscription, us UpdateSubscription) (Subscription, error) {
	now := NowFunc()
	sub.Plan = us.Plan
	sub.Status = us.Status
	sub.StartDate = us.StartDate.UTC()
	sub.EndDate = utcPtr(us.EndDate)
	sub.UpdatedAt = now

	sub, err := svc.repo.UpdateSubscription(ctx, sub)
	if err != nil {
		return Subscription{}, errors.Wrap(err, "updating subscription")
	}
	if err = svc.syncRole(ctx, sub, now); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	if _, err := svc.repo.DeleteSubscriptionsByID(ctx, ids...); err != nil {
		return errors.Wrap(err, "deleting subscriptions")
	}
	return nil
}

// syncRole grants the premium role to the owner of a running active subscription and revokes it
// once the subscription is cancelled or expired. Pending and ended-but-active subscriptions are
// left to the sweep.
func (svc *service) syncRole(ctx context.Context, sub Subscription, now time.Time) error {
	var err error
	switch {
	case sub.Status == StatusActive && !sub.HasEnded(now):
		_, err = svc.accounts.GrantRole(ctx, sub.UserID, svc.premiumRole)
	case sub.Status == StatusCancelled || sub.Status == StatusExpired:
		err = svc.revokePremium(ctx, sub, now)
	}
	return errors.Wrap(err, "syncing premium role")
}

// revokePremium removes the premium role from the owner of sub, unless another of their
// subscriptions still runs.
func (svc *service) revokePremium(ctx context.Context, sub Subscription, now time.Time) error {
	others, err := svc.repo.QuerySubscriptions(ctx, &QueryFilter{UserID: sub.UserID, Statuses: []string{StatusActive}}, nil)
	if err != nil {
		return errors.Wrap(err, "querying owner subscriptions")
	}
	for _, other := range others {
		if other.ID != sub.ID && !other.HasEnded(now) {
			return nil
		}
	}
	_, err = svc.accounts.RevokeRole(ctx, sub.UserID, svc.premiumRole)
	return err
}

// Evaluate returns the matching subscriptions along with their lifecycle state at now.
func (svc *service) Evaluate(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, now time.Time) ([]Evaluation, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	evals := make([]Evaluation, 0, len(subs))
	for _, sub := range subs {
		state, err := Classify(sub, now)
		eval := Evaluation{Subscription: sub, State: state}
		if err != nil {
			eval.Error = err.Error()
		}
		evals = append(evals, eval)
	}
	return evals, nil
}

// DueActions loads every ended subscription in one snapshot and computes the actions due at now.
func (svc *service) DueActions(ctx context.Context, now time.Time) (Due, error) {
	hasEnd := true
	subs, err := svc.repo.QuerySubscriptions(ctx, &QueryFilter{HasEndDate: &hasEnd, EndTo: now}, nil)
	if err != nil {
		return Due{}, errors.Wrap(err, "querying ended subscriptions")
	}
	return DueActions(subs, now), nil
}

// Sweep performs the actions due at now: owners of subscriptions in their warning window get a
// notice; subscriptions past the downgrade threshold are marked expired, their owner loses the
// premium role and gets a notice. A failing record is reported and does not stop the sweep.
// Nothing records a sent warning: every sweep inside the window sends it again, so a daily
// schedule warns an owner up to three times before the downgrade.
func (svc *service) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	due, err := svc.DueActions(ctx, now)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{
		RanAt:      now,
		Warned:     make([]string, 0, len(due.ToWarn)),
		Downgraded: make([]string, 0, len(due.ToDowngrade)),
		Skipped:    make([]SweepItem, 0, len(due.Skipped)),
		Failed:     make([]SweepItem, 0),
	}
	fail := func(sub Subscription, action string, err error) {
		report.Failed = append(report.Failed, SweepItem{SubscriptionID: sub.ID, Action: action, Error: err.Error()})
		sweepTotal.WithLabelValues(ActionFail).Inc()
		svc.logger.Error(fmt.Sprintf("subscription sweep: %s %s: %v", action, sub.ID, err), err)
	}

	for _, skipped := range due.Skipped {
		report.Skipped = append(report.Skipped, SweepItem{
			SubscriptionID: skipped.Subscription.ID,
			Action:         ActionSkip,
			Error:          skipped.Err.Error(),
		})
		sweepTotal.WithLabelValues(ActionSkip).Inc()
		svc.logger.Warn(fmt.Sprintf("subscription sweep: skipping %s: %v", skipped.Subscription.ID, skipped.Err))
	}

	var messages []*core.EmailMessage

	for _, sub := range due.ToWarn {
		if err = ctx.Err(); err != nil {
			return report, errors.Wrap(err, "sweeping subscriptions")
		}
		usr, err := svc.accounts.GetByID(ctx, sub.UserID)
		if err != nil {
			fail(sub, ActionWarn, errors.Wrap(err, "finding owner"))
			continue
		}
		messages = append(messages, svc.notice(usr, sub, "Your subscription has expired", "subscription_warning"))
		report.Warned = append(report.Warned, sub.ID)
		sweepTotal.WithLabelValues(ActionWarn).Inc()
	}

	for _, sub := range due.ToDowngrade {
		if err = ctx.Err(); err != nil {
			return report, errors.Wrap(err, "sweeping subscriptions")
		}
		msg, err := svc.downgrade(ctx, sub, now)
		if err != nil {
			fail(sub, ActionDowngrade, err)
			continue
		}
		if msg != nil {
			messages = append(messages, msg)
		}
		report.Downgraded = append(report.Downgraded, sub.ID)
		sweepTotal.WithLabelValues(ActionDowngrade).Inc()
	}

	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
	sweepLastRun.Set(float64(now.Unix()))
	svc.logger.Info(fmt.Sprintf(
		"subscription sweep: %d warned, %d downgraded, %d skipped, %d failed",
		len(report.Warned), len(report.Downgraded), len(report.Skipped), len(report.Failed),
	))
	return report, nil
}

// downgrade revokes the premium role before marking the subscription expired: if the status write
// fails, the next sweep finds the subscription due again and the revocation is a no-op.
func (svc *service) downgrade(ctx context.Context, sub Subscription, now time.Time) (*core.EmailMessage, error) {
	ownerFound := true
	if err := svc.revokePremium(ctx, sub, now); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return nil, errors.Wrap(err, "revoking premium role")
		}
		ownerFound = false
	}

	sub.Status = StatusExpired
	sub.UpdatedAt = now
	if _, err := svc.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, errors.Wrap(err, "marking subscription expired")
	}

	if !ownerFound {
		return nil, nil
	}
	usr, err := svc.accounts.GetByID(ctx, sub.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "finding owner")
	}
	return svc.notice(usr, sub, "Your premium access has ended", "subscription_downgraded"), nil
}

func (svc *service) notice(usr user.User, sub Subscription, subject, tmpl string) *core.EmailMessage {
	name := usr.Name
	if name == "" {
		name = usr.Username
	}
	var to []mail.Address
	if usr.Email != "" {
		to = append(to, mail.Address{Name: name, Address: usr.Email})
	}
	return &core.EmailMessage{
		To:           to,
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: NoticeData{
			Name:          name,
			Plan:          sub.Plan,
			EndDate:       *sub.EndDate,
			DowngradeDate: sub.EndDate.Add(DowngradeAfter),
		},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
