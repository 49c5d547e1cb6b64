package subscription

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/jamii/core"
)

// Statuses
const (
	StatusActive    = "active"
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

var AllStatuses = []string{StatusActive, StatusPending, StatusCancelled, StatusExpired}

// Subscription grants its owner the premium role while it runs.
// A nil EndDate means the subscription never ends.
type Subscription struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	StartDate time.Time  `json:"start_date"` // UTC
	EndDate   *time.Time `json:"end_date"`   // UTC
	CreatedAt time.Time  `json:"created_at"` // UTC
	UpdatedAt time.Time  `json:"updated_at"` // UTC
}

func (s Subscription) HasEnded(now time.Time) bool {
	return s.EndDate != nil && s.EndDate.Before(now)
}

// Evaluation is a subscription along with its lifecycle state at evaluation time.
type Evaluation struct {
	Subscription
	State LifecycleState `json:"lifecycle_state"`
	Error string         `json:"error,omitempty"`
}

// NewSubscription contains information needed to create a new Subscription.
type NewSubscription struct {
	UserID    string     `json:"user_id" validate:"required"`
	Plan      string     `json:"plan" validate:"required,notblank"`
	Status    string     `json:"status" validate:"required,substatus"`
	StartDate time.Time  `json:"start_date" validate:"required"`
	EndDate   *time.Time `json:"end_date"`
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.UserID = core.CleanString(ns.UserID)
	ns.Plan = core.CleanString(ns.Plan)
	ns.Status = core.CleanString(ns.Status, true /* lower */)
	return validate.Struct(ns)
}

// UpdateSubscription defines what information may be provided to modify an existing Subscription.
// Blank fields keep their current value; Unlimited drops the end date.
type UpdateSubscription struct {
	Plan      string     `json:"plan"`
	Status    string     `json:"status" validate:"omitempty,substatus"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Unlimited bool       `json:"unlimited"`
}

func (us *UpdateSubscription) Validate(orig Subscription, validate *validator.Validate) error {
	if plan := core.CleanString(us.Plan); plan != "" {
		us.Plan = plan
	} else {
		us.Plan = orig.Plan
	}

	if status := core.CleanString(us.Status, true /* lower */); status != "" {
		us.Status = status
	} else {
		us.Status = orig.Status
	}

	if us.StartDate.IsZero() {
		us.StartDate = orig.StartDate
	}

	if us.Unlimited {
		us.EndDate = nil
	} else if us.EndDate == nil {
		us.EndDate = orig.EndDate
	}

	return validate.Struct(us)
}

type QueryFilter struct {
	UserID     string    `query:"user_id"`
	Plan       string    `query:"plan"`
	Statuses   []string  `query:"status"`
	HasEndDate *bool     `query:"has_end_date"`
	EndFrom    time.Time `query:"end_from"`
	EndTo      time.Time `query:"end_to"`
}

func (qf *QueryFilter) Clean() {
	qf.UserID = core.CleanString(qf.UserID)
	qf.Plan = core.CleanString(qf.Plan)
}

type (
	// SweepItem reports a subscription the sweep could not act on.
	SweepItem struct {
		SubscriptionID string `json:"subscription_id"`
		Action         string `json:"action"`
		Error          string `json:"error"`
	}

	// SweepReport summarizes one expiry sweep.
	SweepReport struct {
		RanAt      time.Time   `json:"ran_at"`
		Warned     []string    `json:"warned"`
		Downgraded []string    `json:"downgraded"`
		Skipped    []SweepItem `json:"skipped"`
		Failed     []SweepItem `json:"failed"`
	}

	// NoticeData feeds the subscription email templates.
	NoticeData struct {
		Name          string
		Plan          string
		EndDate       time.Time
		DowngradeDate time.Time
	}
)

// Service is the subscription use-case surface consumed by the apps.
type Service interface {
	Create(ctx context.Context, ns NewSubscription) (Subscription, error)
	Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	Update(ctx context.Context, sub Subscription, us UpdateSubscription) (Subscription, error)
	Delete(ctx context.Context, ids ...string) error
	Evaluate(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, now time.Time) ([]Evaluation, error)
	DueActions(ctx context.Context, now time.Time) (Due, error)
	Sweep(ctx context.Context, now time.Time) (SweepReport, error)
}
