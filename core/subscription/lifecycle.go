package subscription

import (
	"time"

	"github.com/pkg/errors"
)

const (
	Day = 24 * time.Hour

	// WarningAfter is how long after its end date an active subscription gets a warning notice.
	WarningAfter = 2 * Day
	// DowngradeAfter is how long after its end date an active subscription loses the premium role.
	DowngradeAfter = 5 * Day
)

// ErrInvalidInput marks a malformed subscription record.
var ErrInvalidInput = errors.New("invalid subscription")

// LifecycleState is the temporal standing of a subscription relative to its end date.
// It is always computed, never stored.
type LifecycleState int

const (
	StateInvalid LifecycleState = iota
	StateUnlimited
	StateActive
	StateGracePeriod
	StateNeedsWarning
	StateNeedsDowngrade
	StateLapsed
	StateExpiredAcknowledged
)

var stateNames = map[LifecycleState]string{
	StateInvalid:             "invalid",
	StateUnlimited:           "unlimited",
	StateActive:              "active",
	StateGracePeriod:         "grace_period",
	StateNeedsWarning:        "needs_warning",
	StateNeedsDowngrade:      "needs_downgrade",
	StateLapsed:              "lapsed",
	StateExpiredAcknowledged: "expired_acknowledged",
}

func (s LifecycleState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[StateInvalid]
}

func (s LifecycleState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DaysSinceEnd returns the whole days elapsed between end and now, floored.
// 1 day 23 hours is 1 day.
func DaysSinceEnd(end, now time.Time) int64 {
	return int64(now.Sub(end) / Day)
}

func isValidStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Classify computes the lifecycle state of sub at now.
// It fails with ErrInvalidInput when the start date is missing, the end date precedes the
// start date or the status is unknown.
func Classify(sub Subscription, now time.Time) (LifecycleState, error) {
	if sub.StartDate.IsZero() {
		return StateInvalid, errors.WithMessage(ErrInvalidInput, "start date is required")
	}
	if !isValidStatus(sub.Status) {
		return StateInvalid, errors.WithMessagef(ErrInvalidInput, "unknown status %q", sub.Status)
	}
	if sub.EndDate == nil {
		return StateUnlimited, nil
	}

	end := *sub.EndDate
	if end.Before(sub.StartDate) {
		return StateInvalid, errors.WithMessagef(
			ErrInvalidInput, "end date %s is before start date %s",
			end.Format(time.RFC3339), sub.StartDate.Format(time.RFC3339),
		)
	}
	if !end.Before(now) {
		return StateActive, nil
	}
	if sub.Status == StatusExpired || sub.Status == StatusCancelled {
		return StateExpiredAcknowledged, nil
	}

	elapsed := time.Duration(DaysSinceEnd(end, now)) * Day
	switch {
	case elapsed < WarningAfter:
		return StateGracePeriod, nil
	case elapsed < DowngradeAfter:
		return StateNeedsWarning, nil
	case sub.Status == StatusActive:
		return StateNeedsDowngrade, nil
	default: // pending: it never held the premium role
		return StateLapsed, nil
	}
}

type (
	// Skipped is a subscription Classify rejected, along with the reason.
	Skipped struct {
		Subscription Subscription
		Err          error
	}

	// Due partitions a batch of subscriptions by the housekeeping action they need.
	// Every list follows input order.
	Due struct {
		ToWarn      []Subscription
		ToDowngrade []Subscription
		Skipped     []Skipped
	}
)

// DueActions classifies every subscription of a consistent snapshot at now.
// Malformed records are reported in Skipped and never abort the batch.
func DueActions(subs []Subscription, now time.Time) Due {
	var due Due
	for _, sub := range subs {
		state, err := Classify(sub, now)
		if err != nil {
			due.Skipped = append(due.Skipped, Skipped{Subscription: sub, Err: err})
			continue
		}
		switch state {
		case StateNeedsWarning:
			due.ToWarn = append(due.ToWarn, sub)
		case StateNeedsDowngrade:
			due.ToDowngrade = append(due.ToDowngrade, sub)
		}
	}
	return due
}
