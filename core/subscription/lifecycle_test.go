package subscription

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2021, time.March, 10, 12, 0, 0, 0, time.UTC)

func newSub(id, status string, end *time.Time) Subscription {
	return Subscription{
		ID:        id,
		UserID:    "u-" + id,
		Plan:      "premium",
		Status:    status,
		StartDate: testNow.Add(-90 * Day),
		EndDate:   end,
	}
}

func ago(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscription
		want    LifecycleState
		wantErr bool
	}{
		{name: "no end date", sub: newSub("1", StatusActive, nil), want: StateUnlimited},
		{name: "no end date (expired status)", sub: newSub("2", StatusExpired, nil), want: StateUnlimited},
		{name: "ends in the future", sub: newSub("3", StatusActive, ago(-Day)), want: StateActive},
		{name: "ends now", sub: newSub("4", StatusActive, ago(0)), want: StateActive},
		{name: "future end (cancelled status)", sub: newSub("5", StatusCancelled, ago(-Day)), want: StateActive},
		{name: "ended 1 hour ago", sub: newSub("6", StatusActive, ago(time.Hour)), want: StateGracePeriod},
		{name: "ended 1 day 23 hours ago", sub: newSub("7", StatusActive, ago(Day+23*time.Hour)), want: StateGracePeriod},
		{name: "ended 2 days ago", sub: newSub("8", StatusActive, ago(2*Day)), want: StateNeedsWarning},
		{name: "ended 3 days ago", sub: newSub("9", StatusActive, ago(3*Day)), want: StateNeedsWarning},
		{name: "ended 4 days 23 hours ago", sub: newSub("10", StatusActive, ago(5*Day-time.Hour)), want: StateNeedsWarning},
		{name: "ended 5 days ago", sub: newSub("11", StatusActive, ago(5*Day)), want: StateNeedsDowngrade},
		{name: "ended 6 days ago", sub: newSub("12", StatusActive, ago(6*Day)), want: StateNeedsDowngrade},
		{name: "ended 6 days ago (expired status)", sub: newSub("13", StatusExpired, ago(6*Day)), want: StateExpiredAcknowledged},
		{name: "ended 1 hour ago (cancelled status)", sub: newSub("14", StatusCancelled, ago(time.Hour)), want: StateExpiredAcknowledged},
		{name: "ended 3 days ago (pending status)", sub: newSub("15", StatusPending, ago(3*Day)), want: StateNeedsWarning},
		{name: "ended 6 days ago (pending status)", sub: newSub("16", StatusPending, ago(6*Day)), want: StateLapsed},
		{name: "no start date", sub: Subscription{ID: "17", Status: StatusActive, EndDate: ago(Day)}, wantErr: true},
		{name: "end before start", sub: newSub("18", StatusActive, ago(100*Day)), wantErr: true},
		{name: "unknown status", sub: newSub("19", "paused", ago(Day)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.sub, testNow)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("Classify() error = %v, want ErrInvalidInput", err)
				}
				if got != StateInvalid {
					t.Errorf("Classify() = %v, want %v", got, StateInvalid)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassify_deterministic(t *testing.T) {
	sub := newSub("1", StatusActive, ago(3*Day))
	first, _ := Classify(sub, testNow)
	for i := 0; i < 10; i++ {
		if got, _ := Classify(sub, testNow); got != first {
			t.Fatalf("Classify() = %v, want %v", got, first)
		}
	}
}

func TestClassify_monotonicDecay(t *testing.T) {
	rank := map[LifecycleState]int{
		StateActive:         0,
		StateGracePeriod:    1,
		StateNeedsWarning:   2,
		StateNeedsDowngrade: 3,
		StateLapsed:         3,
	}

	end := testNow
	for _, status := range []string{StatusActive, StatusPending} {
		t.Run(status, func(t *testing.T) {
			sub := newSub("1", status, &end)
			prev := -1
			for now := end.Add(-Day); now.Before(end.Add(10 * Day)); now = now.Add(30 * time.Minute) {
				state, err := Classify(sub, now)
				if err != nil {
					t.Fatalf("Classify() unexpected error = %v", err)
				}
				r, ok := rank[state]
				if !ok {
					t.Fatalf("Classify() = %v at %v: unexpected state", state, now)
				}
				if r < prev {
					t.Fatalf("Classify() moved backwards to %v at %v", state, now)
				}
				prev = r
			}
		})
	}
}

func TestDueActions(t *testing.T) {
	warn1 := newSub("w1", StatusActive, ago(3*Day))
	grace := newSub("g", StatusActive, ago(Day))
	down1 := newSub("d1", StatusActive, ago(6*Day))
	expired := newSub("e", StatusExpired, ago(6*Day))
	broken := newSub("b", StatusActive, ago(100*Day))
	warn2 := newSub("w2", StatusPending, ago(4*Day))
	unlimited := newSub("u", StatusActive, nil)
	down2 := newSub("d2", StatusActive, ago(30*Day))
	noStart := Subscription{ID: "ns", Status: StatusActive, EndDate: ago(Day)}

	subs := []Subscription{warn1, grace, down1, expired, broken, warn2, unlimited, down2, noStart}
	due := DueActions(subs, testNow)

	assert.Equal(t, []Subscription{warn1, warn2}, due.ToWarn)
	assert.Equal(t, []Subscription{down1, down2}, due.ToDowngrade)
	if assert.Len(t, due.Skipped, 2) {
		assert.Equal(t, broken, due.Skipped[0].Subscription)
		assert.Equal(t, noStart, due.Skipped[1].Subscription)
		for _, sk := range due.Skipped {
			assert.True(t, errors.Is(sk.Err, ErrInvalidInput))
		}
	}

	// disjoint
	seen := make(map[string]bool)
	for _, s := range due.ToWarn {
		seen[s.ID] = true
	}
	for _, s := range due.ToDowngrade {
		if seen[s.ID] {
			t.Errorf("subscription %s is both in ToWarn and ToDowngrade", s.ID)
		}
	}
}

func TestDueActions_empty(t *testing.T) {
	due := DueActions(nil, testNow)
	assert.Empty(t, due.ToWarn)
	assert.Empty(t, due.ToDowngrade)
	assert.Empty(t, due.Skipped)
}

func TestLifecycleState_MarshalText(t *testing.T) {
	b, err := StateNeedsDowngrade.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "needs_downgrade", string(b))
	assert.Equal(t, "invalid", LifecycleState(42).String())
}
