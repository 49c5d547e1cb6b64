package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/subscription"
)

type subscriptionRepository struct {
	db *subscriptionTable
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) *subscriptionRepository {
	return &subscriptionRepository{db: db.subscription}
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = uuid.New().String()
	stored := copySubscription(sub)
	repo.db.table[sub.ID] = &stored
	return sub, nil
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, filter *subscription.QueryFilter, ordering []core.DBOrdering) ([]subscription.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subs := make([]subscription.Subscription, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if filter == nil || matchSubscription(*s, filter) {
			subs = append(subs, copySubscription(*s))
		}
	}

	compare := func(i, j int, field string) (int, bool) {
		a, b := subs[i], subs[j]
		switch field {
		case "id":
			return compareStrings(a.ID, b.ID), true
		case "plan":
			return compareStrings(a.Plan, b.Plan), true
		case "status":
			return compareStrings(a.Status, b.Status), true
		case "start_date":
			return compareTimes(a.StartDate, b.StartDate), true
		case "end_date":
			// NULLS LAST, as postgres does for ascending orders
			switch {
			case a.EndDate == nil && b.EndDate == nil:
				return 0, true
			case a.EndDate == nil:
				return 1, true
			case b.EndDate == nil:
				return -1, true
			}
			return compareTimes(*a.EndDate, *b.EndDate), true
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt), true
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt), true
		}
		return 0, false
	}
	sort.Slice(subs, func(i, j int) bool { return less(ordering, compare, i, j) })
	return subs, nil
}

func matchSubscription(s subscription.Subscription, filter *subscription.QueryFilter) bool {
	if filter.UserID != "" && s.UserID != filter.UserID {
		return false
	}
	if filter.Plan != "" && s.Plan != filter.Plan {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if s.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.HasEndDate != nil && (s.EndDate != nil) != *filter.HasEndDate {
		return false
	}
	if !filter.EndFrom.IsZero() && (s.EndDate == nil || s.EndDate.Before(filter.EndFrom)) {
		return false
	}
	if !filter.EndTo.IsZero() && (s.EndDate == nil || s.EndDate.After(filter.EndTo)) {
		return false
	}
	return true
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.table[id]; ok {
		return copySubscription(*sub), nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[sub.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	stored := copySubscription(sub)
	repo.db.table[sub.ID] = &stored
	return sub, nil
}

func (repo *subscriptionRepository) DeleteSubscriptionsByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func copySubscription(s subscription.Subscription) subscription.Subscription {
	if s.EndDate != nil {
		end := *s.EndDate
		s.EndDate = &end
	}
	return s
}
