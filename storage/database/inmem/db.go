// Package inmemdb keeps every repository in process memory. It backs the tests and the API when
// no database is configured.
package inmemdb

import (
	"strings"
	"sync"
	"time"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/forum"
	"github.com/trezcool/jamii/core/subscription"
	"github.com/trezcool/jamii/core/user"
)

type (
	DB struct {
		user         *userTable
		subscription *subscriptionTable
		forum        *forumTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	subscriptionTable struct {
		sync.RWMutex
		table map[string]*subscription.Subscription
	}

	forumTables struct {
		sync.RWMutex
		posts   map[string]*forum.Post
		replies map[string]*forum.Reply
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		subscription: &subscriptionTable{table: make(map[string]*subscription.Subscription)},
		forum: &forumTables{
			posts:   make(map[string]*forum.Post),
			replies: make(map[string]*forum.Reply),
		},
	}
}

// comparer returns <0, 0 or >0 when a sorts before, with or after b on a field; ok is false for
// unknown fields.
type comparer func(i, j int, field string) (cmp int, ok bool)

// less orders rows by the given orderings, then by creation time and id.
func less(ordering []core.DBOrdering, compare comparer, i, j int) bool {
	for _, ord := range ordering {
		cmp, ok := compare(i, j, ord.Field)
		if !ok || cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	cmp, _ := compare(i, j, "created_at")
	if cmp == 0 {
		cmp, _ = compare(i, j, "id")
	}
	return cmp < 0
}

func compareStrings(a, b string) int {
	return strings.Compare(a, b)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}
