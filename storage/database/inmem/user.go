package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/user"
)

type userRepository struct {
	db   *userTable
	subs *subscriptionTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db.user, subs: db.subscription}
}

func (repo *userRepository) query() []user.User {
	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		users = append(users, copyUser(*u))
	}
	return users
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}

	for _, usr := range repo.db.table {
		if excluded[usr.ID] {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	usr.ID = uuid.New().String()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	stored := copyUser(usr)
	repo.db.table[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.query() {
		if filter == nil || matchUser(u, filter) {
			users = append(users, u)
		}
	}

	compare := func(i, j int, field string) (int, bool) {
		a, b := users[i], users[j]
		switch field {
		case "id":
			return compareStrings(a.ID, b.ID), true
		case "name":
			return compareStrings(a.Name, b.Name), true
		case "username":
			return compareStrings(a.Username, b.Username), true
		case "email":
			return compareStrings(a.Email, b.Email), true
		case "is_active":
			return compareBools(a.IsActive != nil && *a.IsActive, b.IsActive != nil && *b.IsActive), true
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt), true
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt), true
		case "last_login":
			return compareTimes(a.LastLogin, b.LastLogin), true
		}
		return 0, false
	}
	sort.Slice(users, func(i, j int) bool { return less(ordering, compare, i, j) })
	return users, nil
}

func matchUser(u user.User, filter *user.QueryFilter) bool {
	// users with search keyword matching any Name, Username or Email
	if filter.Search != "" &&
		!containsFold(u.Username, filter.Search) &&
		!containsFold(u.Email, filter.Search) &&
		!containsFold(u.Name, filter.Search) {
		return false
	}
	// users with any role starting with any of the specified roles
	if len(filter.Roles) > 0 {
		found := false
		for _, r := range filter.Roles {
			if u.RoleStartsWith(r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && (u.IsActive == nil || *u.IsActive != *filter.IsActive) {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(u *user.User) bool
	switch {
	case filter.Username != "":
		match = func(u *user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u *user.User) bool { return u.Email == filter.Email }
	case len(filter.UsernameOrEmail) > 0:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		if uname == "" {
			return user.User{}, user.ErrNotFound
		}
		match = func(u *user.User) bool { return u.Username == uname || u.Email == email }
	default:
		return user.User{}, user.ErrNotFound
	}

	for _, usr := range repo.db.table {
		if match(usr) {
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	stored := copyUser(usr)
	repo.db.table[usr.ID] = &stored
	return usr, nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

// DeleteUsersByID also deletes the subscriptions of the deleted users.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.subs.Lock()
	defer repo.subs.Unlock()

	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			deleted[id] = true
		}
	}
	for subID, sub := range repo.subs.table {
		if deleted[sub.UserID] {
			delete(repo.subs.table, subID)
		}
	}
	return len(deleted), nil
}

func copyUser(u user.User) user.User {
	u.Roles = copyStrings(u.Roles)
	if u.PasswordHash != nil {
		u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	}
	if u.IsActive != nil {
		active := *u.IsActive
		u.IsActive = &active
	}
	return u
}
