package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/user"
	inmemdb "github.com/trezcool/jamii/storage/database/inmem"
	testutil "github.com/trezcool/jamii/tests"
)

func newService(t *testing.T) (user.ServiceInterface, user.Repository) {
	t.Helper()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	return user.NewService(repo), repo
}

func TestService_CheckUniqueness(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "User", "user", "user@test.tz", "", nil, true)

	tests := []struct {
		name      string
		uname     string
		email     string
		excluded  []user.User
		wantField string
	}{
		{name: "free", uname: "other", email: "other@test.tz"},
		{name: "username taken", uname: "user", email: "other@test.tz", wantField: "username"},
		{name: "email taken", uname: "other", email: "user@test.tz", wantField: "email"},
		{name: "excluded", uname: "user", email: "user@test.tz", excluded: []user.User{usr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CheckUniqueness(ctx, tt.uname, tt.email, tt.excluded...)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			verr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

func TestService_Create(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{
		Name: "New", Username: "new", Email: "new@test.tz", Password: "Sup3r-s3cret", Roles: []string{user.RoleMember},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	require.NotNil(t, usr.IsActive)
	assert.True(t, *usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Sup3r-s3cret"))

	got, err := svc.GetByUsernameOrEmail(ctx, " NEW@test.tz ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
}

func TestService_Roles(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "User", "user", "user@test.tz", "", []string{user.RoleMember}, true)

	t.Run("grant", func(t *testing.T) {
		got, err := svc.GrantRole(ctx, usr.ID, user.RoleMemberPremium)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleMember, user.RoleMemberPremium}, got.Roles)

		// idempotent
		got, err = svc.GrantRole(ctx, usr.ID, user.RoleMemberPremium)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleMember, user.RoleMemberPremium}, got.Roles)
	})

	t.Run("grant unknown role", func(t *testing.T) {
		_, err := svc.GrantRole(ctx, usr.ID, "member:gold")
		assert.Equal(t, user.ErrInvalidRole, errors.Cause(err))
	})

	t.Run("revoke", func(t *testing.T) {
		got, err := svc.RevokeRole(ctx, usr.ID, user.RoleMemberPremium)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleMember}, got.Roles)

		got, err = svc.RevokeRole(ctx, usr.ID, user.RoleMemberPremium)
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleMember}, got.Roles)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.GrantRole(ctx, "missing", user.RoleMemberPremium)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
		_, err = svc.RevokeRole(ctx, "missing", user.RoleMemberPremium)
		assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	})
}

func TestService_Delete(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	u1 := testutil.CreateUser(t, repo, "One", "one", "one@test.tz", "", nil, true)
	u2 := testutil.CreateUser(t, repo, "Two", "two", "two@test.tz", "", nil, true)

	require.NoError(t, svc.Delete(ctx, u1.ID, "missing"))

	users, err := svc.Query(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, u2.ID, users[0].ID)
}
