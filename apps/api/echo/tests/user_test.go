package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/jamii/apps/api/echo"
	"github.com/trezcool/jamii/core/user"
	testutil "github.com/trezcool/jamii/tests"
)

var base = time.Date(2021, time.March, 1, 8, 0, 0, 0, time.UTC)

type users struct {
	amani, baraka, chausiku, admin, owner user.User
}

func createUsers(t *testing.T, a app) users {
	t.Helper()
	return users{
		amani:    testutil.CreateUser(t, a.usrRepo, "Amani", "amani1", "amani@test.tz", "Nyumb@ni42", []string{user.RoleMember}, true, base.Add(1*time.Hour)),
		baraka:   testutil.CreateUser(t, a.usrRepo, "Baraka", "baraka", "baraka@test.tz", "", []string{user.RoleMember, user.RoleMemberPremium}, true, base.Add(2*time.Hour)),
		chausiku: testutil.CreateUser(t, a.usrRepo, "Chausiku", "chausiku", "chausiku@test.tz", "Us1ku#Mwema", []string{user.RoleMember}, false, base.Add(3*time.Hour)),
		admin:    testutil.CreateUser(t, a.usrRepo, "Admin", "admin_1", "admin@test.tz", "", []string{user.RoleAdmin}, true, base.Add(4*time.Hour)),
		owner:    testutil.CreateUser(t, a.usrRepo, "Owner", "owner1", "owner@test.tz", "", []string{user.RoleAdminOwner}, true, base.Add(5*time.Hour)),
	}
}

func Test_userApi_login(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)

	reqMsg := "this field is required"
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{}),
			wantData: marchallObj(t, echoapi.LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest, wantData: failed,
			body: marchallObj(t, echoapi.LoginRequest{Username: "lol", Password: "Nyumb@ni42"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest, wantData: failed,
			body: marchallObj(t, echoapi.LoginRequest{Username: u.amani.Username, Password: "lol"}),
		},
		{
			name: "inactive user", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Username: u.chausiku.Email, Password: "Us1ku#Mwema"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "by username", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: "  AMANI1 ", Password: "Nyumb@ni42"}),
		},
		{
			name: "by email", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Username: u.amani.Email, Password: "Nyumb@ni42"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)

				usr, err := a.usrRepo.GetUser(context.Background(), user.GetFilter{ID: u.amani.ID})
				require.NoError(t, err)
				assert.False(t, usr.LastLogin.IsZero(), "last login not set")
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)

	path := func(search, ordering string, createdFrom, createdTo time.Time, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		if !createdFrom.IsZero() {
			v.Add("created_from", createdFrom.Format(time.RFC3339))
		}
		if !createdTo.IsZero() {
			v.Add("created_to", createdTo.Format(time.RFC3339))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return "/v1/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }
	var zero time.Time

	adminToken := a.token(t, u.admin)
	empty := marchallList(t)

	tests := []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/v1/users", token: a.token(t, u.amani), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "get all", path: "/v1/users", token: adminToken,
			wantData: marchallList(t, u.amani, u.baraka, u.chausiku, u.admin, u.owner),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", "", zero, zero, nil), token: adminToken, wantData: empty},
		{name: "search=BARAK", path: path("BARAK", "", zero, zero, nil), token: adminToken, wantData: marchallList(t, u.baraka)},
		{name: "search by email", path: path("chausiku@", "", zero, zero, nil), token: adminToken, wantData: marchallList(t, u.chausiku)},
		{name: "role (unknown)", path: path("", "", zero, zero, nil, "lol"), token: adminToken, wantData: empty},
		{
			name: "role=member:", path: path("", "", zero, zero, nil, user.RoleMember),
			token: adminToken, wantData: marchallList(t, u.amani, u.baraka, u.chausiku),
		},
		{
			name: "role=member:premium", path: path("", "", zero, zero, nil, user.RoleMemberPremium),
			token: adminToken, wantData: marchallList(t, u.baraka),
		},
		{
			name: "role=admin:", path: path("", "", zero, zero, nil, user.RoleAdmin),
			token: adminToken, wantData: marchallList(t, u.admin, u.owner),
		},
		{
			name: "role=member:premium,admin:owner", path: path("", "", zero, zero, nil, user.RoleMemberPremium, user.RoleAdminOwner),
			token: adminToken, wantData: marchallList(t, u.baraka, u.owner),
		},
		{name: "is_active=false", path: path("", "", zero, zero, bPtr(false)), token: adminToken, wantData: marchallList(t, u.chausiku)},
		{
			name: "created_from", path: path("", "", base.Add(4*time.Hour), zero, nil),
			token: adminToken, wantData: marchallList(t, u.admin, u.owner),
		},
		{
			name: "created_from (other TZ)", path: path("", "", base.Add(4*time.Hour).In(time.FixedZone("EAT", 3*60*60)), zero, nil),
			token: adminToken, wantData: marchallList(t, u.admin, u.owner),
		},
		{
			name: "created_from - created_to", path: path("", "", base.Add(2*time.Hour), base.Add(4*time.Hour), nil),
			token: adminToken, wantData: marchallList(t, u.baraka, u.chausiku, u.admin),
		},
		{name: "created_from - created_to (empty)", path: path("", "", base.Add(6*time.Hour), base.Add(9*time.Hour), nil), token: adminToken, wantData: empty},
		{
			name: "all combo", path: path("a", "", base, base.Add(3*time.Hour), bPtr(true), user.RoleMember),
			token: adminToken, wantData: marchallList(t, u.amani, u.baraka),
		},
		// ordering
		{
			name: "order by -created_at", path: path("", "-created_at", zero, zero, nil), token: adminToken,
			wantData: marchallList(t, u.owner, u.admin, u.chausiku, u.baraka, u.amani),
		},
		{
			name: "order by -name", path: path("", "-name", zero, zero, nil), token: adminToken,
			wantData: marchallList(t, u.owner, u.chausiku, u.baraka, u.amani, u.admin),
		},
		{
			name: "order by is_active,-created_at", path: path("", "is_active,-created_at", zero, zero, nil), token: adminToken,
			wantData: marchallList(t, u.chausiku, u.owner, u.admin, u.baraka, u.amani),
		},
		{
			name: "unknown ordering field is ignored", path: path("", "lol", zero, zero, nil), token: adminToken,
			wantData: marchallList(t, u.amani, u.baraka, u.chausiku, u.admin, u.owner),
		},
		// filtering & ordering
		{
			name: "filtering & ordering", path: path("", "-username", zero, zero, nil, user.RoleMember), token: adminToken,
			wantData: marchallList(t, u.chausiku, u.baraka, u.amani),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}

func Test_userApi_roles(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)

	tests := []httpTest{
		{name: "admin required", token: a.token(t, u.baraka), wantCode: http.StatusForbidden},
		{name: "all roles", token: a.token(t, u.admin), wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/users/roles"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   u.amani.ID,
			Audience:  "Community",
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * a.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     u.amani.Username,
		IsMember:     u.amani.IsMember(),
		Roles:        u.amani.Roles,
	}
	unrefreshableToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, unrefreshableClaims).SignedString([]byte(a.conf.SecretKey))
	require.NoError(t, err)

	ghost := u.baraka
	ghost.ID = "ghost"

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "forged token", token: unrefreshableToken + "x", wantCode: http.StatusUnauthorized},
		{name: "unknown user", token: a.token(t, ghost), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "inactive user not allowed", token: a.token(t, u.chausiku), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "token refreshed", token: a.token(t, u.amani), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				unmarshal(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func Test_userApi_create(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)
	adminToken := a.token(t, u.admin)

	reqMsg := "this field is required"
	eitherMsg := "one of username or email is required"
	pwd := "Mt@Kili2021"

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "admin required", token: a.token(t, u.baraka), wantCode: http.StatusForbidden},
		{
			name: "required fields", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{}),
			wantData: marchallObj(t, map[string]string{
				"name":             reqMsg,
				"username":         eitherMsg,
				"email":            eitherMsg,
				"password":         "password must contain at least 8 characters",
				"password_confirm": reqMsg,
			}),
		},
		{
			name: "invalid fields", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{
				Name: "Zuri", Username: "zu-ri!", Email: "lol", Password: pwd, PasswordConfirm: "lol",
				Roles: []string{"lol"},
			}),
			wantData: marchallObj(t, map[string]string{
				"username":         "only alphanumeric characters and underscores are allowed",
				"email":            "email must be a valid email address",
				"password_confirm": "password_confirm must be equal to Password",
				"roles":            "invalid roles",
			}),
		},
		{
			name: "duplicate username", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{Name: "Zuri", Username: "AMANI1", Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "duplicate email", token: adminToken, wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{Name: "Zuri", Email: "Baraka@Test.tz", Password: pwd, PasswordConfirm: pwd}),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "role above own", token: adminToken, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewUser{Name: "Zuri", Username: "zuri_2", Password: pwd, PasswordConfirm: pwd, Roles: []string{user.RoleAdminOwner}}),
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "created", token: adminToken, wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{Name: " Zuri ", Username: "Zuri_2", Email: "zuri@test.tz", Password: pwd, PasswordConfirm: pwd, Roles: []string{user.RoleMember}}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users/register"

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusCreated {
				var got user.User
				unmarshal(t, rec, &got)
				assert.NotEmpty(t, got.ID)
				assert.Equal(t, "Zuri", got.Name)
				assert.Equal(t, "zuri_2", got.Username)
				assert.Equal(t, []string{user.RoleMember}, got.Roles)

				stored, err := a.usrRepo.GetUser(context.Background(), user.GetFilter{ID: got.ID})
				require.NoError(t, err)
				assert.NoError(t, stored.CheckPassword(pwd))
			}
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)
	notFound := marchallObj(t, httpErr{Error: "not found"})

	tests := []httpTest{
		{name: "auth required", path: "/v1/users/" + u.amani.ID, wantCode: http.StatusUnauthorized},
		{name: "self", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusOK, wantData: marchallObj(t, u.amani)},
		{name: "other user hidden", path: "/v1/users/" + u.baraka.ID, token: a.token(t, u.amani), wantCode: http.StatusNotFound, wantData: notFound},
		{name: "admin", path: "/v1/users/" + u.baraka.ID, token: a.token(t, u.admin), wantCode: http.StatusOK, wantData: marchallObj(t, u.baraka)},
		{name: "unknown", path: "/v1/users/lol", token: a.token(t, u.admin), wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}

func Test_userApi_update(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)
	bPtr := func(b bool) *bool { return &b }

	type check func(t *testing.T, got user.User)
	tests := []httpTest{
		{
			name: "member cannot change roles", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusForbidden,
			body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleMemberPremium}}),
		},
		{
			name: "member cannot change username", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusForbidden,
			body: marchallObj(t, user.UpdateUser{Username: "amani_2"}),
		},
		{
			name: "member cannot update others", path: "/v1/users/" + u.baraka.ID, token: a.token(t, u.amani), wantCode: http.StatusNotFound,
			body: marchallObj(t, user.UpdateUser{Name: "Lol"}),
		},
		{
			name: "self", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusOK,
			body: marchallObj(t, user.UpdateUser{Name: " Amani Juma "}),
			extra: check(func(t *testing.T, got user.User) {
				assert.Equal(t, "Amani Juma", got.Name)
				assert.Equal(t, u.amani.Username, got.Username)
				assert.Equal(t, u.amani.Roles, got.Roles)
			}),
		},
		{
			name: "weak password", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.UpdateUser{Password: "12345678", PasswordConfirm: "12345678"}),
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "admin cannot grant a role above their own", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.admin), wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdminOwner}}),
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{
			name: "admin", path: "/v1/users/" + u.baraka.ID, token: a.token(t, u.admin), wantCode: http.StatusOK,
			body: marchallObj(t, user.UpdateUser{IsActive: bPtr(false), Roles: []string{user.RoleMember}, Email: "BARAKA2@test.tz"}),
			extra: check(func(t *testing.T, got user.User) {
				require.NotNil(t, got.IsActive)
				assert.False(t, *got.IsActive)
				assert.Equal(t, []string{user.RoleMember}, got.Roles)
				assert.Equal(t, "baraka2@test.tz", got.Email)
				assert.Equal(t, u.baraka.Name, got.Name)
			}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut

		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt)
			checkCodeAndData(t, tt, rec)

			if fn, ok := tt.extra.(check); ok {
				var got user.User
				unmarshal(t, rec, &got)
				fn(t, got)
			}
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)
	adminToken := a.token(t, u.admin)

	tests := []httpTest{
		{name: "admin required", path: "/v1/users/" + u.amani.ID, token: a.token(t, u.amani), wantCode: http.StatusForbidden},
		{name: "cannot delete self", path: "/v1/users/" + u.admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete a higher role", path: "/v1/users/" + u.owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "unknown", path: "/v1/users/lol", token: adminToken, wantCode: http.StatusNotFound},
		{name: "deleted", path: "/v1/users/" + u.amani.ID, token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}

	_, err := a.usrRepo.GetUser(context.Background(), user.GetFilter{ID: u.amani.ID})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = a.usrRepo.GetUser(context.Background(), user.GetFilter{ID: u.owner.ID})
	assert.NoError(t, err)
}

func Test_userApi_destroyMultiple(t *testing.T) {
	a := setup(t)
	u := createUsers(t, a)
	adminToken := a.token(t, u.admin)

	path := func(ids ...string) string {
		v := make(url.Values)
		for _, id := range ids {
			v.Add("id", id)
		}
		return "/v1/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "admin required", path: path(u.amani.ID), token: a.token(t, u.baraka), wantCode: http.StatusForbidden},
		{name: "no ids", path: "/v1/users", token: adminToken, wantCode: http.StatusNoContent},
		{name: "cannot delete self", path: path(u.amani.ID, u.admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", path: path(u.amani.ID, u.baraka.ID, "lol"), token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt.method = http.MethodDelete

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}

	left, err := a.usrRepo.QueryUsers(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []user.User{u.chausiku, u.admin, u.owner}, left)
}
