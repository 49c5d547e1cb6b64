package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/jamii/apps/api/echo"
	"github.com/trezcool/jamii/core"
	"github.com/trezcool/jamii/core/forum"
	"github.com/trezcool/jamii/core/subscription"
	"github.com/trezcool/jamii/core/user"
	emailsvc "github.com/trezcool/jamii/services/email"
	inmemdb "github.com/trezcool/jamii/storage/database/inmem"
	testutil "github.com/trezcool/jamii/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type app struct {
	*echoapi.Server
	conf      *core.Config
	logger    *testutil.Logger
	usrRepo   user.Repository
	subRepo   subscription.Repository
	forumRepo forum.Repository
}

func setup(t *testing.T) app {
	t.Helper()
	emailsvc.ResetSentMessages()

	conf := &core.Config{
		Env:       "TEST",
		AppName:   "Jamii",
		TestMode:  true,
		SecretKey: "t3st-s3cr3t",
		Server: core.ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        15 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Subscription: core.SubscriptionConfig{PremiumRole: user.RoleMemberPremium},
	}

	// set up DB & repos
	db := inmemdb.Open()
	a := app{
		conf:      conf,
		logger:    &testutil.Logger{},
		usrRepo:   inmemdb.NewUserRepository(db),
		subRepo:   inmemdb.NewSubscriptionRepository(db),
		forumRepo: inmemdb.NewForumRepository(db),
	}

	// set up validators
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	subscription.InitValidators(validate, translator)
	user.LoadCommonPasswords(a.logger)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(a.usrRepo)

	// set up server
	a.Server = echoapi.NewServer(echoapi.ServerDeps{
		Conf:            conf,
		Logger:          a.logger,
		UserSvc:         usrSvc,
		SubscriptionSvc: subscription.NewService(a.subRepo, usrSvc, mailSvc, a.logger, conf),
		ForumSvc:        forum.NewService(a.forumRepo),
		Validate:        validate,
		Translator:      translator,
		DisableReqLogs:  true,
	})
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func (a app) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := a.NewToken(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (a app) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	a.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the status code and the JSON body; list order matters.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
