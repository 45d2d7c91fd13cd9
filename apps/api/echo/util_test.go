package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/pueriangeli/apps/api/echo"
	"github.com/trezcool/pueriangeli/core"
	"github.com/trezcool/pueriangeli/core/announcement"
	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/coursework"
	"github.com/trezcool/pueriangeli/core/dashboard"
	"github.com/trezcool/pueriangeli/core/guard"
	"github.com/trezcool/pueriangeli/core/message"
	"github.com/trezcool/pueriangeli/core/session"
	"github.com/trezcool/pueriangeli/core/user"
	"github.com/trezcool/pueriangeli/services/blob"
	"github.com/trezcool/pueriangeli/services/email"
	"github.com/trezcool/pueriangeli/services/logger"
	"github.com/trezcool/pueriangeli/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "user not authenticated"}

// testEnv is a server over in-memory storage, with handles on what tests need to seed and inspect.
type testEnv struct {
	app       Server
	conf      *core.Config
	usrRepo   user.Repository
	classRepo classroom.Repository
	workRepo  coursework.Repository
	annRepo   announcement.Repository
	msgRepo   message.Repository
	sessions  *session.Manager
	mailSvc   *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Documents.LocalDir = t.TempDir()
	logger := logsvc.NewNopLogger()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	env := &testEnv{
		conf:      conf,
		usrRepo:   inmemdb.NewUserRepository(db),
		classRepo: inmemdb.NewClassroomRepository(db),
		workRepo:  inmemdb.NewCourseworkRepository(db),
		annRepo:   inmemdb.NewAnnouncementRepository(db),
		msgRepo:   inmemdb.NewMessageRepository(db),
		sessions:  session.NewManager(inmemdb.NewSessionStore(db), conf),
		mailSvc:   emailsvc.NewConsoleServiceMock(conf, logger),
	}

	blobs, err := blobsvc.NewLocalStore(conf.Documents.LocalDir)
	if err != nil {
		t.Fatalf("blobsvc.NewLocalStore() failed: %v", err)
	}

	// set up services
	usrSvc := user.NewServiceMock(env.usrRepo, env.mailSvc, conf)
	classSvc := classroom.NewService(env.classRepo, usrSvc)
	workSvc := coursework.NewService(env.workRepo, classSvc, blobs)
	annSvc := announcement.NewService(env.annRepo, usrSvc, classSvc, env.mailSvc, conf)
	msgSvc := message.NewService(env.msgRepo, usrSvc, classSvc, env.mailSvc, conf)
	dashSvc := dashboard.NewService(usrSvc, classSvc, workSvc)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	registry := prometheus.NewRegistry()
	registry.MustRegister(guard.Collector())

	// set up server
	env.app = NewServer(&Options{
		Conf:            conf,
		Logger:          logger,
		Validate:        validate,
		Translator:      translator,
		Registry:        registry,
		DisableReqLogs:  true,
		Sessions:        env.sessions,
		UserSvc:         usrSvc,
		ClassroomSvc:    classSvc,
		CourseworkSvc:   workSvc,
		AnnouncementSvc: annSvc,
		MessageSvc:      msgSvc,
		DashboardSvc:    dashSvc,
	})
	return env
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
}

type httpErr struct {
	Error string `json:"error"`
}

type redirectErr struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
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

// getToken opens a session for usr and signs its token.
func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	t.Helper()

	sess, err := env.sessions.Login(context.Background(), usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	token, err := GenerateToken(env.conf.SecretKey, NewClaims(env.conf, sess))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
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

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
