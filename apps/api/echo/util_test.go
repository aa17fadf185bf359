package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/masomo-admin/apps/api/echo"
	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/course"
	"github.com/trezcool/masomo-admin/core/message"
	emailsvc "github.com/trezcool/masomo-admin/services/email"
	inmemdb "github.com/trezcool/masomo-admin/storage/database/inmem"
	"github.com/trezcool/masomo-admin/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf   *core.Config
	srv    *Server
	svc    *message.Service
	caches *message.Caches
	mgr    *compose.Manager
}

// setup starts a server on a seeded in-memory database. `dispatcher` replaces the message service
// as the sender of composed messages when not nil.
func setup(t *testing.T, dispatcher compose.Dispatcher, configure ...func(conf *core.Config)) fixture {
	conf := testutil.NewConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger, _ := testutil.NewLogger()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	db := testutil.SeedCourse(t)
	dir := inmemdb.NewCourseDirectory(db)
	f := fixture{
		conf:   conf,
		svc:    message.NewService(inmemdb.NewMessageRepository(db), emailsvc.NewConsoleServiceMock(conf, logger), nil, logger),
		caches: message.NewCaches(),
	}
	if dispatcher == nil {
		dispatcher = f.svc
	}
	f.mgr = compose.NewManager(dir, dir, dispatcher, f.caches, validate, logger, compose.NewOptions(conf, nil))
	f.srv = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Composer:   f.mgr,
		MessageSvc: f.svc,
		Caches:     f.caches,
		Validate:   validate,
		Translator: translator,
	})
	return f
}

func (f fixture) teacherToken(t *testing.T) string {
	prof := testutil.Professor()
	claims := NewClaims(f.conf, prof.ID, prof.Name, prof.Email, time.Hour)
	claims.IsTeacher = true
	return getToken(t, f.conf, claims)
}

func (f fixture) studentToken(t *testing.T, st course.Student) string {
	claims := NewClaims(f.conf, strconv.Itoa(st.ID), st.Name, st.Email, time.Hour)
	claims.IsStudent = true
	return getToken(t, f.conf, claims)
}

func getToken(t *testing.T, conf *core.Config, claims *Claims) string {
	token, err := GenerateToken(conf.SecretKey, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves a request and returns the response.
func (f fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.srv.ServeHTTP(rec, req)
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
}

// snapshot is compose.Snapshot as seen by clients.
type snapshot struct {
	ID          string           `json:"id"`
	Subject     string           `json:"subject"`
	Body        string           `json:"message"`
	Recipients  []course.Student `json:"recipients"`
	Individual  []course.Student `json:"individual"`
	State       string           `json:"state"`
	Progress    int              `json:"progress"`
	Faults      []string         `json:"faults"`
	Failure     string           `json:"failure"`
	FailureKind string           `json:"failure_kind"`
	Closed      bool             `json:"closed"`
}

func (s snapshot) recipientIDs() []int {
	ids := make([]int, 0, len(s.Recipients))
	for _, st := range s.Recipients {
		ids = append(ids, st.ID)
	}
	return ids
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

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
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

func itoa(i int) string { return strconv.Itoa(i) }
