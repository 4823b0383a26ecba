package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dilution-ops-backend/config"
	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/backend"
	"dilution-ops-backend/internal/console"
	"dilution-ops-backend/internal/db"
	"dilution-ops-backend/internal/faceid"
	"dilution-ops-backend/internal/mw"
	"dilution-ops-backend/internal/pharmacy"
	"dilution-ops-backend/internal/robot"
	"dilution-ops-backend/internal/session"
	"dilution-ops-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	roles    map[string]pharmacy.Role
}

func (f *fakeSessions) Login(ctx context.Context, username, password string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[username]
	if !ok || password != "secret" {
		return nil, &apperr.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	}
	sess := &session.Session{
		ID:        "sess-" + username,
		UserID:    int64(len(f.sessions) + 1),
		Username:  username,
		Role:      role,
		Token:     "tok",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, apperr.ErrUnauthenticated
}

func (f *fakeSessions) Logout(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

type fakeGateway struct {
	mu           sync.Mutex
	cards        []pharmacy.JobCard
	listErr      error
	createJobErr error
}

func (g *fakeGateway) ListJobCards(ctx context.Context, creds backend.Credentials) ([]pharmacy.JobCard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]pharmacy.JobCard(nil), g.cards...), nil
}

func (g *fakeGateway) CreateJobCard(ctx context.Context, creds backend.Credentials, card pharmacy.NewJobCard) (*pharmacy.JobCard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createJobErr != nil {
		return nil, g.createJobErr
	}
	created := pharmacy.JobCard{JobcardID: int64(len(g.cards) + 1), DilutionID: card.DilutionID, Status: card.Status, PrescriptionID: card.PrescriptionID}
	g.cards = append(g.cards, created)
	return &created, nil
}

func (g *fakeGateway) UpdateJobCard(ctx context.Context, creds backend.Credentials, id int64, update pharmacy.JobCardUpdate) (*pharmacy.JobCard, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cards {
		if g.cards[i].JobcardID == id {
			g.cards[i].Status = update.Status
			g.cards[i].HardwareID = update.HardwareID
			card := g.cards[i]
			return &card, nil
		}
	}
	return nil, &apperr.APIError{Status: http.StatusNotFound, Message: "Jobcard not found"}
}

func (g *fakeGateway) DeleteJobCard(ctx context.Context, creds backend.Credentials, id int64) error {
	return nil
}

func (g *fakeGateway) ExecuteJobCard(ctx context.Context, creds backend.Credentials, id int64) (*pharmacy.ExecuteResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.cards {
		if g.cards[i].JobcardID == id {
			g.cards[i].Status = pharmacy.StatusProcessing
		}
	}
	return &pharmacy.ExecuteResult{Message: "Jobcard sent to robot"}, nil
}

func (g *fakeGateway) CreatePrescription(ctx context.Context, creds backend.Credentials, p pharmacy.NewPrescription) (*pharmacy.PrescriptionDetail, error) {
	return &pharmacy.PrescriptionDetail{PrescriptionID: 41}, nil
}

type fakeDevice struct{}

func (fakeDevice) StartVerification(ctx context.Context) error { return nil }

func (fakeDevice) CheckVerification(ctx context.Context) (*faceid.VerificationStatus, error) {
	return &faceid.VerificationStatus{Verified: true, User: "alice"}, nil
}

func (fakeDevice) VideoFeedURL(at time.Time) string { return "http://device/video_feed" }

type fakeRobot struct{}

func (fakeRobot) FetchLogs(ctx context.Context) ([]robot.TaskLog, error) {
	return []robot.TaskLog{{LogID: 3, TaskName: "Calibration", PiStatus: "RUNNING", UnityStatus: "PENDING"}}, nil
}

func (fakeRobot) Trigger(ctx context.Context, taskName, message string) (robot.TaskID, error) {
	return "57", nil
}

type fakeReferences struct {
	calls int
}

func (f *fakeReferences) ListDilutions(ctx context.Context, creds backend.Credentials) ([]pharmacy.Dilution, error) {
	f.calls++
	return []pharmacy.Dilution{{DilutionID: 1, Name: "Amoxicillin 1:10"}}, nil
}

func (f *fakeReferences) ListHardware(ctx context.Context, creds backend.Credentials) ([]pharmacy.Hardware, error) {
	return []pharmacy.Hardware{{HardwareID: 2, Name: "Mixer A"}}, nil
}

type fakeFaces struct{}

func (fakeFaces) StartRegistration(ctx context.Context) error { return nil }

func (fakeFaces) RegisterFace(ctx context.Context, name string) (*faceid.ActionResult, error) {
	return &faceid.ActionResult{Success: true, Message: "registered " + name}, nil
}

func (fakeFaces) DeleteUser(ctx context.Context, name string) (*faceid.ActionResult, error) {
	return &faceid.ActionResult{Success: true}, nil
}

func (fakeFaces) RegisteredUsers(ctx context.Context) ([]string, error) {
	return []string{"alice"}, nil
}

func (fakeFaces) VideoFeedURL(at time.Time) string { return "http://device/video_feed?t=1" }

type testServer struct {
	router   *gin.Engine
	sessions *fakeSessions
	gateway  *fakeGateway
	refs     *fakeReferences
	consoles *console.Registry
	upstream *fakeUpstream
}

func newTestServer(t *testing.T) *testServer {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	ts := &testServer{
		sessions: &fakeSessions{
			sessions: map[string]*session.Session{},
			roles:    map[string]pharmacy.Role{"nora": pharmacy.RolePharmacist, "root": pharmacy.RoleAdmin},
		},
		gateway: &fakeGateway{cards: []pharmacy.JobCard{
			{JobcardID: 1, Status: pharmacy.StatusApproved},
			{JobcardID: 2, Status: pharmacy.StatusPending},
		}},
		refs:     &fakeReferences{},
		upstream: newFakeUpstream(t),
	}
	ts.consoles = console.NewRegistry(context.Background(), console.Deps{
		Gateway:       ts.gateway,
		Device:        fakeDevice{},
		Robot:         fakeRobot{},
		PollInterval:  5 * time.Millisecond,
		DismissDelay:  10 * time.Millisecond,
		RobotInterval: 20 * time.Millisecond,
	}, time.Minute)
	t.Cleanup(ts.consoles.Close)

	ts.router = NewRouter(Deps{
		Store:       store.NewGormStore(gdb),
		Sessions:    ts.sessions,
		Consoles:    ts.consoles,
		References:  ts.refs,
		Faces:       fakeFaces{},
		Passthrough: backend.New(ts.upstream.URL, time.Second),
		Webpush:     &webpush.Options{VAPIDPublicKey: "pub"},
	}, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 60})
	return ts
}

func (ts *testServer) do(method, path, sessionID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(mw.SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestLoginAndLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "nora", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", decode(t, w)["error"])

	w = ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "nora", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, mw.SessionCookie, cookies[0].Name)
	id := cookies[0].Value

	w = ts.do(http.MethodGet, "/api/auth/me", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nora", decode(t, w)["username"])

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodPost, "/api/auth/logout", id, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/auth/me", id, nil).Code)
	_, ok := ts.consoles.Lookup(id)
	assert.False(t, ok)
}

func TestRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/jobcards", "/api/console", "/api/robot/logs", "/api/dilutions"} {
		assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, path, "", nil).Code, path)
	}
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestListJobCardsExposesActions(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")

	w := ts.do(http.MethodGet, "/api/jobcards", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Rows []struct {
			JobcardID int64    `json:"jobcardId"`
			Actions   []string `json:"actions"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rows, 2)
	assert.Contains(t, body.Rows[0].Actions, "execute")
	assert.NotContains(t, body.Rows[1].Actions, "execute")

	w = ts.do(http.MethodGet, "/api/jobcards/1/actions", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["actions"], "execute")

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/jobcards/x/actions", id, nil).Code)
}

func TestListJobCardsKeepsRowsOnRefreshFailure(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/jobcards", id, nil).Code)

	ts.gateway.mu.Lock()
	ts.gateway.listErr = &apperr.APIError{Status: http.StatusInternalServerError, Message: "database offline"}
	ts.gateway.mu.Unlock()

	w := ts.do(http.MethodGet, "/api/jobcards", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "database offline", body["banner"])
	assert.Len(t, body["rows"], 2)
}

func TestBackendUnauthorizedClosesSession(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")

	ts.gateway.mu.Lock()
	ts.gateway.listErr = &apperr.APIError{Status: http.StatusUnauthorized, Message: "token expired"}
	ts.gateway.mu.Unlock()

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/jobcards", id, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/auth/me", id, nil).Code)
}

func TestExecuteRequiresVerification(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/jobcards", id, nil).Code)

	w := ts.do(http.MethodPost, "/api/jobcards/1/execute", id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Eventually(t, func() bool {
		w := ts.do(http.MethodGet, "/api/console/gate", id, nil)
		return decode(t, w)["verified"] == true
	}, time.Second, 5*time.Millisecond)

	w = ts.do(http.MethodPost, "/api/jobcards/1/execute", id, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Jobcard sent to robot", body["message"])
	assert.Equal(t, "execution", body["tab"])

	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/jobcards/2/execute", id, nil).Code)
}

func TestUpdateJobCard(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/jobcards", id, nil).Code)

	w := ts.do(http.MethodPut, "/api/jobcards/2", id, gin.H{"status": "Approved", "hardwareId": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Approved", decode(t, w)["status"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/api/jobcards/2", id, gin.H{}).Code)
}

func TestWizardFlow(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")

	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/wizard", id, nil).Code)

	w := ts.do(http.MethodPost, "/api/wizard/next", id, gin.H{"quantity": 2})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "dilutionId", decode(t, w)["field"])

	w = ts.do(http.MethodPost, "/api/wizard/next", id, gin.H{"dilutionId": 1, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodPost, "/api/wizard/submit", id, gin.H{"age": 30})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/wizard/submit", id, gin.H{"age": 30, "weight": 70.5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Pending", decode(t, w)["status"])

	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/wizard/next", id, gin.H{"dilutionId": 1}).Code)
}

func TestWizardReportsOrphanedPrescription(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	ts.gateway.createJobErr = &apperr.APIError{Status: http.StatusInternalServerError, Message: "insert failed"}

	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/wizard", id, nil).Code)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/wizard/next", id, gin.H{"dilutionId": 1}).Code)

	w := ts.do(http.MethodPost, "/api/wizard/submit", id, gin.H{"age": 30, "weight": 70})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "insert failed", body["error"])
	assert.EqualValues(t, 41, body["orphanedPrescriptionId"])
}

func TestWizardCancelWithoutWizard(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodDelete, "/api/wizard", id, nil).Code)
}

func TestConsoleTabAndRobot(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")

	assert.Equal(t, http.StatusConflict, ts.do(http.MethodGet, "/api/robot/logs", id, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPut, "/api/console/tab", id, gin.H{"tab": "settings"}).Code)

	w := ts.do(http.MethodPut, "/api/console/tab", id, gin.H{"tab": "execution"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return ts.do(http.MethodGet, "/api/robot/logs", id, nil).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	w = ts.do(http.MethodPost, "/api/robot/trigger", id, gin.H{"preset": "calibration"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "57", body["taskId"])
	assert.Equal(t, "Calibration", body["taskName"])

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/robot/trigger", id, gin.H{"preset": "nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/robot/trigger", id, gin.H{"message": "x"}).Code)

	w = ts.do(http.MethodPut, "/api/console/tab", id, gin.H{"tab": "management"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "management", decode(t, w)["tab"])
}

func TestGateRetryOutsideErrorIsRejected(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/console/gate/retry", id, nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do(http.MethodPost, "/api/console/gate/close", id, nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/console/gate", id, nil).Code)
}

func TestFaceIDRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	nora := ts.login(t, "nora")
	root := ts.login(t, "root")

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/faceid/users", nora, nil).Code)

	w := ts.do(http.MethodGet, "/api/faceid/users", root, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"users":["alice"]}`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/faceid/users", root, gin.H{"name": "bob"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "registered bob", decode(t, w)["message"])
}

func TestReferenceListsAreCached(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/dilutions", id, nil).Code)
	}
	assert.Equal(t, 1, ts.refs.calls)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	id := ts.login(t, "nora")
	other := ts.login(t, "root")
	endpoint := "https://push.example.com/abc"

	w := ts.do(http.MethodPut, "/api/subscriptions", id, gin.H{"endpoint": endpoint, "p256dh": "key", "auth": "auth"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, endpoint, decode(t, w)["endpoint"])

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, other, nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/subscriptions", id, nil).Code)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/subscriptions", id, gin.H{"endpoint": endpoint}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, id, nil).Code)
}

func TestVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(http.MethodGet, "/api/vapid_public_key", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"pub"}`, w.Body.String())
}

func TestFailMapsErrorKinds(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: apperr.Invalid("age", "must be positive"), status: http.StatusBadRequest},
		{name: "busy", err: apperr.ErrBusy, status: http.StatusConflict},
		{name: "network", err: &apperr.NetworkError{Op: "list", Err: errors.New("dial")}, status: http.StatusBadGateway},
		{name: "upstream", err: &apperr.APIError{Status: http.StatusNotFound, Message: "gone"}, status: http.StatusNotFound},
	}
	h := &Handler{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			h.fail(c, tc.err)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.err.Error(), decode(t, w)["error"])
		})
	}
}
