package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/banyan/banyan/internal/auth"
	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/continuation"
	"github.com/banyan/banyan/internal/coordinator"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/execrecord"
	"github.com/banyan/banyan/internal/lock"
	"github.com/banyan/banyan/internal/logx"
	"github.com/banyan/banyan/internal/metrics"
	"github.com/banyan/banyan/internal/notifier"
	"github.com/banyan/banyan/internal/store"
)

// testServer bundles a live router plus the identity store used to mint
// Basic-auth credentials for test requests.
type testServer struct {
	router     *gin.Engine
	identities *auth.IdentityStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := store.NewRedisStore(rdb)
	cfg := &config.Config{MaxContSize: config.DefaultMaxContSize, MaxUpdates: config.DefaultMaxUpdates, TokenLen: config.DefaultTokenLen}
	log := logx.New("test")

	contEng := continuation.New(s, cfg, log)
	execEng := execrecord.New(s, contEng, cfg, log)
	coord := coordinator.New(s, lock.NewRegistry(), contEng, execEng, log)

	notif, err := notifier.New(log, func(string) {})
	require.NoError(t, err)

	identities := auth.NewIdentityStore(s)
	sessions := auth.NewSessionManager("test-secret", "banyan-test", 0)

	router := NewRouter(Deps{
		Coordinator: coord,
		Identities:  identities,
		Sessions:    sessions,
		Notifier:    notif,
		Metrics:     metrics.New(),
		Log:         log,
	})

	return &testServer{router: router, identities: identities}
}

func (ts *testServer) createUser(t *testing.T, name string, role task.Role) string {
	t.Helper()
	_, plain, err := ts.identities.CreateUser(context.Background(), name, role)
	require.NoError(t, err)
	return auth.BasicAuthKey(plain)
}

func (ts *testServer) do(t *testing.T, method, path, authHeader string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", "Basic "+authHeader)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskRequiresProviderRole(t *testing.T) {
	ts := newTestServer(t)
	workerAuth := ts.createUser(t, "w1", task.RoleWorker)

	rec := ts.do(t, http.MethodPost, "/tasks", workerAuth, map[string]any{
		"name":    "t1",
		"command": "echo hi",
		"state":   "available",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndFetchTask(t *testing.T) {
	ts := newTestServer(t)
	providerAuth := ts.createUser(t, "p1", task.RoleProvider)

	rec := ts.do(t, http.MethodPost, "/tasks", providerAuth, map[string]any{
		"name":    "build",
		"command": "make",
		"state":   "available",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, task.StatusAvailable, created.State)

	rec = ts.do(t, http.MethodGet, "/tasks/"+created.ID, providerAuth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestWorkerClaimsAndReportsTask(t *testing.T) {
	ts := newTestServer(t)
	providerAuth := ts.createUser(t, "p2", task.RoleProvider)
	workerAuth := ts.createUser(t, "w2", task.RoleWorker)

	rec := ts.do(t, http.MethodPost, "/tasks", providerAuth, map[string]any{
		"name":    "job",
		"command": "run",
		"state":   "available",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = ts.do(t, http.MethodPatch, "/tasks/"+created.ID, workerAuth, map[string]any{
		"state": "running",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var claimResp struct {
		Task  task.Task `json:"task"`
		Token string    `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claimResp))
	require.NotEmpty(t, claimResp.Token)
	require.Equal(t, task.StatusRunning, claimResp.Task.State)

	rec = ts.do(t, http.MethodPatch, "/tasks/"+created.ID, workerAuth, map[string]any{
		"state": "terminated",
		"update_execution_data": map[string]any{
			"token":       claimResp.Token,
			"exit_status": "success",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/tasks", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpointUnauthenticated(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
