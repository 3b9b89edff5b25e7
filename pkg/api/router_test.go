package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/storage"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/dto"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/handlers"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/api/middleware"
)

var routerNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

type testServer struct {
	router     *gin.Engine
	dispatched []*daginfo.Trigger
}

func newTestServer(t *testing.T, jwt *middleware.JWTConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := func() time.Time { return routerNow }
	svc := daginfo.New(storage.NewMemoryStore(), daginfo.WithClock(clock), daginfo.WithExclusiveTrigger(true))

	ts := &testServer{}
	dispatcher := scheduler.DispatcherFunc(func(ctx context.Context, trigger *daginfo.Trigger) error {
		ts.dispatched = append(ts.dispatched, trigger)
		return nil
	})
	poller := scheduler.NewPoller(scheduler.DefaultConfig(), svc, dispatcher, scheduler.WithPollerClock(clock))

	log := logrus.New()
	log.SetOutput(io.Discard)

	ts.router = api.NewRouter(api.RouterConfig{
		Log:      log,
		JWT:      jwt,
		Handlers: handlers.NewDagInfoHandler(svc, poller).WithClock(clock),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_Lifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/v1/dag-infos", "", dto.CreateDagInfoRequest{
		DagID:             "etl",
		ExpireTime:        "2030-01-01 00:00:00",
		NextStartTime:     "2024-03-01 11:00:00",
		SchedulerInterval: 3600,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.DagInfoResponse](t, w)
	assert.True(t, created.Due)
	assert.Equal(t, "idle", created.DagStatus)
	base := fmt.Sprintf("/api/v1/dag-infos/%d", created.ID)

	w = ts.do(t, http.MethodPost, "/api/v1/dag-infos", "", dto.CreateDagInfoRequest{
		DagID:             "etl",
		ExpireTime:        "2031-01-01 00:00:00",
		SchedulerInterval: 60,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, created.ID, decode[dto.DagInfoResponse](t, w).ID)

	w = ts.do(t, http.MethodGet, "/api/v1/dag-infos/due", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]dto.DagInfoResponse](t, w), 1)

	w = ts.do(t, http.MethodPost, "/api/v1/poll", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[scheduler.PollResult](t, w)
	assert.Equal(t, 1, result.Triggered)
	require.Len(t, ts.dispatched, 1)

	w = ts.do(t, http.MethodGet, base, "", nil)
	running := decode[dto.DagInfoResponse](t, w)
	assert.Equal(t, "running", running.DagStatus)
	assert.Equal(t, "2024-03-01 13:00:00", running.NextStartTime)
	assert.False(t, running.Due)

	w = ts.do(t, http.MethodPost, base+"/trigger", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, base+"/fail", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", decode[dto.DagInfoResponse](t, w).DagStatus)

	w = ts.do(t, http.MethodPost, base+"/succeed", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, base+"/reset", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idle", decode[dto.DagInfoResponse](t, w).DagStatus)

	w = ts.do(t, http.MethodPost, base+"/terminate", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, base+"/trigger", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_JWT(t *testing.T) {
	jwt, err := middleware.NewJWTConfig("router-secret", time.Hour)
	require.NoError(t, err)
	ts := newTestServer(t, jwt)

	viewer, _ := middleware.GenerateToken(jwt, "u1", "viewer", []string{middleware.RoleViewer})
	operator, _ := middleware.GenerateToken(jwt, "u2", "operator", []string{middleware.RoleOperator})

	create := dto.CreateDagInfoRequest{DagID: "a", ExpireTime: "2030-01-01 00:00:00", SchedulerInterval: 60}

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/dag-infos", "", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/dag-infos", viewer, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/v1/dag-infos", viewer, create).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/v1/poll", viewer, nil).Code)
	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/dag-infos", operator, create).Code)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", "", nil).Code)
}
