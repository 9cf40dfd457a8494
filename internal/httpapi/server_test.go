package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrunner/taskrunner/internal/engine"
	"github.com/flowrunner/taskrunner/internal/jobs"
	"github.com/flowrunner/taskrunner/internal/platform/health"
	"github.com/flowrunner/taskrunner/internal/platform/metrics"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	mono time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(0, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.mono += d
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(string) bool { return true }

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func testServer(t *testing.T, limiter interface{ Allow(string) bool }) (*Server, *engine.Manager) {
	t.Helper()
	clock := newFakeClock()
	definitions := jobs.DefaultDefinitions(clock, time.Millisecond)
	manager := engine.NewManager(engine.Config{MaxQueueSize: 10, Concurrency: 2, CleanupAfterSeconds: 3600},
		definitions.EngineRegistry(), clock, nil, nil)
	manager.Start()
	t.Cleanup(manager.Stop)

	// Every registered job body runs behind the simulated-duration
	// decorator, which only completes once clock.Monotonic() has
	// advanced past the job's nominal duration. Drive it forward in
	// real time so submitted-but-unawaited jobs in these HTTP tests
	// still finish instead of looping forever on a frozen clock.
	stopTicking := make(chan struct{})
	t.Cleanup(func() { close(stopTicking) })
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopTicking:
				return
			case <-ticker.C:
				clock.Advance(time.Second)
			}
		}
	}()

	m := metrics.NewMetrics("test_" + t.Name())
	h := health.NewHandler("test", "dev")
	srv := NewServer(manager, definitions, limiter, nil, m, h)
	return srv, manager
}

func TestHandleSubmitRejectsUnknownTaskType(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"task_type":"nope","parameters":{}}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body["code"])
}

func TestHandleSubmitAcceptsKnownTaskType(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"task_type":"lucky_job","parameters":{}}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	assert.NotEmpty(t, body["task_id"])
}

func TestHandleSubmitRejectsMalformedBody(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "http_error", body["code"])
}

func TestHandleSubmitRejectsOutOfRangePriority(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", strings.NewReader(`{"task_type":"lucky_job","parameters":{},"priority":99}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetReturnsNotFoundForUnknownID(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetReturnsCurrentSnapshot(t *testing.T) {
	srv, manager := testServer(t, allowAllLimiter{})
	info, err := manager.Submit("lucky_job", map[string]interface{}{}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+info.TaskID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, info.TaskID, body["task_id"])
}

func TestHandleGetWaitTimesOutWithCurrentState(t *testing.T) {
	// A task that stays queued behind a blocked worker never fires its
	// change notifier, so the long poll must fall through to the
	// timeout branch and still answer 200 with the queued snapshot.
	clock := newFakeClock()
	release := make(chan struct{})
	registry := engine.Registry{
		"blocker": func(rec *engine.TaskRecord, parameters map[string]interface{}) (interface{}, error) {
			<-release
			return nil, nil
		},
	}
	definitions := jobs.Definitions{"blocker": {
		Schema:   func(p map[string]interface{}) (map[string]interface{}, []string) { return p, nil },
		Executor: registry["blocker"],
	}}
	manager := engine.NewManager(engine.Config{MaxQueueSize: 10, Concurrency: 1, CleanupAfterSeconds: 3600},
		registry, clock, nil, nil)
	manager.Start()

	m := metrics.NewMetrics("test_" + t.Name())
	h := health.NewHandler("test", "dev")
	srv := NewServer(manager, definitions, allowAllLimiter{}, nil, m, h)

	occupying, err := manager.Submit("blocker", map[string]interface{}{}, 0)
	require.NoError(t, err)
	occupyingRec, _ := manager.Get(occupying.TaskID)
	waitForProcessing(t, occupyingRec)

	queued, err := manager.Submit("blocker", map[string]interface{}{}, 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		close(release)
		manager.Stop()
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+queued.TaskID+"?wait=true&timeout=1", nil)
	rec := httptest.NewRecorder()

	start := time.Now()
	srv.Router().ServeHTTP(rec, req)
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusOK, rec.Code, "a timed-out long poll must still return 200")
	assert.GreaterOrEqual(t, elapsed, time.Second)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
}

func waitForProcessing(t *testing.T, rec *engine.TaskRecord) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if rec.Snapshot().Status == engine.StatusProcessing {
			return
		}
		select {
		case <-rec.Wait():
		case <-deadline:
			t.Fatal("timed out waiting for processing status")
		}
	}
}

func TestHandleListStreamsJSONLines(t *testing.T) {
	srv, manager := testServer(t, allowAllLimiter{})
	for i := 0; i < 3; i++ {
		_, err := manager.Submit("lucky_job", map[string]interface{}{}, 0)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/jsonl", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	lines := 0
	for scanner.Scan() {
		var info map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &info))
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestHandleListRejectsBadLimit(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?limit=0", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelFreshTaskReturnsOKOrAccepted(t *testing.T) {
	srv, manager := testServer(t, allowAllLimiter{})
	info, err := manager.Submit("lucky_job", map[string]interface{}{}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/"+info.TaskID, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusAccepted}, rec.Code)
}

func TestHandleCancelUnknownTaskReturnsNotFound(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimitMiddlewareDeniesWhenLimiterSaysNo(t *testing.T) {
	srv, _ := testServer(t, denyAllLimiter{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["code"])
}

func TestMetricsAndHealthEndpointsAreRegistered(t *testing.T) {
	srv, _ := testServer(t, allowAllLimiter{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
