package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest-pro/internal/config"
	"speedtest-pro/internal/metrics"
	"speedtest-pro/pkg/models"
)

func newTestServer(t *testing.T, mutate func(c *config.Config)) *Server {
	cfg := config.DefaultConfig()
	cfg.Simulator.StepDelayMs = 0
	if mutate != nil {
		mutate(cfg)
	}
	s := New(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func do(t *testing.T, s *Server, method, path string, body string, out interface{}) int {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func waitIdle(t *testing.T, s *Server) {
	t.Helper()
	require.Eventually(t, func() bool { return !s.IsTesting() }, 5*time.Second, 5*time.Millisecond)
}

func TestInitialStatusIsReady(t *testing.T) {
	s := newTestServer(t, nil)

	var status models.StatusResponse
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/test-status", "", &status))
	assert.Equal(t, models.StatusReady, status.Status)
	require.NotNil(t, status.Progress)
	assert.Equal(t, models.PhaseIdle, status.Progress.Phase)
	assert.Nil(t, status.Results)
}

func TestStartAndComplete(t *testing.T) {
	s := newTestServer(t, nil)

	var start models.StartResponse
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/start-test", "", &start))
	assert.Equal(t, models.StatusStarted, start.Status)

	waitIdle(t, s)

	var status models.StatusResponse
	do(t, s, http.MethodGet, "/api/test-status", "", &status)
	assert.Equal(t, models.StatusCompleted, status.Status)
	require.NotNil(t, status.Results)
	assert.Equal(t, 85.5, status.Results.Download)
	assert.Equal(t, 22.3, status.Results.Upload)
	assert.Equal(t, "Speedtest Pro Lab", status.Results.Server.Sponsor)
	assert.Equal(t, "Amsterdam", status.Results.Server.City)
	assert.Equal(t, "Netherlands", status.Results.Server.Country)
	assert.Equal(t, int64(85.5*1e6/8*10), status.Results.BytesReceived)
	_, err := time.Parse(timestampLayout, status.Results.Timestamp)
	assert.NoError(t, err)

	var progress models.Progress
	do(t, s, http.MethodGet, "/api/test-progress", "", &progress)
	assert.Equal(t, models.PhaseCompleted, progress.Phase)
	assert.Equal(t, 100, progress.Progress)

	var results models.ResultsResponse
	do(t, s, http.MethodGet, "/api/results", "", &results)
	require.NotNil(t, results.Current)
	assert.Len(t, results.History, 1)
}

func TestSecondStartIsRefused(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Simulator.StepDelayMs = 500 })

	var first, second models.StartResponse
	do(t, s, http.MethodPost, "/api/start-test", "", &first)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/start-test", "", &second))
	assert.Equal(t, models.StatusStarted, first.Status)
	assert.Equal(t, models.StatusError, second.Status)
	assert.Contains(t, second.Message, "already in progress")

	var status models.StatusResponse
	do(t, s, http.MethodGet, "/api/test-status", "", &status)
	assert.Equal(t, models.StatusTesting, status.Status)
	assert.Equal(t, status.Progress.Message, status.Message)
}

func TestFailPhase(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Simulator.FailPhase = "testing_upload" })

	do(t, s, http.MethodPost, "/api/start-test", "", nil)
	waitIdle(t, s)

	var status models.StatusResponse
	do(t, s, http.MethodGet, "/api/test-status", "", &status)
	assert.Equal(t, models.StatusError, status.Status)
	assert.Equal(t, "Speed test failed: simulated failure during testing_upload", status.Message)
	assert.Equal(t, models.PhaseError, status.Progress.Phase)
	assert.Nil(t, status.Results)
}

func TestHistoryKeepsLastTen(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < 12; i++ {
		var start models.StartResponse
		do(t, s, http.MethodPost, "/api/start-test", "", &start)
		require.Equal(t, models.StatusStarted, start.Status)
		waitIdle(t, s)
	}

	var results models.ResultsResponse
	do(t, s, http.MethodGet, "/api/results", "", &results)
	assert.Len(t, results.History, 10)
}

func TestSubmitFeedback(t *testing.T) {
	s := newTestServer(t, nil)

	var resp map[string]string
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/submit-feedback",
		`{"rating":8,"comments":"User rating from speed test"}`, &resp))
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, []models.FeedbackRequest{{Rating: 8, Comments: "User rating from speed test"}}, s.Feedback())

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/submit-feedback", `{"rating":`, &resp))
	assert.Equal(t, "error", resp["status"])
}

func TestFeedbackKeepsLastTen(t *testing.T) {
	s := newTestServer(t, nil)

	for i := 0; i < 15; i++ {
		body := fmt.Sprintf(`{"rating":%d,"comments":"c%d"}`, i%11, i)
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/submit-feedback", body, nil))
	}

	fb := s.Feedback()
	require.Len(t, fb, 10)
	assert.Equal(t, "c5", fb[0].Comments)
	assert.Equal(t, "c14", fb[9].Comments)
}

func TestServerInfoAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	var servers models.ServerListResponse
	do(t, s, http.MethodGet, "/api/server-info", "", &servers)
	assert.Equal(t, 1, servers.TotalServers)
	require.Len(t, servers.AvailableServers, 1)
	assert.Equal(t, "speedtest.example.net:8080", servers.AvailableServers[0].Host)

	var health models.HealthResponse
	do(t, s, http.MethodGet, "/api/health", "", &health)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.SpeedtestAvailable)
}

func TestExportAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/start-test", "", nil)
	waitIdle(t, s)

	r := httptest.NewRequest(http.MethodGet, "/api/results/export/csv", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, 2, bytes.Count(w.Body.Bytes(), []byte("\n")))

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/results/export/xml", "", nil))

	do(t, s, http.MethodGet, "/api/test-status", "", nil)

	var m metricsReply
	do(t, s, http.MethodGet, "/api/metrics", "", &m)
	assert.Equal(t, int64(1), m.Session.TestsStarted)
	assert.Equal(t, int64(1), m.Session.TestsSuccessful)
	assert.Equal(t, 1, m.History.Count)
	require.Contains(t, m.Metrics, metricStatusRequests)
	assert.Equal(t, int64(1), m.Metrics[metricStatusRequests].Count)
	require.Len(t, m.RecentResults, 1)
	assert.Equal(t, 85.5, m.SmoothedDownload)
}

type metricsReply struct {
	Session struct {
		TestsStarted    int64 `json:"tests_started"`
		TestsSuccessful int64 `json:"tests_successful"`
	} `json:"session"`
	Metrics          map[string]metrics.Metric `json:"metrics"`
	RecentResults    []metrics.ResultSample    `json:"recent_results"`
	SmoothedDownload float64                   `json:"smoothed_download"`
	History          models.HistoryStats       `json:"history"`
}

func TestClearResults(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/api/start-test", "", nil)
	waitIdle(t, s)

	var resp map[string]string
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/api/results", "", &resp))
	assert.Equal(t, "results cleared", resp["message"])

	var results models.ResultsResponse
	do(t, s, http.MethodGet, "/api/results", "", &results)
	assert.Nil(t, results.Current)
	assert.Empty(t, results.History)

	var m metricsReply
	do(t, s, http.MethodGet, "/api/metrics", "", &m)
	assert.Equal(t, int64(0), m.Session.TestsStarted)
	assert.Empty(t, m.Metrics)
	assert.Empty(t, m.RecentResults)
}

func TestClearResultsRefusedWhileTesting(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Simulator.StepDelayMs = 5000 })
	do(t, s, http.MethodPost, "/api/start-test", "", nil)
	require.True(t, s.IsTesting())

	assert.Equal(t, http.StatusConflict, do(t, s, http.MethodDelete, "/api/results", "", nil))
}

func TestShutdownRefusesNewTests(t *testing.T) {
	s := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	var start models.StartResponse
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPost, "/api/start-test", "", &start))
	assert.Equal(t, models.StatusError, start.Status)
}
