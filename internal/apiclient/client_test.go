package apiclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest-pro/pkg/models"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 2*time.Second)
}

func TestStartTest(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathStartTest, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"status":"started","message":"Speed test started successfully."}`)
	})

	resp, err := c.StartTest()
	require.NoError(t, err)
	assert.Equal(t, models.StatusStarted, resp.Status)
	assert.Equal(t, "Speed test started successfully.", resp.Message)
}

func TestTestStatus_Testing(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathTestStatus, r.URL.Path)
		io.WriteString(w, `{"status":"testing","progress":{"status":"testing","current_phase":"testing_download","progress":40,"message":"Testing download speed..."},"message":"Testing download speed..."}`)
	})

	resp, err := c.TestStatus()
	require.NoError(t, err)
	assert.Equal(t, models.StatusTesting, resp.Status)
	require.NotNil(t, resp.Progress)
	assert.Equal(t, models.PhaseTestingDownload, resp.Progress.Phase)
	assert.Equal(t, 40, resp.Progress.Progress)
	assert.Nil(t, resp.Results)
}

func TestTestStatus_CompletedWithFlaskTimestamp(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"completed","results":{"download":85.5,"upload":22.3,"ping":28,"jitter":28,
			"server":{"name":"Amsterdam, NL","sponsor":"Lab","city":"Amsterdam","country":"Netherlands","host":"h:8080","distance":12.5,"latency":9.1},
			"timestamp":"2024-05-01T10:11:12.123456","packet_loss":0,"bytes_sent":100,"bytes_received":200,"share_url":""}}`)
	})

	resp, err := c.TestStatus()
	require.NoError(t, err)
	require.NotNil(t, resp.Results)
	assert.Equal(t, 85.5, resp.Results.Download)
	assert.Equal(t, "Lab", resp.Results.Server.Sponsor)
	assert.Equal(t, "Amsterdam, Netherlands", resp.Results.Server.Location())
	assert.Equal(t, "2024-05-01T10:11:12.123456", resp.Results.Timestamp)
}

func TestSubmitFeedback(t *testing.T) {
	var got models.FeedbackRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSubmitFeedback, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"status":"success"}`)
	})

	require.NoError(t, c.SubmitFeedback(models.FeedbackRequest{Rating: 7, Comments: "User rating from speed test"}))
	assert.Equal(t, 7, got.Rating)
	assert.Equal(t, "User rating from speed test", got.Comments)
}

func TestNon2xxIsError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.TestStatus()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}

func TestBadJSONIsError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>`)
	})

	_, err := c.Health()
	assert.Error(t, err)
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, 500*time.Millisecond).StartTest()
	assert.Error(t, err)
}

func TestServerInfoError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error":"no servers"}`)
	})

	_, err := c.ServerInfo()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no servers")
}

func TestResultsAndHealth(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathResults:
			io.WriteString(w, `{"current":{"download":10},"history":[{"download":5},{"download":10}]}`)
		case PathHealth:
			io.WriteString(w, `{"status":"healthy","timestamp":"2024-05-01T10:11:12","speedtest_available":true}`)
		default:
			http.NotFound(w, r)
		}
	})

	res, err := c.Results()
	require.NoError(t, err)
	require.NotNil(t, res.Current)
	assert.Equal(t, 10.0, res.Current.Download)
	assert.Len(t, res.History, 2)

	h, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.SpeedtestAvailable)
}

func TestBaseURLTrimmed(t *testing.T) {
	assert.Equal(t, "http://host:5000", New("http://host:5000///", 0).BaseURL())
}
