package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"speedtest-pro/pkg/models"
)

// Backend API paths
const (
	PathStartTest      = "/api/start-test"
	PathTestStatus     = "/api/test-status"
	PathSubmitFeedback = "/api/submit-feedback"
	PathResults        = "/api/results"
	PathServerInfo     = "/api/server-info"
	PathHealth         = "/api/health"
)

// Client talks to the speed-test backend.
// Requests carry a per-request timeout but no cancellation: a request that
// was sent runs to completion or timeout.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *fasthttp.Client
}

// New creates a backend client
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &fasthttp.Client{
			Name:                "speedtest-pro",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StartTest asks the backend to begin a test.
// POST {baseURL}/api/start-test
func (c *Client) StartTest() (*models.StartResponse, error) {
	var out models.StartResponse
	if err := c.do(fasthttp.MethodPost, PathStartTest, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestStatus fetches the status of the current test.
// GET {baseURL}/api/test-status
func (c *Client) TestStatus() (*models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.do(fasthttp.MethodGet, PathTestStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitFeedback posts a rating. The response body is ignored.
// POST {baseURL}/api/submit-feedback
func (c *Client) SubmitFeedback(fb models.FeedbackRequest) error {
	return c.do(fasthttp.MethodPost, PathSubmitFeedback, fb, nil)
}

// Results fetches the backend's current result and history.
// GET {baseURL}/api/results
func (c *Client) Results() (*models.ResultsResponse, error) {
	var out models.ResultsResponse
	if err := c.do(fasthttp.MethodGet, PathResults, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ServerInfo lists a few measurement servers known to the backend.
// GET {baseURL}/api/server-info
func (c *Client) ServerInfo() (*models.ServerListResponse, error) {
	var out models.ServerListResponse
	if err := c.do(fasthttp.MethodGet, PathServerInfo, nil, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("backend server-info error: %s", out.Error)
	}
	return &out, nil
}

// Health checks backend liveness.
// GET {baseURL}/api/health
func (c *Client) Health() (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.do(fasthttp.MethodGet, PathHealth, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one request and decodes the JSON reply into out when out is non-nil
func (c *Client) do(method, path string, body any, out any) error {
	url := c.baseURL + path

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(data)
	}

	start := time.Now()
	if err := c.httpClient.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	log.WithFields(log.Fields{
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode(),
		"elapsed": time.Since(start).String(),
	}).Debug("backend request")

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status code %d from %s: %s", code, path, strings.TrimSpace(string(resp.Body())))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
