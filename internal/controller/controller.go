package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"speedtest-pro/internal/analysis"
	"speedtest-pro/internal/config"
	"speedtest-pro/internal/errorhandler"
	"speedtest-pro/internal/gauge"
	"speedtest-pro/internal/metrics"
	"speedtest-pro/internal/resultmanager"
	"speedtest-pro/pkg/models"
)

// Placeholder server card shown while a test starts
const (
	PlaceholderServerName     = "Finding optimal server..."
	PlaceholderServerLocation = "Please wait"
	PlaceholderServerID       = "Testing your connection speed"
	InitializingMessage       = "Initializing test..."
)

// MaxRating is the highest rating SetRating accepts
const MaxRating = 10

var (
	// ErrClosed is returned by Wait when the controller was closed mid-run
	ErrClosed = errors.New("controller closed")
	// ErrNoTest is returned by Wait before any test was started
	ErrNoTest = errors.New("no test started")
)

// Backend is the subset of the speed-test API the controller drives
type Backend interface {
	StartTest() (*models.StartResponse, error)
	TestStatus() (*models.StatusResponse, error)
	SubmitFeedback(fb models.FeedbackRequest) error
}

// View renders controller output. Calls are serialized and made while the
// controller lock is held, so implementations must not call back into the
// controller.
type View interface {
	ResetReadings()
	HideError()
	ShowError(title, description string)
	ShowProgress(message string)
	HideProgress()
	SetTrigger(enabled bool)
	ShowServer(name, location, id string)
	ShowServerName(name string)
	ShowSpeed(mbps float64)
	ShowResults(res *models.TestResult, fitness []analysis.Fitness)
}

// Submitter runs fire-and-forget work
type Submitter interface {
	Submit(task func()) error
}

// State is the controller's coarse lifecycle state
type State int

const (
	StateIdle State = iota
	StateTesting
)

func (s State) String() string {
	if s == StateTesting {
		return "testing"
	}
	return "idle"
}

// Options tunes polling and UI timing
type Options struct {
	PollInterval    time.Duration
	MaxPolls        int
	ResetDelay      time.Duration
	FeedbackComment string
}

// OptionsFromConfig builds Options from the application config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:    cfg.PollInterval(),
		MaxPolls:        cfg.Poll.MaxPolls,
		ResetDelay:      cfg.ResetDelay(),
		FeedbackComment: cfg.UI.FeedbackComment,
	}
}

// pollTask is the handle of one status poll loop.
// answered and rendered are guarded by the controller lock.
type pollTask struct {
	cancel   context.CancelFunc
	done     chan struct{}
	answered int
	rendered int
}

// run tracks one test from start to its terminal outcome
type run struct {
	id      uint64
	started time.Time
	done    chan struct{}
	result  *models.TestResult
	err     error
}

func (r *run) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Controller drives one speed test at a time against a Backend
type Controller struct {
	backend Backend
	view    View
	pool    Submitter
	opts    Options

	errs    *errorhandler.ErrorHandler
	metrics *metrics.Metrics
	history *resultmanager.ResultManager

	mu         sync.Mutex
	state      State
	rating     int
	task       *pollTask
	resetTimer *time.Timer
	run        *run
	runs       uint64
	idle       chan struct{}
	closed     bool
}

// New creates a controller. Zero option values fall back to the defaults.
func New(backend Backend, view View, pool Submitter, opts Options) *Controller {
	defaults := OptionsFromConfig(config.DefaultConfig())
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = defaults.MaxPolls
	}
	if opts.ResetDelay < 0 {
		opts.ResetDelay = defaults.ResetDelay
	}
	if opts.FeedbackComment == "" {
		opts.FeedbackComment = defaults.FeedbackComment
	}

	idle := make(chan struct{})
	close(idle)

	return &Controller{
		backend: backend,
		view:    view,
		pool:    pool,
		opts:    opts,
		errs:    errorhandler.New(),
		metrics: metrics.New(),
		history: resultmanager.New(resultmanager.DefaultMaxResults),
		rating:  -1,
		idle:    idle,
	}
}

// Errors returns the controller's error handler
func (c *Controller) Errors() *errorhandler.ErrorHandler { return c.errs }

// Metrics returns the controller's session metrics
func (c *Controller) Metrics() *metrics.Metrics { return c.metrics }

// History returns the results completed in this session
func (c *Controller) History() *resultmanager.ResultManager { return c.history }

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Polling reports whether a status poll loop is active
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task != nil
}

// Rating returns the last rating set, or -1
func (c *Controller) Rating() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rating
}

// StartTest starts a speed test. It returns false without doing anything
// when a test is already in progress or the controller is closed. The
// context bounds the poll loop; cancelling it abandons the test.
func (c *Controller) StartTest(ctx context.Context) bool {
	c.mu.Lock()
	if c.closed || c.state == StateTesting {
		c.mu.Unlock()
		return false
	}
	c.state = StateTesting
	c.idle = make(chan struct{})
	c.stopResetLocked()
	c.runs++
	r := &run{id: c.runs, started: time.Now(), done: make(chan struct{})}
	c.run = r

	c.view.ResetReadings()
	c.view.HideError()
	c.view.ShowProgress(InitializingMessage)
	c.view.SetTrigger(false)
	c.view.ShowServer(PlaceholderServerName, PlaceholderServerLocation, PlaceholderServerID)
	c.mu.Unlock()

	c.metrics.RecordTestStart()
	log.WithField("run", r.id).Info("Starting speed test")

	resp, err := c.backend.StartTest()
	if err == nil && resp.Status != models.StatusStarted {
		msg := resp.Message
		if msg == "" {
			msg = "Failed to start test"
		}
		err = fmt.Errorf("backend refused to start test: %s", msg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != r || r.finished() {
		return true
	}
	if err != nil {
		c.failLocked(r, c.errs.ConnectionError(err), false)
		return true
	}

	c.startPollingLocked(ctx, r)
	return true
}

// Retry hides the error banner and starts a new test
func (c *Controller) Retry(ctx context.Context) bool {
	c.mu.Lock()
	if !c.closed {
		c.view.HideError()
	}
	c.mu.Unlock()

	return c.StartTest(ctx)
}

// SetRating records the user's rating and submits it in the background.
// Submission failures are only logged.
func (c *Controller) SetRating(rating int) error {
	if rating < 0 || rating > MaxRating {
		return fmt.Errorf("rating %d out of range 0..%d", rating, MaxRating)
	}

	c.mu.Lock()
	c.rating = rating
	c.mu.Unlock()

	fb := models.FeedbackRequest{Rating: rating, Comments: c.opts.FeedbackComment}
	err := c.pool.Submit(func() {
		if err := c.backend.SubmitFeedback(fb); err != nil {
			c.errs.HandleError(errorhandler.CreateErrorInfo(errorhandler.ErrorTypeFeedback, errorhandler.SeverityLow,
				err.Error(), "submit-feedback", "controller", "SetRating"))
			return
		}
		c.metrics.RecordCounter(metrics.MetricFeedbackSent, 1)
		log.WithField("rating", fb.Rating).Debug("Feedback submitted")
	})
	if err != nil {
		return fmt.Errorf("failed to queue feedback: %w", err)
	}
	return nil
}

// Wait blocks until the current test reaches a result or a user-visible
// error, and returns that outcome.
func (c *Controller) Wait(ctx context.Context) (*models.TestResult, error) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r == nil {
		return nil, ErrNoTest
	}

	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitIdle blocks until the trigger is re-enabled after a test
func (c *Controller) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops polling, cancels the pending reset and releases waiters
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	task := c.task
	c.stopPollingLocked()
	c.stopResetLocked()
	if c.run != nil && !c.run.finished() {
		c.finishLocked(c.run, nil, ErrClosed)
	}
	c.markIdleLocked()
	c.mu.Unlock()

	if task != nil {
		<-task.done
	}
}

// startPollingLocked replaces any active poll loop with a new one
func (c *Controller) startPollingLocked(ctx context.Context, r *run) {
	c.stopPollingLocked()

	pctx, cancel := context.WithCancel(ctx)
	t := &pollTask{cancel: cancel, done: make(chan struct{})}
	c.task = t

	go c.poll(pctx, t, r)
}

// stopPollingLocked disposes of the active poll task, if any
func (c *Controller) stopPollingLocked() {
	if c.task != nil {
		c.task.cancel()
		c.task = nil
	}
}

func (c *Controller) stopResetLocked() {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
}

// poll dispatches one status request per tick without waiting for earlier
// requests to complete. After MaxPolls requests the next tick times out.
func (c *Controller) poll(ctx context.Context, t *pollTask, r *run) {
	defer close(t.done)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			c.abandon(t, r, ctx.Err())
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			c.abandon(t, r, ctx.Err())
			return
		}

		if polls >= c.opts.MaxPolls {
			c.timeout(t, r, polls)
			return
		}
		polls++
		go c.fetchStatus(t, r, polls)
	}
}

// fetchStatus performs the status request of tick seq
func (c *Controller) fetchStatus(t *pollTask, r *run, seq int) {
	start := time.Now()
	status, err := c.backend.TestStatus()
	c.metrics.RecordTimer(metrics.MetricPollLatency, time.Since(start))
	c.metrics.RecordCounter(metrics.MetricPolls, 1)

	c.handleStatus(t, r, seq, status, err)
}

// handleStatus applies the response to status request seq. Responses of a
// stopped task are dropped, and progress older than what is already shown
// is not rendered.
func (c *Controller) handleStatus(t *pollTask, r *run, seq int, status *models.StatusResponse, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task != t {
		log.WithFields(log.Fields{"run": r.id, "poll": seq}).Debug("Discarding status from stopped poll task")
		return
	}
	t.answered++

	if err != nil {
		c.metrics.RecordCounter(metrics.MetricPollErrors, 1)
		c.errs.HandleError(errorhandler.CreateErrorInfo(errorhandler.ErrorTypePoll, errorhandler.SeverityLow,
			err.Error(), "test-status", "controller", "poll"))
	} else {
		switch status.Status {
		case models.StatusTesting:
			if seq > t.rendered {
				t.rendered = seq
				c.renderProgressLocked(status.Progress)
			}
		case models.StatusCompleted:
			if status.Results != nil {
				c.stopPollingLocked()
				c.renderResultsLocked(r, status.Results)
				return
			}
			log.WithField("run", r.id).Warn("Completed status without results")
		case models.StatusError:
			c.stopPollingLocked()
			c.failLocked(r, c.errs.TestError(status.Message), false)
			return
		}
	}

	if t.answered >= c.opts.MaxPolls {
		c.stopPollingLocked()
		c.failLocked(r, c.errs.TimeoutError(t.answered), true)
	}
}

// timeout ends a run whose poll cap was reached before every request answered
func (c *Controller) timeout(t *pollTask, r *run, polls int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task != t {
		return
	}
	c.stopPollingLocked()
	c.failLocked(r, c.errs.TimeoutError(polls), true)
}

// abandon ends a run whose context was cancelled by the caller
func (c *Controller) abandon(t *pollTask, r *run, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task != t {
		return
	}
	c.stopPollingLocked()
	log.WithField("run", r.id).Warnf("Speed test abandoned: %v", cause)

	c.view.HideProgress()
	c.view.ShowSpeed(0)
	c.finishLocked(r, nil, cause)
	c.resetLocked()
}

func (c *Controller) renderProgressLocked(p *models.Progress) {
	if p == nil {
		return
	}
	if p.Message != "" {
		c.view.ShowProgress(p.Message)
	}
	if p.Phase == models.PhaseFindingServer || p.Phase == models.PhaseServerFound {
		c.view.ShowServerName(p.Message)
	}
	if speed, ok := gauge.SimulatedSpeed(p.Phase, p.Progress); ok {
		c.view.ShowSpeed(speed)
		c.metrics.RecordGauge(metrics.MetricLiveSpeed, speed)
	}
}

func (c *Controller) renderResultsLocked(r *run, res *models.TestResult) {
	c.view.HideProgress()
	c.view.ShowSpeed(res.Download)
	c.view.ShowResults(res, analysis.Analyze(res.Download, res.Upload, res.Ping))
	c.view.ShowServer(res.Server.Sponsor, res.Server.Location(), res.Server.Host)

	if err := c.history.AddResult(res); err != nil {
		log.Warnf("Failed to record result: %v", err)
	}
	c.metrics.RecordResult(res.Download, res.Upload, res.Ping)
	c.metrics.RecordTimer(metrics.MetricTestDuration, time.Since(r.started))

	log.WithFields(log.Fields{
		"run":      r.id,
		"download": res.Download,
		"upload":   res.Upload,
		"ping":     res.Ping,
		"server":   res.Server.Sponsor,
	}).Info("Speed test completed")

	c.finishLocked(r, res, nil)
	c.scheduleResetLocked(r)
}

// failLocked surfaces a user-visible error and schedules the reset
func (c *Controller) failLocked(r *run, uiErr *errorhandler.UIError, timedOut bool) {
	c.view.ShowError(uiErr.Title, uiErr.Description)
	c.view.HideProgress()
	c.view.ShowSpeed(0)
	c.metrics.RecordTestFailure(timedOut)

	c.finishLocked(r, nil, uiErr)
	c.scheduleResetLocked(r)
}

func (c *Controller) finishLocked(r *run, res *models.TestResult, err error) {
	if r.finished() {
		return
	}
	r.result = res
	r.err = err
	close(r.done)
}

func (c *Controller) scheduleResetLocked(r *run) {
	c.stopResetLocked()
	c.resetTimer = time.AfterFunc(c.opts.ResetDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.closed || c.run != r {
			return
		}
		c.resetTimer = nil
		c.resetLocked()
	})
}

// resetLocked re-enables the trigger and returns to idle
func (c *Controller) resetLocked() {
	c.stopPollingLocked()
	c.state = StateIdle
	c.markIdleLocked()
	c.view.SetTrigger(true)
}

func (c *Controller) markIdleLocked() {
	select {
	case <-c.idle:
	default:
		close(c.idle)
	}
}
