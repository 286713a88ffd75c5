package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest-pro/internal/config"
	"speedtest-pro/internal/errorhandler"
	"speedtest-pro/internal/metrics"
	"speedtest-pro/internal/resultmanager"
	"speedtest-pro/pkg/models"
)

// maxFeedback bounds the ratings kept in memory
const maxFeedback = 10

// Simulator-side metric names
const (
	metricStatusRequests   = "status_requests"
	metricFeedbackReceived = "feedback_received"
)

// Server is a simulated speed-test backend. It walks through the same
// phases as a real measurement and reports a configured result.
type Server struct {
	router        *gin.Engine
	sim           config.SimulatorConfig
	stepDelay     time.Duration
	resultManager *resultmanager.ResultManager
	metrics       *metrics.Metrics
	errorHandler  *errorhandler.ErrorHandler

	mu       sync.RWMutex
	testing  bool
	progress models.Progress
	current  *models.TestResult
	feedback []models.FeedbackRequest
	closed   bool

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	httpServer *http.Server
	httpMu     sync.Mutex
}

// New creates a new simulated backend
func New(cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		router:        router,
		sim:           cfg.Simulator,
		stepDelay:     cfg.StepDelay(),
		resultManager: resultmanager.New(resultmanager.DefaultMaxResults),
		metrics:       metrics.New(),
		errorHandler:  errorhandler.New(),
		progress:      idleProgress(),
		ctx:           ctx,
		cancel:        cancel,
	}

	s.setupRoutes()
	return s
}

func idleProgress() models.Progress {
	return models.Progress{
		Status:   models.StatusReady,
		Phase:    models.PhaseIdle,
		Progress: 0,
		Message:  "Ready to test",
	}
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.POST("/start-test", s.startTest)
		api.GET("/test-status", s.getTestStatus)
		api.GET("/test-progress", s.getTestProgress)
		api.POST("/submit-feedback", s.submitFeedback)

		api.GET("/results", s.getResults)
		api.DELETE("/results", s.clearResults)
		api.GET("/results/export/:format", s.exportResults)
		api.GET("/server-info", s.getServerInfo)

		api.GET("/health", s.healthCheck)
		api.GET("/metrics", s.getMetrics)
	}
}

// requestLogger logs each request through logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("Simulator request")
	}
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// IsTesting returns whether a test is running
func (s *Server) IsTesting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testing
}

// Feedback returns the most recent feedback received, oldest first
func (s *Server) Feedback() []models.FeedbackRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FeedbackRequest, len(s.feedback))
	copy(out, s.feedback)
	return out
}

// Run listens on addr and serves until Shutdown
func (s *Server) Run(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.httpMu.Lock()
	if s.ctx.Err() != nil {
		s.httpMu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServer = srv
	s.httpMu.Unlock()

	log.Infof("Simulated speed-test backend listening on http://%s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("simulator server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and any running test
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.httpMu.Lock()
	s.cancel()
	srv := s.httpServer
	s.httpMu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
