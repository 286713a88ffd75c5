package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"speedtest-pro/internal/errorhandler"
	"speedtest-pro/pkg/models"
)

// timestampLayout matches the zone-less ISO-8601 timestamps real backends send
const timestampLayout = "2006-01-02T15:04:05.000000"

// nominal transfer window used to derive byte counters
const transferSeconds = 10

type step struct {
	phase    models.Phase
	progress []int
	message  string
}

func (s *Server) script() []step {
	return []step{
		{models.PhaseInitializing, []int{10}, "Initializing speed test..."},
		{models.PhaseFindingServer, []int{20}, "Finding optimal server..."},
		{models.PhaseServerFound, []int{30}, fmt.Sprintf("Connected to %s (%s)", s.sim.Sponsor, s.sim.ServerName)},
		{models.PhaseTestingDownload, []int{40, 50, 60}, "Testing download speed..."},
		{models.PhaseTestingUpload, []int{70, 80, 90}, "Testing upload speed..."},
	}
}

// runTest walks the scripted phases and publishes the outcome
func (s *Server) runTest(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Sprintf("Speed test failed: %v", r))
		}
	}()

	log.Info("Simulated speed test started")

	for _, st := range s.script() {
		if strings.EqualFold(s.sim.FailPhase, string(st.phase)) {
			s.setProgress(st.phase, st.progress[0], st.message)
			s.fail(fmt.Sprintf("Speed test failed: simulated failure during %s", st.phase))
			return
		}

		pause := s.stepDelay / time.Duration(len(st.progress))
		for _, p := range st.progress {
			s.setProgress(st.phase, p, st.message)
			if !sleepCtx(ctx, pause) {
				s.fail("Speed test failed: backend shutting down")
				return
			}
		}
	}

	s.complete(s.buildResult())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) setProgress(phase models.Phase, progress int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = models.Progress{
		Status:   models.StatusTesting,
		Phase:    phase,
		Progress: progress,
		Message:  message,
	}
	log.WithFields(log.Fields{"phase": phase, "progress": progress}).Debug("Simulated test progress")
}

func (s *Server) buildResult() *models.TestResult {
	city := s.sim.ServerName
	if i := strings.Index(city, ","); i >= 0 {
		city = city[:i]
	}

	return &models.TestResult{
		Download: round2(s.sim.Download),
		Upload:   round2(s.sim.Upload),
		Ping:     round2(s.sim.Ping),
		Jitter:   round2(s.sim.Jitter),
		Server: models.ServerInfo{
			Name:    s.sim.ServerName,
			Sponsor: s.sim.Sponsor,
			City:    city,
			Country: s.sim.Country,
			Host:    s.sim.Host,
			Latency: s.sim.Ping,
		},
		Timestamp:     time.Now().Format(timestampLayout),
		BytesSent:     int64(s.sim.Upload * 1e6 / 8 * transferSeconds),
		BytesReceived: int64(s.sim.Download * 1e6 / 8 * transferSeconds),
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func (s *Server) complete(result *models.TestResult) {
	if err := s.resultManager.AddResult(result); err != nil {
		log.Warnf("Failed to store simulated result: %v", err)
	}
	s.metrics.RecordResult(result.Download, result.Upload, result.Ping)

	s.mu.Lock()
	s.current = result
	s.testing = false
	s.progress = models.Progress{
		Status:   models.StatusCompleted,
		Phase:    models.PhaseCompleted,
		Progress: 100,
		Message:  "Test completed successfully",
	}
	s.mu.Unlock()

	log.Infof("Simulated test completed: Download: %.2f Mbps, Upload: %.2f Mbps, Ping: %.2f ms",
		result.Download, result.Upload, result.Ping)
}

func (s *Server) fail(message string) {
	s.metrics.RecordTestFailure(false)
	s.errorHandler.HandleError(errorhandler.CreateErrorInfo(errorhandler.ErrorTypeTest, errorhandler.SeverityHigh,
		message, "simulator", "server", "runTest"))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.testing = false
	s.progress = models.Progress{
		Status:   models.StatusError,
		Phase:    models.PhaseError,
		Progress: 0,
		Message:  message,
	}
}
