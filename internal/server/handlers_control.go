package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"speedtest-pro/pkg/models"
)

// startTest starts a simulated test unless one is already running.
// A refused start still answers 200, with status "error".
func (s *Server) startTest(c *gin.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.JSON(http.StatusServiceUnavailable, models.StartResponse{
			Status:  models.StatusError,
			Message: "Server is shutting down.",
		})
		return
	}
	if s.testing {
		s.mu.Unlock()
		c.JSON(http.StatusOK, models.StartResponse{
			Status:  models.StatusError,
			Message: "Test already in progress. Please wait for the current test to complete.",
		})
		return
	}
	s.testing = true
	s.progress = models.Progress{
		Status:   models.StatusTesting,
		Phase:    models.PhaseInitializing,
		Progress: 10,
		Message:  "Initializing speed test...",
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.RecordTestStart()
	go s.runTest(s.ctx)

	c.JSON(http.StatusOK, models.StartResponse{
		Status:  models.StatusStarted,
		Message: "Speed test started successfully. Please wait while we measure your connection speed.",
	})
}

// getTestStatus reports progress, plus results once completed
func (s *Server) getTestStatus(c *gin.Context) {
	s.mu.RLock()
	progress := s.progress
	current := s.current
	s.mu.RUnlock()
	s.metrics.RecordCounter(metricStatusRequests, 1)

	resp := models.StatusResponse{
		Status:   progress.Status,
		Progress: &progress,
		Message:  progress.Message,
	}
	if progress.Status == models.StatusCompleted && current != nil {
		resp.Results = current
		resp.Message = ""
	}

	c.JSON(http.StatusOK, resp)
}

// getTestProgress returns the raw progress snapshot
func (s *Server) getTestProgress(c *gin.Context) {
	s.mu.RLock()
	progress := s.progress
	s.mu.RUnlock()

	c.JSON(http.StatusOK, progress)
}

// submitFeedback logs and stores a user rating
func (s *Server) submitFeedback(c *gin.Context) {
	var fb models.FeedbackRequest
	if err := c.ShouldBindJSON(&fb); err != nil {
		log.Errorf("Error submitting feedback: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Failed to submit feedback"})
		return
	}

	s.mu.Lock()
	s.feedback = append(s.feedback, fb)
	if len(s.feedback) > maxFeedback {
		s.feedback = s.feedback[len(s.feedback)-maxFeedback:]
	}
	s.mu.Unlock()
	s.metrics.RecordCounter(metricFeedbackReceived, 1)

	log.WithFields(log.Fields{"rating": fb.Rating, "comments": fb.Comments}).Info("Feedback received")
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Thank you for your feedback!"})
}
