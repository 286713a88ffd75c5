package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"speedtest-pro/pkg/models"
)

const recentSamples = 5

// healthCheck reports liveness
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:             "healthy",
		Timestamp:          time.Now().Format(timestampLayout),
		SpeedtestAvailable: true,
	})
}

// getMetrics returns session statistics, raw metrics, history summary and error counts
func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session":           s.metrics.GetSessionStats(),
		"metrics":           s.metrics.GetAllMetrics(),
		"recent_results":    s.metrics.GetRecentSamples(recentSamples),
		"smoothed_download": s.metrics.GetSmoothedDownload(),
		"history":           s.resultManager.GetStats(),
		"error_stats":       s.errorHandler.GetErrorStats(),
		"testing":           s.IsTesting(),
		"timestamp":         time.Now(),
	})
}
