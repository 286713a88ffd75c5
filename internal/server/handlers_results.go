package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"speedtest-pro/internal/resultmanager"
	"speedtest-pro/pkg/models"
)

// getResults returns the latest result and the history
func (s *Server) getResults(c *gin.Context) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	c.JSON(http.StatusOK, models.ResultsResponse{
		Current: current,
		History: s.resultManager.GetResults(),
	})
}

// clearResults drops the stored results and resets the session metrics
func (s *Server) clearResults(c *gin.Context) {
	if s.IsTesting() {
		c.JSON(http.StatusConflict, gin.H{"error": "Test in progress"})
		return
	}

	s.resultManager.Clear()
	s.metrics.Reset()

	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"message": "results cleared"})
}

// exportResults exports the history in the requested format
func (s *Server) exportResults(c *gin.Context) {
	format, err := resultmanager.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format. Use csv, json, or txt"})
		return
	}
	sortBy := c.DefaultQuery("sort", resultmanager.SortByTime)
	ascending := c.DefaultQuery("order", "desc") == "asc"

	var contentType string
	switch format {
	case resultmanager.FormatCSV:
		contentType = "text/csv"
	case resultmanager.FormatJSON:
		contentType = "application/json"
	default:
		contentType = "text/plain"
	}
	filename := fmt.Sprintf("speedtest-%s.%s", time.Now().Format("20060102-150405"), format)

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	if err := s.resultManager.Export(c.Writer, format, sortBy, ascending); err != nil {
		_ = c.Error(err)
	}
}

// getServerInfo lists the servers the simulator pretends to know
func (s *Server) getServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, models.ServerListResponse{
		AvailableServers: []models.ServerInfo{{
			Name:    s.sim.ServerName,
			Country: s.sim.Country,
			Sponsor: s.sim.Sponsor,
			Host:    s.sim.Host,
		}},
		TotalServers: 1,
	})
}
