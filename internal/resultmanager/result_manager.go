package resultmanager

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"speedtest-pro/pkg/models"
)

// DefaultMaxResults is how many results the history keeps
const DefaultMaxResults = 10

// ResultManager keeps a bounded history of finished speed tests
type ResultManager struct {
	results    []*models.TestResult
	mu         sync.RWMutex
	maxResults int
}

// ExportFormat represents different export formats
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatTXT  ExportFormat = "txt"
)

// Sort keys accepted by GetSortedResults
const (
	SortByDownload = "download"
	SortByUpload   = "upload"
	SortByPing     = "ping"
	SortByTime     = "time"
)

// ParseFormat validates an export format name
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatTXT:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s", s)
	}
}

// New creates a new result manager; maxResults <= 0 uses the default
func New(maxResults int) *ResultManager {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &ResultManager{
		results:    make([]*models.TestResult, 0, maxResults),
		maxResults: maxResults,
	}
}

// AddResult appends a result, dropping the oldest beyond the limit
func (rm *ResultManager) AddResult(result *models.TestResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.results = append(rm.results, result)
	if len(rm.results) > rm.maxResults {
		rm.results = rm.results[len(rm.results)-rm.maxResults:]
	}

	return nil
}

// Latest returns the most recent result, or nil
func (rm *ResultManager) Latest() *models.TestResult {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if len(rm.results) == 0 {
		return nil
	}
	return rm.results[len(rm.results)-1]
}

// GetResults returns a copy of all results, oldest first
func (rm *ResultManager) GetResults() []*models.TestResult {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	results := make([]*models.TestResult, len(rm.results))
	copy(results, rm.results)
	return results
}

// GetSortedResults returns results sorted by download, upload, ping or time.
// Unknown keys sort by download. Time order is insertion order.
func (rm *ResultManager) GetSortedResults(sortBy string, ascending bool) []*models.TestResult {
	results := rm.GetResults()
	if sortBy == SortByTime {
		if !ascending {
			for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
				results[i], results[j] = results[j], results[i]
			}
		}
		return results
	}

	sort.SliceStable(results, func(i, j int) bool {
		var a, b float64
		switch sortBy {
		case SortByUpload:
			a, b = results[i].Upload, results[j].Upload
		case SortByPing:
			a, b = results[i].Ping, results[j].Ping
		default:
			a, b = results[i].Download, results[j].Download
		}
		if ascending {
			return a < b
		}
		return a > b
	})

	return results
}

// GetStats summarizes the history
func (rm *ResultManager) GetStats() *models.HistoryStats {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	stats := &models.HistoryStats{Count: len(rm.results)}
	if len(rm.results) == 0 {
		return stats
	}

	var down, up, ping float64
	stats.LowestPing = rm.results[0].Ping
	for _, r := range rm.results {
		down += r.Download
		up += r.Upload
		ping += r.Ping
		if r.Download > stats.BestDownload {
			stats.BestDownload = r.Download
		}
		if r.Upload > stats.BestUpload {
			stats.BestUpload = r.Upload
		}
		if r.Ping < stats.LowestPing {
			stats.LowestPing = r.Ping
		}
	}

	n := float64(len(rm.results))
	stats.AverageDownload = down / n
	stats.AverageUpload = up / n
	stats.AveragePing = ping / n
	return stats
}

// Clear removes all results
func (rm *ResultManager) Clear() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.results = make([]*models.TestResult, 0, rm.maxResults)
}

// GetResultCount returns the current number of results
func (rm *ResultManager) GetResultCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.results)
}

// ExportToCSV exports results to CSV format
func (rm *ResultManager) ExportToCSV(writer io.Writer, sortBy string, ascending bool) error {
	results := rm.GetSortedResults(sortBy, ascending)

	csvWriter := csv.NewWriter(writer)

	header := []string{"Timestamp", "Download(Mbps)", "Upload(Mbps)", "Ping(ms)", "Jitter(ms)", "Server", "Location", "Host"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, result := range results {
		record := []string{
			result.Timestamp,
			fmt.Sprintf("%.2f", result.Download),
			fmt.Sprintf("%.2f", result.Upload),
			fmt.Sprintf("%.1f", result.Ping),
			fmt.Sprintf("%.1f", result.Jitter),
			result.Server.Sponsor,
			result.Server.Location(),
			result.Server.Host,
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ExportToJSON exports results and statistics to JSON format
func (rm *ResultManager) ExportToJSON(writer io.Writer, sortBy string, ascending bool) error {
	results := rm.GetSortedResults(sortBy, ascending)

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	exportData := map[string]interface{}{
		"timestamp":   time.Now().Format(time.RFC3339),
		"total_count": len(results),
		"results":     results,
		"statistics":  rm.GetStats(),
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// ExportToTXT exports results to human-readable text format
func (rm *ResultManager) ExportToTXT(writer io.Writer, sortBy string, ascending bool) error {
	results := rm.GetSortedResults(sortBy, ascending)
	stats := rm.GetStats()

	var b strings.Builder
	fmt.Fprintf(&b, "Speed Test History\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Total Results: %d\n", stats.Count)
	if stats.Count > 0 {
		fmt.Fprintf(&b, "Average: %.2f down / %.2f up Mbps, %.1f ms\n",
			stats.AverageDownload, stats.AverageUpload, stats.AveragePing)
	}
	fmt.Fprintf(&b, "\n")

	fmt.Fprintf(&b, "%-28s %-10s %-10s %-8s %-8s %-24s\n",
		"Timestamp", "Down", "Up", "Ping", "Jitter", "Server")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 92))

	for _, result := range results {
		fmt.Fprintf(&b, "%-28s %-10.2f %-10.2f %-8.1f %-8.1f %-24s\n",
			result.Timestamp,
			result.Download,
			result.Upload,
			result.Ping,
			result.Jitter,
			result.Server.Sponsor)
	}

	if _, err := io.WriteString(writer, b.String()); err != nil {
		return fmt.Errorf("failed to write text export: %w", err)
	}
	return nil
}

// Export exports results in the specified format
func (rm *ResultManager) Export(writer io.Writer, format ExportFormat, sortBy string, ascending bool) error {
	switch format {
	case FormatCSV:
		return rm.ExportToCSV(writer, sortBy, ascending)
	case FormatJSON:
		return rm.ExportToJSON(writer, sortBy, ascending)
	case FormatTXT:
		return rm.ExportToTXT(writer, sortBy, ascending)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}
