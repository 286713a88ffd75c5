package models

// Test status values reported by the backend
const (
	StatusReady     = "ready"
	StatusStarted   = "started"
	StatusTesting   = "testing"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Phase is the backend-reported stage of an in-flight test
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseInitializing    Phase = "initializing"
	PhaseFindingServer   Phase = "finding_server"
	PhaseServerFound     Phase = "server_found"
	PhaseTestingDownload Phase = "testing_download"
	PhaseTestingUpload   Phase = "testing_upload"
	PhaseCompleted       Phase = "completed"
	PhaseError           Phase = "error"
)

// ServerInfo describes the measurement server picked by the backend
type ServerInfo struct {
	Name     string  `json:"name"`
	Sponsor  string  `json:"sponsor"`
	City     string  `json:"city"`
	Country  string  `json:"country"`
	Host     string  `json:"host"`
	Distance float64 `json:"distance,omitempty"`
	Latency  float64 `json:"latency,omitempty"`
}

// Location returns "city, country"
func (s ServerInfo) Location() string {
	return s.City + ", " + s.Country
}

// TestResult is one completed speed test
type TestResult struct {
	Download      float64    `json:"download"` // Mbps
	Upload        float64    `json:"upload"`   // Mbps
	Ping          float64    `json:"ping"`     // ms
	Jitter        float64    `json:"jitter"`   // ms
	Server        ServerInfo `json:"server"`
	Timestamp     string     `json:"timestamp"` // ISO-8601, zone optional
	PacketLoss    float64    `json:"packet_loss"`
	BytesSent     int64      `json:"bytes_sent"`
	BytesReceived int64      `json:"bytes_received"`
	ShareURL      string     `json:"share_url"`
}

// Progress is a snapshot of an in-flight test
type Progress struct {
	Status   string `json:"status"`
	Phase    Phase  `json:"current_phase"`
	Progress int    `json:"progress"` // 0-100
	Message  string `json:"message"`
}

// StartResponse is the reply to POST /api/start-test
type StartResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is the reply to GET /api/test-status
type StatusResponse struct {
	Status   string      `json:"status"`
	Progress *Progress   `json:"progress,omitempty"`
	Results  *TestResult `json:"results,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// FeedbackRequest is the body of POST /api/submit-feedback
type FeedbackRequest struct {
	Rating   int    `json:"rating"`
	Comments string `json:"comments"`
}

// ResultsResponse is the reply to GET /api/results
type ResultsResponse struct {
	Current *TestResult   `json:"current"`
	History []*TestResult `json:"history"`
}

// ServerListResponse is the reply to GET /api/server-info
type ServerListResponse struct {
	AvailableServers []ServerInfo `json:"available_servers"`
	TotalServers     int          `json:"total_servers"`
	Error            string       `json:"error,omitempty"`
}

// HealthResponse is the reply to GET /api/health
type HealthResponse struct {
	Status             string `json:"status"`
	Timestamp          string `json:"timestamp"`
	SpeedtestAvailable bool   `json:"speedtest_available"`
}

// HistoryStats summarizes a result history
type HistoryStats struct {
	Count           int     `json:"count"`
	AverageDownload float64 `json:"average_download"`
	AverageUpload   float64 `json:"average_upload"`
	AveragePing     float64 `json:"average_ping"`
	BestDownload    float64 `json:"best_download"`
	BestUpload      float64 `json:"best_upload"`
	LowestPing      float64 `json:"lowest_ping"`
}
