package errorhandler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeTest       ErrorType = "test"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypePoll       ErrorType = "poll"
	ErrorTypeFeedback   ErrorType = "feedback"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// Sentinels for the user-visible error kinds, usable with errors.Is
var (
	ErrConnection = errors.New("connection error")
	ErrTestFailed = errors.New("test error")
	ErrTimeout    = errors.New("timeout error")
)

// Banner texts
const (
	TitleConnection       = "Connection Error"
	DescriptionConnection = "Failed to start speed test. Please check your internet connection."
	TitleTest             = "Test Error"
	DescriptionTest       = "Speed test failed"
	TitleTimeout          = "Timeout Error"
	DescriptionTimeout    = "Speed test took too long to complete. Please try again."
)

// UIError is an error shown to the user in the error banner
type UIError struct {
	Type        ErrorType
	Title       string
	Description string
	Cause       error
}

func (e *UIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Description, e.Cause)
	}
	return e.Title + ": " + e.Description
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *UIError) Unwrap() []error {
	errs := []error{sentinelFor(e.Type)}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func sentinelFor(t ErrorType) error {
	switch t {
	case ErrorTypeConnection:
		return ErrConnection
	case ErrorTypeTest:
		return ErrTestFailed
	case ErrorTypeTimeout:
		return ErrTimeout
	default:
		return nil
	}
}

// ErrorInfo contains detailed information about an error
type ErrorInfo struct {
	Type      ErrorType     `json:"type"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Context   string        `json:"context"`
	Timestamp time.Time     `json:"timestamp"`
	Component string        `json:"component"`
	Operation string        `json:"operation"`
	Details   interface{}   `json:"details,omitempty"`
}

// ErrorStats tracks statistics for each error type
type ErrorStats struct {
	TotalCount   int       `json:"total_count"`
	LastOccurred time.Time `json:"last_occurred"`
	LastMessage  string    `json:"last_message"`
}

// ErrorHandler classifies, counts and logs errors. It never retries:
// user-visible errors wait for the user to start a new test.
type ErrorHandler struct {
	mu         sync.RWMutex
	errorStats map[ErrorType]*ErrorStats
	logger     *log.Entry
}

// New creates a new error handler
func New() *ErrorHandler {
	return &ErrorHandler{
		errorStats: make(map[ErrorType]*ErrorStats),
		logger:     log.WithField("component", "errorhandler"),
	}
}

// ConnectionError records a failed start request
func (eh *ErrorHandler) ConnectionError(cause error) *UIError {
	info := CreateErrorInfo(ErrorTypeConnection, SeverityHigh, errString(cause), "start-test", "controller", "StartTest")
	eh.HandleError(info)

	return &UIError{
		Type:        ErrorTypeConnection,
		Title:       TitleConnection,
		Description: DescriptionConnection,
		Cause:       cause,
	}
}

// TestError records a failure reported by the backend.
// An empty message falls back to the generic description.
func (eh *ErrorHandler) TestError(message string) *UIError {
	if message == "" {
		message = DescriptionTest
	}
	info := CreateErrorInfo(ErrorTypeTest, SeverityHigh, message, "test-status", "controller", "poll")
	eh.HandleError(info)

	return &UIError{
		Type:        ErrorTypeTest,
		Title:       TitleTest,
		Description: message,
	}
}

// TimeoutError records a poll loop that hit its cap
func (eh *ErrorHandler) TimeoutError(polls int) *UIError {
	info := CreateErrorInfo(ErrorTypeTimeout, SeverityMedium, fmt.Sprintf("no result after %d polls", polls), "test-status", "controller", "poll")
	info.Details = map[string]int{"polls": polls}
	eh.HandleError(info)

	return &UIError{
		Type:        ErrorTypeTimeout,
		Title:       TitleTimeout,
		Description: DescriptionTimeout,
	}
}

// HandleError updates statistics and logs the error
func (eh *ErrorHandler) HandleError(errorInfo *ErrorInfo) {
	eh.mu.Lock()
	stats := eh.getOrCreateErrorStats(errorInfo.Type)
	stats.TotalCount++
	stats.LastOccurred = errorInfo.Timestamp
	stats.LastMessage = errorInfo.Message
	eh.mu.Unlock()

	eh.logError(errorInfo)
}

// GetErrorStats returns error statistics for all error types
func (eh *ErrorHandler) GetErrorStats() map[ErrorType]*ErrorStats {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	result := make(map[ErrorType]*ErrorStats)
	for errorType, stats := range eh.errorStats {
		result[errorType] = &ErrorStats{
			TotalCount:   stats.TotalCount,
			LastOccurred: stats.LastOccurred,
			LastMessage:  stats.LastMessage,
		}
	}

	return result
}

// Count returns how many errors of a type were handled
func (eh *ErrorHandler) Count(errorType ErrorType) int {
	eh.mu.RLock()
	defer eh.mu.RUnlock()

	if stats, ok := eh.errorStats[errorType]; ok {
		return stats.TotalCount
	}
	return 0
}

// getOrCreateErrorStats must be called with the lock held
func (eh *ErrorHandler) getOrCreateErrorStats(errorType ErrorType) *ErrorStats {
	if stats, exists := eh.errorStats[errorType]; exists {
		return stats
	}

	stats := &ErrorStats{}
	eh.errorStats[errorType] = stats
	return stats
}

// logError logs an error with structured fields
func (eh *ErrorHandler) logError(errorInfo *ErrorInfo) {
	fields := log.Fields{
		"type":      errorInfo.Type,
		"severity":  errorInfo.Severity,
		"context":   errorInfo.Context,
		"operation": errorInfo.Operation,
		"source":    errorInfo.Component,
	}
	if errorInfo.Details != nil {
		fields["details"] = errorInfo.Details
	}

	entry := eh.logger.WithFields(fields)
	switch errorInfo.Severity {
	case SeverityCritical, SeverityHigh:
		entry.Error(errorInfo.Message)
	case SeverityMedium:
		entry.Warn(errorInfo.Message)
	case SeverityLow:
		entry.Info(errorInfo.Message)
	default:
		entry.Error(errorInfo.Message)
	}
}

// CreateErrorInfo creates a new ErrorInfo instance
func CreateErrorInfo(errorType ErrorType, severity ErrorSeverity, message, context, component, operation string) *ErrorInfo {
	return &ErrorInfo{
		Type:      errorType,
		Severity:  severity,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Component: component,
		Operation: operation,
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
