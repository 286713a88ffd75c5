package errorhandler

import (
	"errors"
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionError(t *testing.T) {
	eh := New()
	cause := io.ErrUnexpectedEOF

	err := eh.ConnectionError(cause)
	assert.Equal(t, TitleConnection, err.Title)
	assert.Equal(t, DescriptionConnection, err.Description)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, 1, eh.Count(ErrorTypeConnection))
}

func TestTestError_DefaultMessage(t *testing.T) {
	eh := New()

	assert.Equal(t, DescriptionTest, eh.TestError("").Description)
	assert.Equal(t, "Speed test failed: no servers", eh.TestError("Speed test failed: no servers").Description)

	err := eh.TestError("x")
	assert.True(t, errors.Is(err, ErrTestFailed))
	assert.Equal(t, 3, eh.Count(ErrorTypeTest))
}

func TestTimeoutError(t *testing.T) {
	eh := New()

	err := eh.TimeoutError(120)
	assert.Equal(t, TitleTimeout, err.Title)
	assert.Equal(t, DescriptionTimeout, err.Description)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "Timeout Error: Speed test took too long to complete. Please try again.", err.Error())
}

func TestGetErrorStatsIsACopy(t *testing.T) {
	eh := New()
	eh.HandleError(CreateErrorInfo(ErrorTypeFeedback, SeverityLow, "feedback lost", "submit-feedback", "controller", "SetRating"))

	stats := eh.GetErrorStats()
	require.Contains(t, stats, ErrorTypeFeedback)
	assert.Equal(t, 1, stats[ErrorTypeFeedback].TotalCount)
	assert.Equal(t, "feedback lost", stats[ErrorTypeFeedback].LastMessage)

	stats[ErrorTypeFeedback].TotalCount = 99
	assert.Equal(t, 1, eh.Count(ErrorTypeFeedback))
	assert.Equal(t, 0, eh.Count(ErrorTypePoll))
}

type hook struct{ levels []log.Level }

func (h *hook) Levels() []log.Level { return log.AllLevels }
func (h *hook) Fire(e *log.Entry) error {
	h.levels = append(h.levels, e.Level)
	return nil
}

func TestSeverityLogLevels(t *testing.T) {
	h := &hook{}
	log.AddHook(h)
	defer log.StandardLogger().ReplaceHooks(make(log.LevelHooks))

	eh := New()
	eh.HandleError(CreateErrorInfo(ErrorTypePoll, SeverityHigh, "a", "", "", ""))
	eh.HandleError(CreateErrorInfo(ErrorTypePoll, SeverityMedium, "b", "", "", ""))
	eh.HandleError(CreateErrorInfo(ErrorTypePoll, SeverityLow, "c", "", "", ""))

	assert.Equal(t, []log.Level{log.ErrorLevel, log.WarnLevel, log.InfoLevel}, h.levels)
}
