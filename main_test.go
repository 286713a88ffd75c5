package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speedtest-pro/internal/analysis"
	"speedtest-pro/internal/controller"
	"speedtest-pro/internal/errorhandler"
	"speedtest-pro/pkg/models"
)

type scriptedBackend struct {
	mu        sync.Mutex
	starts    int
	failFirst bool
}

func (b *scriptedBackend) StartTest() (*models.StartResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	if b.failFirst && b.starts == 1 {
		return nil, errors.New("connection refused")
	}
	return &models.StartResponse{Status: models.StatusStarted}, nil
}

func (b *scriptedBackend) TestStatus() (*models.StatusResponse, error) {
	return &models.StatusResponse{
		Status: models.StatusCompleted,
		Results: &models.TestResult{
			Download: 50, Upload: 10, Ping: 20,
			Server: models.ServerInfo{Sponsor: "Lab", City: "Oslo", Country: "Norway", Host: "lab.example:8080"},
		},
	}, nil
}

func (b *scriptedBackend) SubmitFeedback(models.FeedbackRequest) error { return nil }

func (b *scriptedBackend) startCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts
}

type silentView struct{}

func (silentView) ResetReadings() {}
func (silentView) HideError() {}
func (silentView) ShowError(string, string) {}
func (silentView) ShowProgress(string) {}
func (silentView) HideProgress() {}
func (silentView) SetTrigger(bool) {}
func (silentView) ShowServer(string, string, string) {}
func (silentView) ShowServerName(string) {}
func (silentView) ShowSpeed(float64) {}
func (silentView) ShowResults(*models.TestResult, []analysis.Fitness) {}

type goSubmitter struct{}

func (goSubmitter) Submit(task func()) error {
	go task()
	return nil
}

func newTestController(b controller.Backend, resetDelay time.Duration) *controller.Controller {
	return controller.New(b, silentView{}, goSubmitter{}, controller.Options{
		PollInterval: 5 * time.Millisecond,
		MaxPolls:     10,
		ResetDelay:   resetDelay,
	})
}

func TestRunSession_RunsBackToBack(t *testing.T) {
	backend := &scriptedBackend{}
	ctrl := newTestController(backend, 10*time.Millisecond)
	defer ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, runSession(ctx, ctrl, 3))
	assert.Equal(t, 3, backend.startCount())
	assert.Equal(t, 3, ctrl.History().GetResultCount())
}

func TestRunSession_RetriesAfterFailure(t *testing.T) {
	backend := &scriptedBackend{failFirst: true}
	ctrl := newTestController(backend, 10*time.Millisecond)
	defer ctrl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, runSession(ctx, ctrl, 2), "the last run decides the outcome")
	assert.Equal(t, 2, backend.startCount())
	assert.Equal(t, 1, ctrl.Errors().Count(errorhandler.ErrorTypeConnection))
	assert.Equal(t, 1, ctrl.History().GetResultCount())
}

func TestRunSession_InterruptedBetweenRuns(t *testing.T) {
	backend := &scriptedBackend{}
	ctrl := newTestController(backend, time.Hour)
	defer ctrl.Close()

	require.True(t, ctrl.StartTest(context.Background()))
	waitCtx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	_, err := ctrl.Wait(waitCtx)
	require.NoError(t, err)

	// the widget stays busy until the reset delay, so the next run waits
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err = runSession(ctx, ctrl, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, backend.startCount())
}

func TestValidateRate(t *testing.T) {
	tests := []struct {
		rate    int
		wantErr bool
	}{
		{rate: -1},
		{rate: 0},
		{rate: 10},
		{rate: -5, wantErr: true},
		{rate: -2, wantErr: true},
		{rate: 11, wantErr: true},
	}

	for _, tt := range tests {
		err := validateRate(tt.rate)
		if tt.wantErr {
			assert.Error(t, err, "rate %d", tt.rate)
		} else {
			assert.NoError(t, err, "rate %d", tt.rate)
		}
	}
}
