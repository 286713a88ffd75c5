package workerpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// WorkerPool runs fire-and-forget tasks on a bounded ants pool
type WorkerPool struct {
	workerCount int
	pool        *ants.Pool
	wg          sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	submitted   int64
	panicked    int64
}

// WorkerPoolStats represents statistics about the worker pool
type WorkerPoolStats struct {
	WorkerCount   int   `json:"worker_count"`
	ActiveWorkers int   `json:"active_workers"`
	FreeWorkers   int   `json:"free_workers"`
	Running       bool  `json:"running"`
	Submitted     int64 `json:"submitted"`
	Panicked      int64 `json:"panicked"`
}

// New creates a worker pool; it is not running until Start
func New(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{workerCount: workerCount}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return fmt.Errorf("worker pool is already running")
	}

	pool, err := ants.NewPool(wp.workerCount, ants.WithNonblocking(false))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	wp.pool = pool
	wp.running = true
	log.Debugf("Worker pool started with %d workers", wp.workerCount)
	return nil
}

// Submit queues a task. It blocks while every worker is busy.
func (wp *WorkerPool) Submit(task func()) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool is not running")
	}
	pool := wp.pool
	wp.submitted++
	wp.wg.Add(1)
	wp.mu.Unlock()

	err := pool.Submit(func() {
		defer wp.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				wp.mu.Lock()
				wp.panicked++
				wp.mu.Unlock()
				log.Errorf("worker pool task panicked: %v", p)
			}
		}()
		task()
	})
	if err != nil {
		wp.wg.Done()
		return fmt.Errorf("failed to submit task: %w", err)
	}
	return nil
}

// Stop waits up to timeout for queued tasks, then releases the pool
func (wp *WorkerPool) Stop(timeout time.Duration) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return fmt.Errorf("worker pool is not running")
	}
	wp.running = false
	pool := wp.pool
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("All worker pool tasks finished")
	case <-time.After(timeout):
		log.Warnf("Timeout waiting for worker pool tasks after %v, releasing anyway", timeout)
	}

	pool.Release()
	return nil
}

// IsRunning returns whether the worker pool is currently running
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// GetWorkerCount returns the number of workers in the pool
func (wp *WorkerPool) GetWorkerCount() int {
	return wp.workerCount
}

// GetStats returns current statistics about the worker pool
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	stats := WorkerPoolStats{
		WorkerCount: wp.workerCount,
		Running:     wp.running,
		Submitted:   wp.submitted,
		Panicked:    wp.panicked,
	}
	if wp.pool != nil && wp.running {
		stats.ActiveWorkers = wp.pool.Running()
		stats.FreeWorkers = wp.pool.Free()
	}
	return stats
}
