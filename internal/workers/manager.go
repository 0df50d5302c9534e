package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrRunInProgress = errors.New("an acquisition run is already in progress")

// RunStatus is a snapshot of the manager for status endpoints
type RunStatus struct {
	State     string            `json:"state"`
	ActiveRun string            `json:"active_run,omitempty"`
	LastRun   *models.RunReport `json:"last_run"`
}

// RunManager runs at most one acquisition run at a time
type RunManager struct {
	runner Runner
	lock   RunLock
	state  atomic.Int32
	wg     sync.WaitGroup
	ctx    context.Context
	stop   context.CancelFunc

	mu     sync.Mutex
	active string
	cancel context.CancelFunc
	last   *models.RunReport
}

// NewRunManager creates a run manager. A nil lock falls back to an in-process LocalRunLock.
func NewRunManager(runner Runner, lock RunLock) *RunManager {
	if lock == nil {
		lock = NewLocalRunLock()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &RunManager{
		runner: runner,
		lock:   lock,
		ctx:    ctx,
		stop:   stop,
	}
}

// Start launches a run in the background and returns its id.
// It returns ErrRunInProgress if a run is active here or, with a lock, in another process.
func (m *RunManager) Start(ctx context.Context, opts models.RunOptions) (string, error) {
	if !m.state.CompareAndSwap(int32(models.RunStateIdle), int32(models.RunStateRunning)) {
		return "", ErrRunInProgress
	}

	runID := uuid.NewString()
	ok, err := m.lock.Acquire(ctx, runID)
	if err != nil {
		m.state.Store(int32(models.RunStateIdle))
		return "", fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		m.state.Store(int32(models.RunStateIdle))
		return "", ErrRunInProgress
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.active = runID
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx, cancel, runID, opts)
	return runID, nil
}

func (m *RunManager) run(ctx context.Context, cancel context.CancelFunc, runID string, opts models.RunOptions) {
	defer m.wg.Done()
	defer cancel()
	log := logger.WithRun(runID)
	log.WithField("mode", opts.Mode).Info("Acquisition run started")

	report := m.execute(ctx, runID, opts)

	releaseCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	if err := m.lock.Release(releaseCtx, runID); err != nil {
		log.WithError(err).Warn("Failed to release run lock")
	}
	done()

	m.mu.Lock()
	m.last = report
	m.active = ""
	m.cancel = nil
	m.mu.Unlock()
	m.state.Store(int32(models.RunStateIdle))

	log.WithFields(logrus.Fields{
		"success":   report.Success,
		"reason":    report.Reason,
		"harvested": report.Harvested,
		"evaluated": report.Evaluated,
		"selected":  len(report.Selected),
	}).Info("Acquisition run finished")
}

// execute runs the runner and turns a panic into a failed report
func (m *RunManager) execute(ctx context.Context, runID string, opts models.RunOptions) (report *models.RunReport) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithRun(runID).Errorf("Acquisition run panicked: %v", r)
			report = models.NewRunReport(runID, opts.Mode)
			report.Finish(false, fmt.Sprintf("run panicked: %v", r))
		}
	}()

	report = m.runner.Run(ctx, runID, opts)
	if report == nil {
		report = models.NewRunReport(runID, opts.Mode)
		report.Finish(false, "run produced no report")
	}
	return report
}

// Cancel stops the active run. It reports whether there was one.
func (m *RunManager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// State returns the current run state
func (m *RunManager) State() models.RunState {
	return models.RunState(m.state.Load())
}

// Status returns the run state together with the last finished report
func (m *RunManager) Status() RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RunStatus{
		State:     m.State().String(),
		ActiveRun: m.active,
		LastRun:   m.last,
	}
}

// Wait blocks until no run is active
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// StopAll cancels any active run and waits for it to finish
func (m *RunManager) StopAll() {
	logger.GetLogger().Info("Stopping acquisition runs...")
	m.stop()
	m.Wait()
	logger.GetLogger().Info("Acquisition runs stopped")
}
