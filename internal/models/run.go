package models

import (
	"time"
)

// RunState is the acquisition pipeline's run-state enum
type RunState int32

const (
	RunStateIdle RunState = iota
	RunStateRunning
)

func (s RunState) String() string {
	if s == RunStateRunning {
		return "running"
	}
	return "idle"
}

// RunMode selects how an acquisition run discovers and ranks candidates
type RunMode string

const (
	RunModeHeuristic      RunMode = "heuristic"
	RunModeActiveLearning RunMode = "active_learning"
)

func (m RunMode) Valid() bool {
	return m == RunModeHeuristic || m == RunModeActiveLearning
}

// RunOptions are the caller-tunable knobs of one run
type RunOptions struct {
	Mode               RunMode `json:"mode"`
	Limit              int     `json:"limit"`
	UncertaintyBand    float64 `json:"uncertainty_band"`
	PromisingThreshold float64 `json:"promising_threshold"`
}

// RunReport summarizes a finished (or in-flight) acquisition run
type RunReport struct {
	RunID      string       `json:"run_id"`
	Mode       RunMode      `json:"mode"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at"`
	Success    bool         `json:"success"`
	Reason     string       `json:"reason"`
	Harvested  int          `json:"harvested"`
	Evaluated  int          `json:"evaluated"`
	Batches    int          `json:"batches"`
	Uncertain  int          `json:"uncertain"`
	Promising  int          `json:"promising"`
	Selected   []*Candidate `json:"selected"`
}

// NewRunReport starts a report for a run
func NewRunReport(runID string, mode RunMode) *RunReport {
	return &RunReport{
		RunID:     runID,
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Selected:  []*Candidate{},
	}
}

// Finish stamps the report with its outcome
func (r *RunReport) Finish(success bool, reason string) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.Success = success
	r.Reason = reason
}
