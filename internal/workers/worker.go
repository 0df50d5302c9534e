package workers

import (
	"context"

	"github.com/alimgiray/gscout/internal/models"
)

// Runner interface defines the contract for one acquisition run
type Runner interface {
	// Run executes the run until it finishes or ctx is cancelled. It never returns nil;
	// failures are reported through the report's Success and Reason.
	Run(ctx context.Context, runID string, opts models.RunOptions) *models.RunReport
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, runID string, opts models.RunOptions) *models.RunReport

func (f RunnerFunc) Run(ctx context.Context, runID string, opts models.RunOptions) *models.RunReport {
	return f(ctx, runID, opts)
}
