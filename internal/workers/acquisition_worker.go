package workers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/services"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrNoCandidates = errors.New("no new candidates to evaluate")

// CandidateSource discovers candidate logins
type CandidateSource interface {
	Candidates(ctx context.Context) ([]string, error)
	HarvestSearch(ctx context.Context, perPage int) ([]string, error)
}

// FollowChecker reports whether the authenticated account already follows a login
type FollowChecker interface {
	IsFollowing(ctx context.Context, login string) (bool, error)
}

// ModelSource hands out the current classifier
type ModelSource interface {
	Predictor(ctx context.Context) (services.Predictor, error)
}

type AcquisitionConfig struct {
	DefaultLimit       int
	Quota              int
	UncertaintyBand    float64
	PromisingThreshold float64
	MinPublicRepos     int
	Workers            int
	SearchPerPage      int
	PoolPageSize       int
}

// AcquisitionDeps are the collaborators of an AcquisitionWorker
type AcquisitionDeps struct {
	Source    CandidateSource
	Assembler services.Assembler
	Follows   FollowChecker
	Pool      *services.CandidatePool
	Models    ModelSource
	Evaluator *services.BatchEvaluator
	Buffer    *ResultBuffer
}

// AcquisitionWorker executes one acquisition run in either heuristic or active-learning mode
type AcquisitionWorker struct {
	deps    AcquisitionDeps
	cfg     AcquisitionConfig
	shuffle func([]string)
}

func NewAcquisitionWorker(deps AcquisitionDeps, cfg AcquisitionConfig) *AcquisitionWorker {
	return &AcquisitionWorker{
		deps: deps,
		cfg:  cfg,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
}

// Run implements Runner
func (w *AcquisitionWorker) Run(ctx context.Context, runID string, opts models.RunOptions) *models.RunReport {
	if opts.Mode == "" {
		opts.Mode = models.RunModeActiveLearning
	}
	report := models.NewRunReport(runID, opts.Mode)
	if !opts.Mode.Valid() {
		report.Finish(false, fmt.Sprintf("unknown run mode %q", opts.Mode))
		return report
	}

	var err error
	if opts.Mode == models.RunModeHeuristic {
		err = w.runHeuristic(ctx, runID, opts, report)
	} else {
		err = w.runActiveLearning(ctx, runID, opts, report)
	}

	switch {
	case err == nil:
		if report.Reason == "" {
			report.Reason = fmt.Sprintf("%d candidates selected", len(report.Selected))
		}
		report.Finish(true, report.Reason)
	case errors.Is(err, context.Canceled):
		report.Finish(false, services.StopCancelled)
	default:
		report.Finish(false, err.Error())
	}
	return report
}

func (w *AcquisitionWorker) limit(opts models.RunOptions) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	if w.cfg.DefaultLimit > 0 {
		return w.cfg.DefaultLimit
	}
	return services.DefaultQuota
}

// runHeuristic searches users, skips accounts already followed, assembles and stores each one
// and keeps the best heuristic scores
func (w *AcquisitionWorker) runHeuristic(ctx context.Context, runID string, opts models.RunOptions, report *models.RunReport) error {
	log := logger.WithRun(runID)
	limit := w.limit(opts)
	pool := w.deps.Pool.NewRun()

	logins, err := w.deps.Source.HarvestSearch(ctx, max(w.cfg.SearchPerPage, limit))
	if err != nil {
		return fmt.Errorf("user search failed: %w", err)
	}
	report.Harvested = len(logins)

	var (
		mu     sync.Mutex
		scored []*models.Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.cfg.Workers, 1))
	for _, login := range logins {
		if !pool.MarkSeen(login) {
			continue
		}
		g.Go(func() error {
			if w.deps.Follows != nil {
				followed, err := w.deps.Follows.IsFollowing(gctx, login)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				if err != nil {
					log.WithField("username", login).WithError(err).Warn("Could not check follow status")
				}
				if followed {
					log.WithField("username", login).Debug("Already followed, skipping")
					return nil
				}
			}

			c, err := w.deps.Assembler.Assemble(gctx, login)
			if err != nil {
				return err
			}
			if c == nil || !c.IsRegular(w.cfg.MinPublicRepos) {
				return nil
			}
			if err := pool.Upsert(gctx, c); err != nil {
				return fmt.Errorf("failed to store %s: %w", login, err)
			}

			mu.Lock()
			scored = append(scored, c)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].HeuristicScore != scored[j].HeuristicScore {
			return scored[i].HeuristicScore > scored[j].HeuristicScore
		}
		return scored[i].ID < scored[j].ID
	})
	report.Evaluated = len(scored)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	report.Selected = scored
	w.deps.Buffer.Push(scored...)
	return nil
}

// runActiveLearning harvests fresh logins, scores them in batches with the current model and
// pushes the selector's picks
func (w *AcquisitionWorker) runActiveLearning(ctx context.Context, runID string, opts models.RunOptions, report *models.RunReport) error {
	log := logger.WithRun(runID)

	model, err := w.deps.Models.Predictor(ctx)
	if err != nil {
		return err
	}

	queue, err := w.queue(ctx)
	if err != nil {
		return err
	}
	report.Harvested = len(queue)
	if len(queue) == 0 {
		return ErrNoCandidates
	}
	log.WithField("queue", len(queue)).Info("Candidate queue ready")

	evalOpts := services.EvaluationOptions{
		Quota:              w.limit(opts),
		UncertaintyBand:    firstPositive(opts.UncertaintyBand, w.cfg.UncertaintyBand, services.DefaultUncertaintyBand),
		PromisingThreshold: firstPositive(opts.PromisingThreshold, w.cfg.PromisingThreshold, services.DefaultPromisingThreshold),
		RunID:              runID,
	}
	if opts.Limit <= 0 && w.cfg.Quota > 0 {
		evalOpts.Quota = w.cfg.Quota
	}

	result, err := w.deps.Evaluator.Run(ctx, queue, model, w.deps.Pool.NewRun(), evalOpts)
	if result != nil {
		report.Evaluated = result.Evaluated
		report.Batches = result.Batches
		report.Uncertain = len(result.Uncertain)
		report.Promising = len(result.Promising)
		report.Selected = models.Candidates(result.Selected)
		report.Reason = result.StopReason
		// Partial results of a cancelled run are still worth reviewing
		w.deps.Buffer.Push(report.Selected...)
	}
	return err
}

// queue merges harvested logins with stored candidates that were never scored, drops everything
// already annotated or predicted and shuffles the rest
func (w *AcquisitionWorker) queue(ctx context.Context) ([]string, error) {
	harvested, err := w.deps.Source.Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest failed: %w", err)
	}

	known, err := w.deps.Pool.KnownIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load known candidates: %w", err)
	}

	seen := make(map[string]struct{}, len(harvested))
	var queue []string
	add := func(id string) {
		if _, ok := known[id]; ok {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		queue = append(queue, id)
	}

	for _, id := range harvested {
		add(id)
	}
	for c, err := range w.deps.Pool.UnannotatedWithoutPrediction(ctx, w.cfg.PoolPageSize) {
		if err != nil {
			return nil, fmt.Errorf("failed to list stored candidates: %w", err)
		}
		add(c.ID)
	}

	w.shuffle(queue)
	logger.WithFields(logrus.Fields{"harvested": len(harvested), "known": len(known), "queued": len(queue)}).
		Debug("Built candidate queue")
	return queue, nil
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
