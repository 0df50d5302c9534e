package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Predictor scores candidates with the probability of being accepted
type Predictor interface {
	Predict(candidates []*models.Candidate) ([]float64, error)
}

// Assembler builds a candidate for a login; nil means skip
type Assembler interface {
	Assemble(ctx context.Context, username string) (*models.Candidate, error)
}

type EvaluatorConfig struct {
	BatchSize      int
	Workers        int
	MaxBatches     int
	MinPublicRepos int
}

// EvaluationOptions tune one evaluation loop
type EvaluationOptions struct {
	Quota              int
	UncertaintyBand    float64
	PromisingThreshold float64
	RunID              string
}

// Stop reasons reported by Run
const (
	StopQuotaMet       = "quota met"
	StopQueueExhausted = "queue exhausted"
	StopBatchCap       = "batch cap reached"
	StopCancelled      = "cancelled"
)

// EvaluationResult is what one evaluation loop produced
type EvaluationResult struct {
	Uncertain  []*models.ScoredCandidate
	Promising  []*models.ScoredCandidate
	Selected   []*models.ScoredCandidate
	Evaluated  int
	Batches    int
	StopReason string
}

// BatchEvaluator assembles candidates on a bounded pool, scores each batch with the model and
// persists every evaluated candidate before selection.
type BatchEvaluator struct {
	assembler Assembler
	selector  *ActiveLearningSelector
	cfg       EvaluatorConfig
	recorder  *metrics.Recorder
}

func NewBatchEvaluator(assembler Assembler, selector *ActiveLearningSelector, cfg EvaluatorConfig, recorder *metrics.Recorder) *BatchEvaluator {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &BatchEvaluator{assembler: assembler, selector: selector, cfg: cfg, recorder: recorder}
}

// EvaluateBatch assembles ids concurrently, drops failures and non-regular accounts, and scores
// the survivors with one model call. Probabilities are rounded to 3 decimals. Input order is kept.
func (e *BatchEvaluator) EvaluateBatch(ctx context.Context, ids []string, model Predictor) ([]*models.ScoredCandidate, error) {
	assembled := make([]*models.Candidate, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.cfg.Workers, 1))
	for i, id := range ids {
		g.Go(func() error {
			c, err := e.assembler.Assemble(gctx, id)
			if err != nil {
				return err
			}
			assembled[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	survivors := make([]*models.Candidate, 0, len(ids))
	for _, c := range assembled {
		if c == nil || !c.IsRegular(e.cfg.MinPublicRepos) {
			continue
		}
		survivors = append(survivors, c)
	}
	if len(survivors) == 0 {
		return []*models.ScoredCandidate{}, nil
	}

	probs, err := model.Predict(survivors)
	if err != nil {
		return nil, fmt.Errorf("batch prediction failed: %w", err)
	}
	if len(probs) != len(survivors) {
		return nil, fmt.Errorf("model returned %d probabilities for %d candidates", len(probs), len(survivors))
	}

	scored := make([]*models.ScoredCandidate, len(survivors))
	for i, c := range survivors {
		p := math.Round(probs[i]*1000) / 1000
		c.ModelProbability = &p
		scored[i] = &models.ScoredCandidate{Candidate: c, Probability: p}
	}
	return scored, nil
}

// Run pulls batches from queue until the quota is met (both lists full), the queue runs out,
// MaxBatches is reached or ctx ends. Each id is dispatched at most once per pool run view.
// A cancelled loop returns the partial result together with the context error.
func (e *BatchEvaluator) Run(ctx context.Context, queue []string, model Predictor, pool *CandidatePool, opts EvaluationOptions) (*EvaluationResult, error) {
	log := logger.WithRun(opts.RunID)
	result := &EvaluationResult{
		Uncertain: []*models.ScoredCandidate{},
		Promising: []*models.ScoredCandidate{},
		Selected:  []*models.ScoredCandidate{},
	}
	batchSize := max(e.cfg.BatchSize, 1)

	finish := func(reason string) *EvaluationResult {
		SortUncertain(result.Uncertain)
		SortPromising(result.Promising)
		result.Selected = e.selector.Select(result.Uncertain, result.Promising, opts.Quota)
		result.StopReason = reason
		return result
	}

	next := 0
	for {
		if err := ctx.Err(); err != nil {
			return finish(StopCancelled), err
		}
		if len(result.Uncertain) >= opts.Quota && len(result.Promising) >= opts.Quota {
			return finish(StopQuotaMet), nil
		}
		if e.cfg.MaxBatches > 0 && result.Batches >= e.cfg.MaxBatches {
			return finish(StopBatchCap), nil
		}

		batch := make([]string, 0, batchSize)
		for next < len(queue) && len(batch) < batchSize {
			id := queue[next]
			next++
			if pool.MarkSeen(id) {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return finish(StopQueueExhausted), nil
		}

		started := time.Now()
		scored, err := e.EvaluateBatch(ctx, batch, model)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StopCancelled), ctx.Err()
			}
			return finish(err.Error()), err
		}

		// Persist before selecting so a crash never loses evaluated predictions
		if err := e.persist(ctx, pool, scored); err != nil {
			return finish(err.Error()), err
		}

		uncertain, promising := e.selector.Partition(scored, opts.UncertaintyBand, opts.PromisingThreshold)
		result.Uncertain = appendCapped(result.Uncertain, uncertain, opts.Quota)
		result.Promising = appendCapped(result.Promising, promising, opts.Quota)
		result.Evaluated += len(scored)
		result.Batches++
		e.recorder.Batch(len(scored), time.Since(started))

		log.WithFields(logrus.Fields{
			"batch":      result.Batches,
			"dispatched": len(batch),
			"evaluated":  len(scored),
			"uncertain":  len(result.Uncertain),
			"promising":  len(result.Promising),
		}).Info("Evaluated batch")
	}
}

func (e *BatchEvaluator) persist(ctx context.Context, pool *CandidatePool, scored []*models.ScoredCandidate) error {
	var errs []error
	for _, sc := range scored {
		if err := pool.Upsert(ctx, sc.Candidate); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to persist %d candidates: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func appendCapped(dst, src []*models.ScoredCandidate, limit int) []*models.ScoredCandidate {
	for _, sc := range src {
		if len(dst) >= limit {
			break
		}
		dst = append(dst, sc)
	}
	return dst
}
