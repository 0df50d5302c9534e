package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alimgiray/gscout/internal/ml"
	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/alimgiray/gscout/pkg/config"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoLabeledData = errors.New("no annotated candidates to train on")
	ErrModelNotFound = errors.New("no trained model available")
)

// ModelLoadError wraps a stored artifact that could not be decoded
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// FitParamsFromConfig maps the model config section onto pipeline parameters
func FitParamsFromConfig(mc config.ModelConfig) ml.FitParams {
	return ml.FitParams{
		Forest: ml.ForestParams{
			Trees:           mc.Trees,
			MaxDepth:        mc.MaxDepth,
			MinSamplesSplit: mc.MinSamplesSplit,
			MinSamplesLeaf:  mc.MinSamplesLeaf,
			Seed:            mc.Seed,
		},
		MaxFeatures: mc.MaxFeatures,
	}
}

// TrainedModel is a decoded artifact ready for inference
type TrainedModel struct {
	Artifact *models.ModelArtifact
	pipeline *ml.Pipeline
}

// Predict returns the accepted-class probability for each candidate
func (m *TrainedModel) Predict(candidates []*models.Candidate) ([]float64, error) {
	return m.pipeline.PredictProba(ml.CandidateRows(candidates)), nil
}

// ModelService owns the candidate classifier: training, the stored slot and the in-memory registry
type ModelService struct {
	candidates *repositories.CandidateRepository
	artifacts  *repositories.ModelArtifactRepository
	params     ml.FitParams
	recorder   *metrics.Recorder

	current atomic.Pointer[TrainedModel]
	loadMu  sync.Mutex
	trainMu sync.Mutex
}

func NewModelService(candidates *repositories.CandidateRepository, artifacts *repositories.ModelArtifactRepository,
	params ml.FitParams, recorder *metrics.Recorder) *ModelService {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &ModelService{candidates: candidates, artifacts: artifacts, params: params, recorder: recorder}
}

// Train fits a new model on every annotated candidate, stores it in the slot and swaps the
// registry. With no annotations it returns ErrNoLabeledData and changes nothing.
func (s *ModelService) Train(ctx context.Context) (*models.ModelArtifact, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()
	started := time.Now()

	labeled, err := s.candidates.ListAnnotated(ctx)
	if err != nil {
		s.recorder.Training("error", 0)
		return nil, fmt.Errorf("failed to load annotated candidates: %w", err)
	}
	if len(labeled) == 0 {
		s.recorder.Training("no_labeled_data", 0)
		return nil, ErrNoLabeledData
	}

	labels := make([]int, len(labeled))
	for i, c := range labeled {
		labels[i] = int(*c.Annotation)
	}

	pipeline, err := ml.Fit(ml.CandidateSchema, ml.CandidateRows(labeled), labels, s.params)
	if err != nil {
		s.recorder.Training("error", 0)
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}
	state, err := pipeline.Marshal()
	if err != nil {
		s.recorder.Training("error", 0)
		return nil, fmt.Errorf("failed to serialize model: %w", err)
	}

	artifact := models.NewModelArtifact(ml.CandidateSchema, pipeline.Classes, len(labeled), state)
	if err := s.artifacts.Save(ctx, models.CandidateClassifierSlot, artifact); err != nil {
		s.recorder.Training("error", 0)
		return nil, err
	}

	// Only swap once the stored state decodes
	model, err := decodeArtifact(artifact)
	if err != nil {
		s.recorder.Training("error", 0)
		return nil, err
	}
	s.current.Store(model)

	elapsed := time.Since(started)
	s.recorder.Training("success", elapsed)
	logger.WithFields(logrus.Fields{
		"artifact_id": artifact.ID,
		"trained_on":  artifact.TrainedOn,
		"classes":     artifact.Classes,
		"duration":    elapsed.String(),
	}).Info("Trained candidate classifier")
	return artifact, nil
}

// CurrentModel returns the registered model, loading it from the slot on first use
func (s *ModelService) CurrentModel(ctx context.Context) (*TrainedModel, error) {
	if m := s.current.Load(); m != nil {
		return m, nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if m := s.current.Load(); m != nil {
		return m, nil
	}

	artifact, err := s.artifacts.Get(ctx, models.CandidateClassifierSlot)
	if err == sql.ErrNoRows {
		return nil, ErrModelNotFound
	}
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}

	model, err := decodeArtifact(artifact)
	if err != nil {
		return nil, err
	}
	s.current.CompareAndSwap(nil, model)
	return s.current.Load(), nil
}

// Predictor returns the current model as a Predictor for the batch evaluator
func (s *ModelService) Predictor(ctx context.Context) (Predictor, error) {
	m, err := s.CurrentModel(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeArtifact(artifact *models.ModelArtifact) (*TrainedModel, error) {
	pipeline, err := ml.Decode(artifact.State)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	return &TrainedModel{Artifact: artifact, pipeline: pipeline}, nil
}
