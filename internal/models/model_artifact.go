package models

import (
	"time"

	"github.com/google/uuid"
)

// CandidateClassifierSlot is the single named slot the trained model lives in
const CandidateClassifierSlot = "candidate_classifier"

// FeatureSchema lists the input columns a model was trained on, in order
type FeatureSchema struct {
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
	Text        string   `json:"text"`
}

// ModelArtifact is a trained classifier together with its feature pipeline
type ModelArtifact struct {
	ID            string        `json:"id" db:"id"`
	FeatureSchema FeatureSchema `json:"feature_schema" db:"feature_schema"`
	Classes       []int         `json:"classes" db:"classes"`
	TrainedOn     int           `json:"trained_on" db:"trained_on"`
	State         []byte        `json:"-" db:"state"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// NewModelArtifact creates an artifact with a fresh ID
func NewModelArtifact(schema FeatureSchema, classes []int, trainedOn int, state []byte) *ModelArtifact {
	return &ModelArtifact{
		ID:            uuid.New().String(),
		FeatureSchema: schema,
		Classes:       classes,
		TrainedOn:     trainedOn,
		State:         state,
		CreatedAt:     time.Now().UTC(),
	}
}
