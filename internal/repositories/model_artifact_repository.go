package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/alimgiray/gscout/internal/models"
)

// ModelArtifactRepository stores trained models in named slots. Saving a slot replaces it wholesale.
type ModelArtifactRepository struct {
	db *sql.DB
}

func NewModelArtifactRepository(db *sql.DB) *ModelArtifactRepository {
	return &ModelArtifactRepository{db: db}
}

func (r *ModelArtifactRepository) Save(ctx context.Context, slot string, artifact *models.ModelArtifact) error {
	schema, err := json.Marshal(artifact.FeatureSchema)
	if err != nil {
		return err
	}
	classes, err := json.Marshal(artifact.Classes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO model_artifacts (slot, id, feature_schema, classes, trained_on, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id = excluded.id,
			feature_schema = excluded.feature_schema,
			classes = excluded.classes,
			trained_on = excluded.trained_on,
			state = excluded.state,
			created_at = excluded.created_at
	`
	_, err = r.db.ExecContext(ctx, query,
		slot, artifact.ID, string(schema), string(classes), artifact.TrainedOn, artifact.State, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save model artifact: %w", err)
	}
	return nil
}

// Get returns the artifact in slot, or sql.ErrNoRows when the slot is empty
func (r *ModelArtifactRepository) Get(ctx context.Context, slot string) (*models.ModelArtifact, error) {
	query := `SELECT id, feature_schema, classes, trained_on, state, created_at FROM model_artifacts WHERE slot = ?`

	var (
		artifact models.ModelArtifact
		schema   string
		classes  string
	)
	err := r.db.QueryRowContext(ctx, query, slot).Scan(
		&artifact.ID, &schema, &classes, &artifact.TrainedOn, &artifact.State, &artifact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(schema), &artifact.FeatureSchema); err != nil {
		return nil, fmt.Errorf("bad feature_schema column: %w", err)
	}
	if err := json.Unmarshal([]byte(classes), &artifact.Classes); err != nil {
		return nil, fmt.Errorf("bad classes column: %w", err)
	}
	return &artifact, nil
}
