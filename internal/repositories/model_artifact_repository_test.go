package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelArtifactSlotOverwrite(t *testing.T) {
	ctx := context.Background()
	repo := NewModelArtifactRepository(openTestDB(t))

	_, err := repo.Get(ctx, models.CandidateClassifierSlot)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	schema := models.FeatureSchema{Numeric: []string{"followers"}, Categorical: []string{"location"}, Text: "bio"}
	first := models.NewModelArtifact(schema, []int{0, 1}, 10, []byte(`{"v":1}`))
	require.NoError(t, repo.Save(ctx, models.CandidateClassifierSlot, first))

	second := models.NewModelArtifact(schema, []int{1}, 4, []byte(`{"v":2}`))
	require.NoError(t, repo.Save(ctx, models.CandidateClassifierSlot, second))

	stored, err := repo.Get(ctx, models.CandidateClassifierSlot)
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)
	assert.Equal(t, []int{1}, stored.Classes)
	assert.Equal(t, 4, stored.TrainedOn)
	assert.Equal(t, schema, stored.FeatureSchema)
	assert.Equal(t, []byte(`{"v":2}`), stored.State)
}
