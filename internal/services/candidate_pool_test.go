package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeen(t *testing.T) {
	pool := NewCandidatePool(repositories.NewCandidateRepository(openTestDB(t)))

	assert.True(t, pool.MarkSeen("a"))
	assert.False(t, pool.MarkSeen("a"))
	assert.True(t, pool.MarkSeen("b"))

	run := pool.NewRun()
	assert.True(t, run.MarkSeen("a"), "a new run starts with an empty seen set")
}

func TestUnannotatedWithoutPrediction(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewCandidateRepository(openTestDB(t))
	pool := NewCandidatePool(repo)

	for i := range 7 {
		require.NoError(t, pool.Upsert(ctx, models.NewCandidate(fmt.Sprintf("fresh%d", i))))
	}
	scored := models.NewCandidate("scored")
	p := 0.4
	scored.ModelProbability = &p
	require.NoError(t, pool.Upsert(ctx, scored))
	require.NoError(t, pool.Upsert(ctx, models.NewCandidate("labeled")))
	require.NoError(t, repo.SetAnnotation(ctx, "labeled", models.AnnotationAccepted))

	var got []string
	for c, err := range pool.UnannotatedWithoutPrediction(ctx, 3) {
		require.NoError(t, err)
		got = append(got, c.ID)
	}
	assert.Len(t, got, 7)
	assert.NotContains(t, got, "scored")
	assert.NotContains(t, got, "labeled")

	known, err := pool.KnownIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"scored": {}, "labeled": {}}, known)

	isKnown, err := pool.IsKnown(ctx, "fresh0")
	require.NoError(t, err)
	assert.False(t, isKnown)
}

func TestUnannotatedWithoutPredictionStopsEarly(t *testing.T) {
	ctx := context.Background()
	pool := NewCandidatePool(repositories.NewCandidateRepository(openTestDB(t)))
	for i := range 5 {
		require.NoError(t, pool.Upsert(ctx, models.NewCandidate(fmt.Sprintf("c%d", i))))
	}

	n := 0
	for range pool.UnannotatedWithoutPrediction(ctx, 2) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}
