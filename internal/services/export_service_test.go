package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func exportFixture(t *testing.T) *ExportService {
	t.Helper()
	ctx := context.Background()
	repo := repositories.NewCandidateRepository(openTestDB(t))

	high := models.NewCandidate("high")
	high.Location = strPtr("Enna")
	high.Companies = []string{"acme", "foo"}
	high.HeuristicScore = 30
	p := 0.8768
	high.ModelProbability = &p
	require.NoError(t, repo.Upsert(ctx, high))

	low := models.NewCandidate("low")
	low.HeuristicScore = -4
	require.NoError(t, repo.Upsert(ctx, low))
	require.NoError(t, repo.SetAnnotation(ctx, "low", models.AnnotationRejected))

	return NewExportService(repo)
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    ExportFormat
		wantErr bool
	}{
		{in: "csv", want: ExportCSV},
		{in: "XLSX", want: ExportXLSX},
		{in: "excel", want: ExportXLSX},
		{in: "json", want: ExportJSON},
		{in: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExportFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, exportFixture(t).Export(context.Background(), ExportCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])

	assert.Equal(t, "high", records[1][0])
	assert.Equal(t, "Enna", records[1][2])
	assert.Equal(t, "acme;foo", records[1][8])
	assert.Equal(t, "0.877", records[1][15])
	assert.Equal(t, "", records[1][16])

	assert.Equal(t, "low", records[2][0])
	assert.Equal(t, "0", records[2][16])
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, exportFixture(t).Export(context.Background(), ExportJSON, &buf))

	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0]["id"])
	assert.NotContains(t, out[0], "ReadmeTexts")
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, exportFixture(t).Export(context.Background(), ExportXLSX, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Candidates")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "username", rows[0][0])
	assert.Equal(t, "high", rows[1][0])
	assert.Equal(t, "low", rows[2][0])
}
