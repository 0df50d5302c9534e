package ml

import (
	"strings"

	"github.com/alimgiray/gscout/internal/models"
)

// UnknownCategory fills categorical columns a candidate has no value for
const UnknownCategory = "unknown"

// CandidateSchema is the column layout every candidate model is trained on
var CandidateSchema = models.FeatureSchema{
	Numeric: []string{
		"followers", "following", "public_repos", "public_gists",
		"total_stars", "total_forks", "heuristic_score",
	},
	Categorical: []string{"location", "company", "main_languages"},
	Text:        "bio",
}

// Row is one vectorization input: raw numeric, categorical and text values in schema order
type Row struct {
	Numeric     []float64
	Categorical []string
	Text        string
}

// CandidateRow extracts a Row from a candidate. Missing numeric values are zero, missing
// categories are UnknownCategory and a missing bio is empty text.
func CandidateRow(c *models.Candidate) Row {
	return Row{
		Numeric: []float64{
			float64(c.FollowerCount),
			float64(c.FollowingCount),
			float64(c.PublicRepoCount),
			float64(c.PublicGistCount),
			float64(c.TotalStars),
			float64(c.TotalForks),
			float64(c.HeuristicScore),
		},
		Categorical: []string{
			category(c.LocationText()),
			category(strings.Join(c.Companies, ";")),
			category(strings.Join(c.MainLanguages, ";")),
		},
		Text: c.BioText(),
	}
}

// CandidateRows vectorizes a slice of candidates
func CandidateRows(candidates []*models.Candidate) []Row {
	rows := make([]Row, len(candidates))
	for i, c := range candidates {
		rows[i] = CandidateRow(c)
	}
	return rows
}

func category(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return UnknownCategory
	}
	return v
}
