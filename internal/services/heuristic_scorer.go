package services

import (
	"strings"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/pkg/config"
)

// FailedFetchScore marks a profile that could not be fetched. It is excluded from ranking.
const FailedFetchScore = -999

// ScoringProfile holds the keyword and location sets the heuristic scorer matches against
type ScoringProfile struct {
	NearbyCities      []string
	RegionalLocations []string
	BioKeywords       []string
	ReadmeKeywords    []string
}

// ScoringProfileFromConfig builds a profile from the scoring config section
func ScoringProfileFromConfig(sc config.ScoringConfig) ScoringProfile {
	nearby := sc.NearbyCities
	if sc.MyCity != "" {
		nearby = append([]string{sc.MyCity}, nearby...)
	}
	return ScoringProfile{
		NearbyCities:      nearby,
		RegionalLocations: sc.RegionalLocations,
		BioKeywords:       sc.BioKeywords,
		ReadmeKeywords:    sc.ReadmeKeywords,
	}
}

// HeuristicScorer computes a deterministic relevance score from a candidate record
type HeuristicScorer struct {
	nearby   []string
	regional []string
	bio      []string
	readme   []string
}

func NewHeuristicScorer(profile ScoringProfile) *HeuristicScorer {
	return &HeuristicScorer{
		nearby:   lowerSet(profile.NearbyCities),
		regional: lowerSet(profile.RegionalLocations),
		bio:      lowerSet(profile.BioKeywords),
		readme:   lowerSet(profile.ReadmeKeywords),
	}
}

func lowerSet(values []string) []string {
	return models.NormalizeSet(mapLower(values))
}

func mapLower(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

// Score sums independent location, bio, audience and readme signals. A nil candidate scores
// FailedFetchScore.
func (s *HeuristicScorer) Score(c *models.Candidate) int {
	if c == nil {
		return FailedFetchScore
	}

	score := s.locationScore(c.LocationText())

	bio := strings.ToLower(strings.TrimSpace(c.BioText()))
	if bio == "" {
		score -= 2
	} else {
		score += 3 * countHits(bio, s.bio)
	}

	followers, following := c.FollowerCount, c.FollowingCount
	switch {
	case followers >= 50 && followers <= 1000:
		score += 5
	case followers < 20:
		score -= 3
	case followers > 5000:
		score -= 5
	}

	switch {
	case following >= 30 && following <= 500:
		score += 3
	case following < 5:
		score -= 3
	}

	if following > 0 {
		ratio := float64(followers) / float64(following)
		switch {
		case ratio >= 0.5 && ratio <= 5:
			score += 4
		case ratio < 0.2 || ratio > 10:
			score -= 4
		}
	}

	for _, text := range c.ReadmeTexts {
		score += 2 * countHits(strings.ToLower(text), s.readme)
	}

	return score
}

// locationScore: an empty location takes a single -2 and no other location rule applies
func (s *HeuristicScorer) locationScore(location string) int {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return -2
	}
	if containsAny(loc, s.nearby) {
		return 15
	}
	if containsAny(loc, s.regional) {
		return 8
	}
	return -5
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// countHits counts distinct keywords found in text
func countHits(text string, keywords []string) int {
	hits := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			hits++
		}
	}
	return hits
}
