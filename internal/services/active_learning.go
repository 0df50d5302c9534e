package services

import (
	"math"
	"sort"

	"github.com/alimgiray/gscout/internal/models"
)

// Default selection knobs
const (
	DefaultUncertaintyBand    = 0.1
	DefaultPromisingThreshold = 0.75
	DefaultQuota              = 5
)

// ActiveLearningSelector splits scored candidates into the ones worth annotating next
// (uncertain) and the ones worth acting on (promising).
type ActiveLearningSelector struct{}

func NewActiveLearningSelector() *ActiveLearningSelector {
	return &ActiveLearningSelector{}
}

// Partition returns candidates with |p-0.5| <= band, nearest to 0.5 first, and the remaining
// candidates with p >= threshold, highest first. The lists are disjoint.
func (s *ActiveLearningSelector) Partition(scored []*models.ScoredCandidate, band, threshold float64) (uncertain, promising []*models.ScoredCandidate) {
	uncertain = []*models.ScoredCandidate{}
	promising = []*models.ScoredCandidate{}
	for _, sc := range scored {
		switch {
		case isUncertain(sc.Probability, band):
			uncertain = append(uncertain, sc)
		case sc.Probability >= threshold:
			promising = append(promising, sc)
		}
	}
	SortUncertain(uncertain)
	SortPromising(promising)
	return uncertain, promising
}

// probabilityTolerance absorbs float noise in distances such as |0.45-0.5| vs |0.55-0.5|
const probabilityTolerance = 1e-9

func isUncertain(p, band float64) bool {
	return math.Abs(p-0.5) <= band+probabilityTolerance
}

// SortUncertain orders by ascending distance from 0.5, ties by login
func SortUncertain(list []*models.ScoredCandidate) {
	sort.SliceStable(list, func(i, j int) bool {
		di, dj := math.Abs(list[i].Probability-0.5), math.Abs(list[j].Probability-0.5)
		if math.Abs(di-dj) > probabilityTolerance {
			return di < dj
		}
		return list[i].ID() < list[j].ID()
	})
}

// SortPromising orders by descending probability, ties by login
func SortPromising(list []*models.ScoredCandidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Probability != list[j].Probability {
			return list[i].Probability > list[j].Probability
		}
		return list[i].ID() < list[j].ID()
	})
}

// Select takes up to half the quota from uncertain, backfills with promising, then with the
// remaining uncertain candidates, never repeating a login.
func (s *ActiveLearningSelector) Select(uncertain, promising []*models.ScoredCandidate, quota int) []*models.ScoredCandidate {
	selected := make([]*models.ScoredCandidate, 0, max(quota, 0))
	if quota <= 0 {
		return selected
	}
	taken := make(map[string]struct{})
	add := func(sc *models.ScoredCandidate) {
		if len(selected) >= quota {
			return
		}
		if _, dup := taken[sc.ID()]; dup {
			return
		}
		taken[sc.ID()] = struct{}{}
		selected = append(selected, sc)
	}

	head := min(quota/2, len(uncertain))
	for _, sc := range uncertain[:head] {
		add(sc)
	}
	for _, sc := range promising {
		add(sc)
	}
	for _, sc := range uncertain[head:] {
		add(sc)
	}
	return selected
}
