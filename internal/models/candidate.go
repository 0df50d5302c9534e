package models

import (
	"sort"
	"strings"
	"time"
)

// Annotation is the reviewer's binary label for a candidate
type Annotation int

const (
	AnnotationRejected Annotation = 0
	AnnotationAccepted Annotation = 1
)

func (a Annotation) Valid() bool {
	return a == AnnotationRejected || a == AnnotationAccepted
}

func (a Annotation) String() string {
	if a == AnnotationAccepted {
		return "accepted"
	}
	return "rejected"
}

// AccountTypeUser is the only account type the pipeline evaluates
const AccountTypeUser = "User"

// MaxSampleReadmeRunes bounds the readme excerpt kept on a candidate
const MaxSampleReadmeRunes = 2000

// Candidate represents one GitHub profile under evaluation
type Candidate struct {
	ID               string      `json:"id" db:"id"` // GitHub login
	Name             *string     `json:"name" db:"name"`
	Bio              *string     `json:"bio" db:"bio"`
	Location         *string     `json:"location" db:"location"`
	AccountType      string      `json:"account_type" db:"account_type"` // "User", "Organization", "Bot"
	FollowerCount    int         `json:"follower_count" db:"follower_count"`
	FollowingCount   int         `json:"following_count" db:"following_count"`
	PublicRepoCount  int         `json:"public_repo_count" db:"public_repo_count"`
	PublicGistCount  int         `json:"public_gist_count" db:"public_gist_count"`
	Companies        []string    `json:"companies" db:"companies"`
	MainLanguages    []string    `json:"main_languages" db:"main_languages"`
	TotalStars       int         `json:"total_stars" db:"total_stars"`
	TotalForks       int         `json:"total_forks" db:"total_forks"`
	ReposChecked     int         `json:"repos_checked" db:"repos_checked"`
	LastActivityDays *int        `json:"last_activity_days" db:"last_activity_days"`
	SampleReadme     string      `json:"sample_readme" db:"sample_readme"`
	ReadmeTexts      []string    `json:"-" db:"-"`
	ContactEmail     *string     `json:"contact_email" db:"contact_email"`
	ProfileURL       string      `json:"profile_url" db:"profile_url"`
	HeuristicScore   int         `json:"heuristic_score" db:"heuristic_score"`
	ModelProbability *float64    `json:"model_probability" db:"model_probability"`
	Annotation       *Annotation `json:"annotation" db:"annotation"`
	LastCheckedAt    time.Time   `json:"last_checked_at" db:"last_checked_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// NewCandidate creates a candidate for a login with normalized defaults
func NewCandidate(login string) *Candidate {
	return &Candidate{
		ID:            login,
		AccountType:   AccountTypeUser,
		Companies:     []string{},
		MainLanguages: []string{},
		LastCheckedAt: time.Now().UTC(),
	}
}

// IsRegular reports whether the candidate is a plain user account with enough public work
func (c *Candidate) IsRegular(minPublicRepos int) bool {
	return c.AccountType == AccountTypeUser && c.PublicRepoCount >= minPublicRepos
}

// IsAnnotated reports whether a reviewer has labeled the candidate
func (c *Candidate) IsAnnotated() bool {
	return c.Annotation != nil
}

// LocationText returns the location or "" when unset
func (c *Candidate) LocationText() string {
	if c.Location == nil {
		return ""
	}
	return *c.Location
}

// BioText returns the bio or "" when unset
func (c *Candidate) BioText() string {
	if c.Bio == nil {
		return ""
	}
	return *c.Bio
}

// Probability returns the model probability or 0 when unscored
func (c *Candidate) Probability() float64 {
	if c.ModelProbability == nil {
		return 0
	}
	return *c.ModelProbability
}

// NormalizeSet trims, deduplicates and sorts a string set. Empty entries are dropped.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ScoredCandidate pairs a candidate with the probability from one evaluation pass
type ScoredCandidate struct {
	Candidate   *Candidate `json:"candidate"`
	Probability float64    `json:"probability"`
}

// ID is a shortcut for the candidate login
func (s *ScoredCandidate) ID() string {
	return s.Candidate.ID
}

// Candidates unwraps a scored batch
func Candidates(scored []*ScoredCandidate) []*Candidate {
	out := make([]*Candidate, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Candidate)
	}
	return out
}
