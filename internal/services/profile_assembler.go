package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
	"github.com/google/go-github/v57/github"
)

var (
	readmeEmailPattern  = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	profileEmailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	mailtoPattern       = regexp.MustCompile(`mailto:([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
)

// ProfileAssembler turns GitHub profile, repository and readme data into a normalized Candidate
type ProfileAssembler struct {
	api      *GitHubAPI
	scorer   *HeuristicScorer
	maxRepos int
	ttl      time.Duration
	cache    *sfcache.TieredCache[string, *models.Candidate]
	now      func() time.Time
}

func NewProfileAssembler(api *GitHubAPI, scorer *HeuristicScorer, maxRepos int, ttl time.Duration) (*ProfileAssembler, error) {
	cache, err := sfcache.NewTiered[string, *models.Candidate](null.New[string, *models.Candidate](), sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return &ProfileAssembler{
		api:      api,
		scorer:   scorer,
		maxRepos: maxRepos,
		ttl:      ttl,
		cache:    cache,
		now:      time.Now,
	}, nil
}

// Assemble builds the candidate for username. A nil candidate with a nil error means "skip":
// the profile does not exist or could not be fetched. The error is non-nil only when ctx ends.
// Concurrent calls for the same login share one fetch; not-found results are cached too.
func (a *ProfileAssembler) Assemble(ctx context.Context, username string) (*models.Candidate, error) {
	log := logger.WithField("username", username)

	c, err := a.cache.GetSet(ctx, strings.ToLower(username), func(ctx context.Context) (*models.Candidate, error) {
		return a.build(ctx, username)
	}, a.ttl)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrRejected) {
			log.WithError(err).Debug("Skipping candidate, profile request rejected")
			return nil, nil
		}
		log.WithError(err).Warn("Skipping candidate, profile fetch failed")
		return nil, nil
	}
	if c == nil {
		log.Debug("Skipping candidate, profile not found")
		return nil, nil
	}

	// Callers may set per-run fields, so hand out a copy of the cached record
	cp := *c
	return &cp, nil
}

// build returns (nil, nil) for a missing profile so that outcome is cached
func (a *ProfileAssembler) build(ctx context.Context, username string) (*models.Candidate, error) {
	user, err := a.api.GetUser(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	c := models.NewCandidate(user.GetLogin())
	if c.ID == "" {
		c.ID = username
	}
	c.Name = user.Name
	c.Bio = nonEmpty(user.Bio)
	c.Location = nonEmpty(user.Location)
	if t := user.GetType(); t != "" {
		c.AccountType = t
	}
	c.FollowerCount = user.GetFollowers()
	c.FollowingCount = user.GetFollowing()
	c.PublicRepoCount = user.GetPublicRepos()
	c.PublicGistCount = user.GetPublicGists()
	c.Companies = splitCompanies(user.GetCompany())
	c.ProfileURL = user.GetHTMLURL()
	c.LastCheckedAt = a.now().UTC()

	repos, err := a.api.ListRecentRepos(ctx, c.ID, a.maxRepos)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WithField("username", username).WithError(err).Warn("Could not list repositories")
	}
	a.applyRepos(ctx, c, repos)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c.ContactEmail = a.findEmail(ctx, user, c)
	c.HeuristicScore = a.scorer.Score(c)
	return c, nil
}

func (a *ProfileAssembler) applyRepos(ctx context.Context, c *models.Candidate, repos []*github.Repository) {
	var languages []string
	var latest time.Time
	c.ReadmeTexts = make([]string, 0, len(repos))

	for _, repo := range repos {
		if lang := repo.GetLanguage(); lang != "" {
			languages = append(languages, lang)
		}
		c.TotalStars += repo.GetStargazersCount()
		c.TotalForks += repo.GetForksCount()
		if updated := repo.GetUpdatedAt().Time; updated.After(latest) {
			latest = updated
		}

		// Readmes are best-effort: a missing one is empty text
		readme, err := a.api.GetReadme(ctx, repo.GetFullName())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			readme = ""
		}
		c.ReadmeTexts = append(c.ReadmeTexts, readme)
		if c.SampleReadme == "" && strings.TrimSpace(readme) != "" {
			c.SampleReadme = truncateRunes(readme, models.MaxSampleReadmeRunes)
		}
	}

	c.ReposChecked = len(repos)
	c.MainLanguages = models.NormalizeSet(languages)
	if !latest.IsZero() {
		days := int(a.now().Sub(latest).Hours() / 24)
		if days < 0 {
			days = 0
		}
		c.LastActivityDays = &days
	}
}

// findEmail tries the public email field, then the readmes, then the profile page
func (a *ProfileAssembler) findEmail(ctx context.Context, user *github.User, c *models.Candidate) *string {
	if email := strings.TrimSpace(user.GetEmail()); email != "" {
		return &email
	}
	if email := readmeEmailPattern.FindString(strings.Join(c.ReadmeTexts, "\n")); email != "" {
		return &email
	}

	page, err := a.api.ProfilePage(ctx, c.ID)
	if err != nil {
		return nil
	}
	if m := mailtoPattern.FindStringSubmatch(page); m != nil {
		return &m[1]
	}
	if email := profileEmailPattern.FindString(page); email != "" {
		return &email
	}
	return nil
}

func splitCompanies(company string) []string {
	parts := strings.Split(company, ",")
	for i, p := range parts {
		parts[i] = strings.TrimPrefix(strings.TrimSpace(p), "@")
	}
	return models.NormalizeSet(parts)
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
