package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type HarvestConfig struct {
	KeyUsers           []string
	Workers            int
	PeerPageSize       int
	MinCandidates      int
	GlobalListingLimit int
	SearchLocations    []string
	SearchKeywords     []string
	SearchLanguage     string
	SearchFollowers    string
}

// Harvester collects candidate logins from peer lists, user search and the global listing
type Harvester struct {
	api *GitHubAPI
	cfg HarvestConfig
}

func NewHarvester(api *GitHubAPI, cfg HarvestConfig) *Harvester {
	return &Harvester{api: api, cfg: cfg}
}

// loginSet keeps first-seen order while deduplicating
type loginSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func newLoginSet() *loginSet {
	return &loginSet{seen: make(map[string]struct{})}
}

func (s *loginSet) add(logins ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range logins {
		if l == "" {
			continue
		}
		if _, ok := s.seen[l]; ok {
			continue
		}
		s.seen[l] = struct{}{}
		s.order = append(s.order, l)
	}
}

func (s *loginSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Candidates harvests peers of the key users and falls back to the global listing when
// fewer than MinCandidates were found
func (h *Harvester) Candidates(ctx context.Context) ([]string, error) {
	set := newLoginSet()

	peers, err := h.HarvestPeers(ctx)
	if err != nil {
		return nil, err
	}
	set.add(peers...)

	if len(set.list()) < h.cfg.MinCandidates {
		global, err := h.HarvestGlobal(ctx, h.cfg.GlobalListingLimit)
		if err != nil {
			return nil, err
		}
		set.add(global...)
	}
	return set.list(), nil
}

// HarvestPeers lists followers and followings of every key user on a bounded pool.
// A failing key user is logged and skipped.
func (h *Harvester) HarvestPeers(ctx context.Context) ([]string, error) {
	set := newLoginSet()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.cfg.Workers, 1))
	for _, key := range h.cfg.KeyUsers {
		for _, kind := range []PeerKind{PeerFollowers, PeerFollowing} {
			g.Go(func() error {
				logins, err := h.api.ListPeers(gctx, key, kind, max(h.cfg.PeerPageSize, 1))
				set.add(logins...)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					logger.WithFields(logrus.Fields{"username": key, "kind": kind}).
						WithError(err).Warn("Failed to harvest peers")
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set.list(), nil
}

// HarvestGlobal pages the global user listing until limit logins are collected
func (h *Harvester) HarvestGlobal(ctx context.Context, limit int) ([]string, error) {
	set := newLoginSet()
	var since int64
	const perPage = 100

	for len(set.list()) < limit {
		users, err := h.api.ListUsers(ctx, since, perPage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithError(err).Warn("Global user listing stopped early")
			break
		}
		if len(users) == 0 {
			break
		}
		for _, u := range users {
			if len(set.list()) >= limit {
				break
			}
			set.add(u.GetLogin())
			if id := u.GetID(); id > since {
				since = id
			}
		}
		if len(users) < perPage {
			break
		}
	}
	return set.list(), nil
}

// SearchQueries builds one user-search query per location and bio keyword pair
func (h *Harvester) SearchQueries() []string {
	var queries []string
	for _, loc := range h.cfg.SearchLocations {
		for _, kw := range h.cfg.SearchKeywords {
			q := fmt.Sprintf("location:%q", loc)
			if h.cfg.SearchFollowers != "" {
				q += " followers:" + h.cfg.SearchFollowers
			}
			if h.cfg.SearchLanguage != "" {
				q += " language:" + h.cfg.SearchLanguage
			}
			q += fmt.Sprintf(" %q in:bio", kw)
			queries = append(queries, q)
		}
	}
	return queries
}

// HarvestSearch runs every search query and collects the matching logins.
// A failing query is logged and skipped.
func (h *Harvester) HarvestSearch(ctx context.Context, perPage int) ([]string, error) {
	set := newLoginSet()
	for _, q := range h.SearchQueries() {
		result, err := h.api.SearchUsers(ctx, q, 1, perPage)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithField("query", q).WithError(err).Warn("User search failed")
			continue
		}
		for _, u := range result.Users {
			set.add(u.GetLogin())
		}
	}
	return set.list(), nil
}
