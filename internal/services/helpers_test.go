package services

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alimgiray/gscout/internal/models"
	"github.com/alimgiray/gscout/pkg/database"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeGitHub impersonates the parts of the GitHub REST API and web profile the pipeline reads
type fakeGitHub struct {
	mu        sync.Mutex
	users     map[string]map[string]interface{}
	repos     map[string][]map[string]interface{}
	readmes   map[string]string
	pages     map[string]string
	followers map[string][]string
	following map[string]bool
	userHits  map[string]*atomic.Int32
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		users:     map[string]map[string]interface{}{},
		repos:     map[string][]map[string]interface{}{},
		readmes:   map[string]string{},
		pages:     map[string]string{},
		followers: map[string][]string{},
		following: map[string]bool{},
		userHits:  map[string]*atomic.Int32{},
	}
}

func (f *fakeGitHub) addUser(login string, fields map[string]interface{}) {
	user := map[string]interface{}{
		"login":        login,
		"type":         "User",
		"html_url":     "https://github.com/" + login,
		"followers":    200,
		"following":    100,
		"public_repos": 10,
		"public_gists": 1,
	}
	for k, v := range fields {
		user[k] = v
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[login] = user
	f.userHits[login] = &atomic.Int32{}
}

func (f *fakeGitHub) addRepo(login, name, language string, stars int, readme string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	full := login + "/" + name
	f.repos[login] = append(f.repos[login], map[string]interface{}{
		"name":             name,
		"full_name":        full,
		"language":         language,
		"stargazers_count": stars,
		"forks_count":      1,
		"updated_at":       time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339),
	})
	if readme != "" {
		f.readmes[full] = readme
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "web":
		page, ok := f.pages[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	case len(parts) == 2 && parts[0] == "users":
		user, ok := f.users[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		f.userHits[parts[1]].Add(1)
		writeJSON(w, user)
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "repos":
		repos := f.repos[parts[1]]
		if repos == nil {
			repos = []map[string]interface{}{}
		}
		writeJSON(w, repos)
	case len(parts) == 3 && parts[0] == "users" && (parts[2] == "followers" || parts[2] == "following"):
		var out []map[string]interface{}
		if r.URL.Query().Get("page") == "1" {
			for _, l := range f.followers[parts[1]+"/"+parts[2]] {
				out = append(out, map[string]interface{}{"login": l})
			}
		}
		if out == nil {
			out = []map[string]interface{}{}
		}
		writeJSON(w, out)
	case len(parts) == 4 && parts[0] == "repos" && parts[3] == "readme":
		text, ok := f.readmes[parts[1]+"/"+parts[2]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]interface{}{
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte(text)),
		})
	case len(parts) == 3 && parts[0] == "user" && parts[1] == "following":
		switch r.Method {
		case http.MethodPut:
			f.following[parts[2]] = true
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodDelete:
			delete(f.following, parts[2])
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if f.following[parts[2]] {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	case len(parts) == 2 && parts[0] == "search" && parts[1] == "users":
		var items []map[string]interface{}
		for login := range f.users {
			items = append(items, map[string]interface{}{"login": login})
		}
		writeJSON(w, map[string]interface{}{"total_count": len(items), "items": items})
	case len(parts) == 1 && parts[0] == "users":
		var out []map[string]interface{}
		if r.URL.Query().Get("since") == "0" {
			id := 1
			for login := range f.users {
				out = append(out, map[string]interface{}{"login": login, "id": id})
				id++
			}
		}
		if out == nil {
			out = []map[string]interface{}{}
		}
		writeJSON(w, out)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGitHub) hits(login string) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.userHits[login]; ok {
		return c.Load()
	}
	return 0
}

func testRecorder() *metrics.Recorder {
	return metrics.New(prometheus.NewRegistry())
}

func testFetcher(baseURL string) *GitHubFetcher {
	return NewGitHubFetcher(FetcherConfig{
		APIURL:      baseURL,
		Token:       "test-token",
		Timeout:     5 * time.Second,
		BackoffBase: time.Millisecond,
		MaxAttempts: 5,
	}, testRecorder())
}

// newTestAPI starts fake GitHub and returns an API client pointed at it
func newTestAPI(t *testing.T, fake *fakeGitHub) *GitHubAPI {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	api, err := NewGitHubAPI(testFetcher(server.URL), server.URL, server.URL+"/web")
	require.NoError(t, err)
	return api
}

func testProfile() ScoringProfile {
	return ScoringProfile{
		NearbyCities:      []string{"Enna", "Caltanissetta"},
		RegionalLocations: []string{"Sicily", "Italy"},
		BioKeywords:       []string{"data science", "machine learning", "python"},
		ReadmeKeywords:    []string{"pandas", "pytorch"},
	}
}

func newTestAssembler(t *testing.T, api *GitHubAPI) *ProfileAssembler {
	t.Helper()
	a, err := NewProfileAssembler(api, NewHeuristicScorer(testProfile()), 5, time.Minute)
	require.NoError(t, err)
	return a
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func strPtr(s string) *string { return &s }

func scoredOf(id string, p float64) *models.ScoredCandidate {
	return &models.ScoredCandidate{Candidate: models.NewCandidate(id), Probability: p}
}
