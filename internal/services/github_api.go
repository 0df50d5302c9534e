package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v57/github"
)

// PeerKind selects which social edge of a user to list
type PeerKind string

const (
	PeerFollowers PeerKind = "followers"
	PeerFollowing PeerKind = "following"
)

// maxPeerPages bounds peer-list pagination for very popular key users
const maxPeerPages = 100

// fetcherTransport routes go-github requests through a Fetcher, so the client shares its
// pacing, retry policy and FetchError classification. Only 2xx responses reach go-github.
type fetcherTransport struct {
	fetcher  Fetcher
	basePath string
}

func (t *fetcherTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	path := "/" + strings.TrimPrefix(strings.TrimPrefix(req.URL.Path, t.basePath), "/")
	body, err := t.fetcher.Do(req.Context(), req.Method, path, req.URL.Query())
	if err != nil {
		return nil, err
	}
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// GitHubAPI exposes the GitHub endpoints the pipeline uses through a go-github client
type GitHubAPI struct {
	client  *github.Client
	fetcher Fetcher
	webURL  string
}

func NewGitHubAPI(fetcher Fetcher, apiURL, webURL string) (*GitHubAPI, error) {
	base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", apiURL, err)
	}
	transport := &fetcherTransport{fetcher: fetcher, basePath: strings.TrimRight(base.Path, "/")}
	client := github.NewClient(&http.Client{Transport: transport})
	client.BaseURL = base

	return &GitHubAPI{client: client, fetcher: fetcher, webURL: strings.TrimRight(webURL, "/")}, nil
}

// fetchErr strips the *url.Error that net/http wraps around transport failures
func fetchErr(err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return err
}

// GetUser fetches a user profile
func (a *GitHubAPI) GetUser(ctx context.Context, login string) (*github.User, error) {
	if login == "" {
		return nil, errors.New("empty login")
	}
	user, _, err := a.client.Users.Get(ctx, login)
	return user, fetchErr(err)
}

// ListRecentRepos lists up to n repositories, most recently updated first
func (a *GitHubAPI) ListRecentRepos(ctx context.Context, login string, n int) ([]*github.Repository, error) {
	repos, _, err := a.client.Repositories.List(ctx, login, &github.RepositoryListOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: n},
	})
	if err != nil {
		return nil, fetchErr(err)
	}
	if len(repos) > n {
		repos = repos[:n]
	}
	return repos, nil
}

// GetReadme returns the decoded readme of a repository given as "owner/name"
func (a *GitHubAPI) GetReadme(ctx context.Context, fullName string) (string, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok {
		return "", fmt.Errorf("invalid repository name %q", fullName)
	}
	content, _, err := a.client.Repositories.GetReadme(ctx, owner, name, nil)
	if err != nil {
		return "", fetchErr(err)
	}
	if content == nil {
		return "", nil
	}
	return content.GetContent()
}

// IsFollowing reports whether the authenticated user already follows login
func (a *GitHubAPI) IsFollowing(ctx context.Context, login string) (bool, error) {
	following, _, err := a.client.Users.IsFollowing(ctx, "", login)
	if err == nil {
		return following, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, fetchErr(err)
}

// Follow makes the authenticated user follow login
func (a *GitHubAPI) Follow(ctx context.Context, login string) error {
	_, err := a.client.Users.Follow(ctx, login)
	return fetchErr(err)
}

// Unfollow makes the authenticated user stop following login
func (a *GitHubAPI) Unfollow(ctx context.Context, login string) error {
	_, err := a.client.Users.Unfollow(ctx, login)
	return fetchErr(err)
}

// SearchUsers runs a user search query
func (a *GitHubAPI) SearchUsers(ctx context.Context, query string, page, perPage int) (*github.UsersSearchResult, error) {
	result, _, err := a.client.Search.Users(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	})
	return result, fetchErr(err)
}

// ListUsers pages the global user listing starting after user ID since
func (a *GitHubAPI) ListUsers(ctx context.Context, since int64, perPage int) ([]*github.User, error) {
	users, _, err := a.client.Users.ListAll(ctx, &github.UserListOptions{
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	return users, fetchErr(err)
}

// ListPeers returns the logins of login's followers or followings, paginating until a short page
func (a *GitHubAPI) ListPeers(ctx context.Context, login string, kind PeerKind, perPage int) ([]string, error) {
	list := a.client.Users.ListFollowers
	if kind == PeerFollowing {
		list = a.client.Users.ListFollowing
	}

	var logins []string
	for page := 1; page <= maxPeerPages; page++ {
		users, _, err := list(ctx, login, &github.ListOptions{Page: page, PerPage: perPage})
		if err != nil {
			return logins, fetchErr(err)
		}
		for _, u := range users {
			if u.GetLogin() != "" {
				logins = append(logins, u.GetLogin())
			}
		}
		if len(users) < perPage {
			break
		}
	}
	return logins, nil
}

// ProfilePage fetches the public HTML profile page of login
func (a *GitHubAPI) ProfilePage(ctx context.Context, login string) (string, error) {
	body, err := a.fetcher.GetRaw(ctx, a.webURL+"/"+url.PathEscape(login))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
