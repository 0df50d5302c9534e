package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	method string
	path   string
	params url.Values
	body   string
	err    error
}

func (f *recordingFetcher) Do(_ context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	f.method, f.path, f.params = method, path, params
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.body), nil
}

func (f *recordingFetcher) GetRaw(context.Context, string) ([]byte, error) {
	return nil, nil
}

func TestGitHubAPIRequestPaths(t *testing.T) {
	tests := []struct {
		name        string
		description string
		apiURL      string
		call        func(*GitHubAPI) error
		wantMethod  string
		wantPath    string
		wantParams  url.Values
	}{
		{
			name:        "User",
			description: "Profiles are fetched relative to the API root",
			apiURL:      "https://api.github.com",
			call: func(a *GitHubAPI) error {
				_, err := a.GetUser(context.Background(), "octocat")
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/users/octocat",
		},
		{
			name:        "Enterprise prefix",
			description: "A path prefix on the API URL is stripped before the fetcher sees the call",
			apiURL:      "https://ghe.example.com/api/v3/",
			call: func(a *GitHubAPI) error {
				_, err := a.SearchUsers(context.Background(), "location:Enna", 2, 30)
				return err
			},
			wantMethod: http.MethodGet,
			wantPath:   "/search/users",
			wantParams: url.Values{"q": {"location:Enna"}, "page": {"2"}, "per_page": {"30"}},
		},
		{
			name:        "Unfollow",
			description: "Unfollowing issues a DELETE on the following list",
			apiURL:      "https://api.github.com",
			call: func(a *GitHubAPI) error {
				return a.Unfollow(context.Background(), "octocat")
			},
			wantMethod: http.MethodDelete,
			wantPath:   "/user/following/octocat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &recordingFetcher{body: `{}`}
			api, err := NewGitHubAPI(fetcher, tt.apiURL, "https://github.com")
			require.NoError(t, err)

			require.NoError(t, tt.call(api), tt.description)
			assert.Equal(t, tt.wantMethod, fetcher.method)
			assert.Equal(t, tt.wantPath, fetcher.path)
			for key, want := range tt.wantParams {
				assert.Equal(t, want, fetcher.params[key], key)
			}
		})
	}
}

func TestGitHubAPIKeepsFetchError(t *testing.T) {
	fetcher := &recordingFetcher{err: &FetchError{Kind: FetchRejected, Status: http.StatusNotFound}}
	api, err := NewGitHubAPI(fetcher, "https://api.github.com", "https://github.com")
	require.NoError(t, err)

	_, err = api.GetUser(context.Background(), "ghost")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.True(t, IsNotFound(err))

	following, err := api.IsFollowing(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, following)
}

func TestFollowAndUnfollow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeGitHub()
	api := newTestAPI(t, fake)

	following, err := api.IsFollowing(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, following)

	require.NoError(t, api.Follow(ctx, "octocat"))
	following, err = api.IsFollowing(ctx, "octocat")
	require.NoError(t, err)
	assert.True(t, following)

	require.NoError(t, api.Unfollow(ctx, "octocat"))
	following, err = api.IsFollowing(ctx, "octocat")
	require.NoError(t, err)
	assert.False(t, following)
}
