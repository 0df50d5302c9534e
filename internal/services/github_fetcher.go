package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alimgiray/gscout/pkg/logger"
	"github.com/alimgiray/gscout/pkg/metrics"
	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

var (
	ErrRejected  = errors.New("request rejected")
	ErrExhausted = errors.New("retries exhausted")
)

// FetchKind classifies a failed fetch
type FetchKind string

const (
	FetchRejected  FetchKind = "rejected"
	FetchExhausted FetchKind = "exhausted"
)

// FetchError is returned for every failed GitHub call. Status is 0 for network faults.
type FetchError struct {
	Kind   FetchKind
	Status int
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.URL, e.Status)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrRejected and ErrExhausted
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrRejected:
		return e.Kind == FetchRejected
	case ErrExhausted:
		return e.Kind == FetchExhausted
	}
	return false
}

// IsNotFound reports whether err is a FetchError rejected with 404
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == FetchRejected && fe.Status == http.StatusNotFound
}

// Fetcher is the network boundary every GitHub call goes through
type Fetcher interface {
	Do(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error)
	GetRaw(ctx context.Context, absoluteURL string) ([]byte, error)
}

type FetcherConfig struct {
	APIURL       string
	Token        string
	RequestDelay time.Duration
	Timeout      time.Duration
	BackoffBase  time.Duration
	MaxAttempts  uint
}

// GitHubFetcher issues GitHub HTTP calls with retry, exponential backoff and a shared
// minimum inter-call delay.
type GitHubFetcher struct {
	client      *http.Client
	apiURL      string
	minDelay    time.Duration
	backoffBase time.Duration
	attempts    uint
	recorder    *metrics.Recorder

	mu       sync.Mutex
	lastCall time.Time
}

func NewGitHubFetcher(cfg FetcherConfig, recorder *metrics.Recorder) *GitHubFetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   http.DefaultTransport,
		}
	}
	if recorder == nil {
		recorder = metrics.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &GitHubFetcher{
		client:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		minDelay:    cfg.RequestDelay,
		backoffBase: cfg.BackoffBase,
		attempts:    attempts,
		recorder:    recorder,
	}
}

// Do performs an API call. Only idempotent methods and the follow PUT/DELETE are retried.
func (f *GitHubFetcher) Do(ctx context.Context, method, path string, params url.Values) (json.RawMessage, error) {
	target := f.apiURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	body, err := f.request(ctx, method, target, retryableMethod(method, path), true)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetRaw fetches a non-API page, such as the HTML profile
func (f *GitHubFetcher) GetRaw(ctx context.Context, absoluteURL string) ([]byte, error) {
	return f.request(ctx, http.MethodGet, absoluteURL, true, false)
}

func retryableMethod(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	case http.MethodPut, http.MethodDelete:
		return strings.HasPrefix(path, "/user/following/")
	}
	return false
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (f *GitHubFetcher) request(ctx context.Context, method, target string, retryable, api bool) ([]byte, error) {
	log := logger.WithFields(logrus.Fields{"method": method, "url": target})

	// retry.Error aggregates attempts; the last FetchError is what callers get
	var last error
	attempts := f.attempts
	if !retryable {
		attempts = 1
	}

	body, err := retry.DoWithData(
		func() ([]byte, error) {
			b, err := f.attempt(ctx, method, target, api)
			last = err
			return b, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(f.backoffBase),
		retry.MaxJitter(max(f.backoffBase/4, time.Millisecond)),
		retry.RetryIf(func(err error) bool {
			var fe *FetchError
			return errors.As(err, &fe) && fe.Kind == FetchExhausted
		}),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Debugf("retrying GitHub request, attempt %d", n+2)
		}),
	)
	if err == nil {
		return body, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var fe *FetchError
	if errors.As(last, &fe) {
		f.recorder.FetchFailure(string(fe.Kind))
		return nil, fe
	}
	f.recorder.FetchFailure(string(FetchExhausted))
	return nil, &FetchError{Kind: FetchExhausted, URL: target, Err: err}
}

func (f *GitHubFetcher) attempt(ctx context.Context, method, target string, api bool) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchRejected, URL: target, Err: err}
	}
	if api {
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	}
	req.Header.Set("User-Agent", "gscout")

	resp, err := f.client.Do(req)
	if err != nil {
		f.recorder.FetchAttempt(0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &FetchError{Kind: FetchExhausted, URL: target, Err: err}
	}
	defer resp.Body.Close()

	f.recorder.FetchAttempt(resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: FetchExhausted, Status: resp.StatusCode, URL: target, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	if transientStatus(resp.StatusCode) {
		return nil, &FetchError{Kind: FetchExhausted, Status: resp.StatusCode, URL: target}
	}
	return nil, &FetchError{Kind: FetchRejected, Status: resp.StatusCode, URL: target}
}

// wait blocks until minDelay has passed since the previous call started
func (f *GitHubFetcher) wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.lastCall.IsZero() {
		if d := f.minDelay - time.Since(f.lastCall); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	f.lastCall = time.Now()
	return nil
}
