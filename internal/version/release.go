package version

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/go-resty/resty/v2"
)

// Release repository checked by the version command.
const (
	ReleaseOwner = "mrz1836"
	ReleaseRepo  = "sigil-bridge"
)

// DefaultReleaseAPI is the GitHub API root used for release lookups.
const DefaultReleaseAPI = "https://api.github.com"

const (
	releaseTimeout = 15 * time.Second
	releaseRetries = 2
)

// ErrReleaseLookup wraps every failed release lookup.
var ErrReleaseLookup = errors.New("release lookup failed")

// Release is the subset of a GitHub release the bridge reads.
type Release struct {
	TagName     string    `json:"tag_name"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
}

// ReleaseClient fetches the latest bridge release.
type ReleaseClient struct {
	http *resty.Client
}

// NewReleaseClient returns a client rooted at baseURL, or DefaultReleaseAPI
// when baseURL is empty. Server errors are retried.
func NewReleaseClient(baseURL string) *ReleaseClient {
	if baseURL == "" {
		baseURL = DefaultReleaseAPI
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(releaseTimeout).
		SetRetryCount(releaseRetries).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, _ error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("User-Agent", fmt.Sprintf("sigil-bridge (%s/%s)", runtime.GOOS, runtime.GOARCH)).
		SetHeader("Accept", "application/vnd.github.v3+json")
	return &ReleaseClient{http: c}
}

// Latest returns the most recent published release.
func (c *ReleaseClient) Latest(ctx context.Context) (*Release, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": ReleaseOwner, "repo": ReleaseRepo}).
		SetResult(&Release{}).
		Get("/repos/{owner}/{repo}/releases/latest")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReleaseLookup, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d", ErrReleaseLookup, resp.StatusCode())
	}
	release, ok := resp.Result().(*Release)
	if !ok || release.TagName == "" {
		return nil, fmt.Errorf("%w: response has no tag", ErrReleaseLookup)
	}
	return release, nil
}
