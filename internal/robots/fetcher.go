package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rohmanhakim/webarchiver/internal/robots/cache"
)

/*
RobotsFetcher

Responsibilities:
- Fetch robots.txt per origin using net/http
- Cap the body at 500 KiB
- Cache raw fetch results using the provided Cache implementation

The fetcher returns raw bytes plus the HTTP status. It does not parse
rules and does not make decisions about URL permissions; that is the
oracle's job.
*/

const (
	fetchTimeout = 5 * time.Second
	maxBodySize  = 500 * 1024
)

// RobotsFetcher fetches robots.txt files from origins.
type RobotsFetcher struct {
	httpClient *http.Client
	userAgent  string
	cache      cache.Cache
}

// RobotsFetchResult represents the result of fetching a robots.txt file.
type RobotsFetchResult struct {
	Body       []byte
	HTTPStatus int
	SourceURL  string
	FetchedAt  time.Time
}

// cachedResult is a serializable representation of RobotsFetchResult
// for cache storage.
type cachedResult struct {
	Body       string    `json:"body"`
	HTTPStatus int       `json:"http_status"`
	SourceURL  string    `json:"source_url"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// NewRobotsFetcher creates a new RobotsFetcher with the given dependencies.
// The cache parameter is optional - if nil, no caching will be performed.
func NewRobotsFetcher(userAgent string, cache cache.Cache) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient: &http.Client{Timeout: fetchTimeout},
		userAgent:  userAgent,
		cache:      cache,
	}
}

// NewRobotsFetcherWithClient creates a new RobotsFetcher with a custom
// HTTP client. This is useful for testing.
// The cache parameter is optional - if nil, no caching will be performed.
func NewRobotsFetcherWithClient(userAgent string, httpClient *http.Client, cache cache.Cache) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      cache,
	}
}

// cacheKey generates a cache key for the given origin.
func cacheKey(origin string) string {
	return origin + "/robots.txt"
}

func serializeResult(result RobotsFetchResult) (string, error) {
	cached := cachedResult{
		Body:       string(result.Body),
		HTTPStatus: result.HTTPStatus,
		SourceURL:  result.SourceURL,
		FetchedAt:  result.FetchedAt,
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func deserializeResult(data string) (RobotsFetchResult, error) {
	var cached cachedResult
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		return RobotsFetchResult{}, err
	}
	return RobotsFetchResult{
		Body:       []byte(cached.Body),
		HTTPStatus: cached.HTTPStatus,
		SourceURL:  cached.SourceURL,
		FetchedAt:  cached.FetchedAt,
	}, nil
}

// Fetch retrieves the robots.txt file for the given origin
// ("scheme://host"). If a cache is configured, it is consulted first
// and populated after a successful fetch.
func (f *RobotsFetcher) Fetch(ctx context.Context, origin string) (RobotsFetchResult, *RobotsError) {
	if f.cache != nil {
		if cachedData, found := f.cache.Get(cacheKey(origin)); found {
			if result, err := deserializeResult(cachedData); err == nil {
				return result, nil
			}
			// Deserialization failure falls through to a fresh fetch
		}
	}

	robotsURL := origin + "/robots.txt"

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("failed to create request for %s: %v", robotsURL, err),
			Retryable: false,
			Cause:     ErrCausePreFetchFailure,
		}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain,text/html,*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("failed to fetch %s: %v", robotsURL, err),
			Retryable: true,
			Cause:     ErrCauseHttpFetchFailure,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("failed to read %s body: %v", robotsURL, err),
			Retryable: true,
			Cause:     ErrCauseBodyReadFailure,
		}
	}
	if len(body) > maxBodySize {
		body = body[:maxBodySize]
	}

	result := RobotsFetchResult{
		Body:       body,
		HTTPStatus: resp.StatusCode,
		SourceURL:  robotsURL,
		FetchedAt:  time.Now(),
	}

	if f.cache != nil {
		if cachedData, err := serializeResult(result); err == nil {
			f.cache.Put(cacheKey(origin), cachedData)
		}
	}

	return result, nil
}
