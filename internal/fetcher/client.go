package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync/atomic"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

/*
Responsibilities

- Perform HTTP requests for pages and assets
- Apply browser header profiles and rotate user agents
- Carry one cookie jar for the whole session
- Classify responses into typed errors

The fetcher never parses content; it only returns bytes and metadata.
Robots consultation and rate limiting happen in the caller so the
admission pipeline stays in one place.
*/

const (
	sessionTimeout    = 60 * time.Second
	requestTimeout    = 30 * time.Second
	maxAssetBodyBytes = 50 << 20
)

type Client struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	uaCounter    atomic.Uint32
}

func NewClient(metadataSink metadata.MetadataSink) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		MaxConnsPerHost:     30,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 30,
	}
	return &Client{
		metadataSink: metadataSink,
		httpClient: &http.Client{
			Jar:       jar,
			Transport: transport,
			Timeout:   sessionTimeout,
		},
	}
}

// NewClientWithHTTPClient builds a Client over a caller-supplied
// http.Client. Useful for testing.
func NewClientWithHTTPClient(metadataSink metadata.MetadataSink, httpClient *http.Client) *Client {
	return &Client{
		metadataSink: metadataSink,
		httpClient:   httpClient,
	}
}

// nextUserAgent rotates round-robin through the pool.
func (c *Client) nextUserAgent() string {
	n := c.uaCounter.Add(1)
	return userAgents[(n-1)%uint32(len(userAgents))]
}

// commonHeaders apply to every request regardless of kind.
func commonHeaders(req *http.Request, userAgent string, referer string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Accept-Encoding is left to the transport; setting it manually
	// disables net/http's transparent gzip decompression.
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
}

func pageHeaders(req *http.Request, userAgent string, referer string) {
	commonHeaders(req, userAgent, referer)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
}

func assetHeaders(req *http.Request, userAgent string, referer string) {
	commonHeaders(req, userAgent, referer)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "image")
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
}

// FetchPage retrieves a page with the navigation header profile.
// Any non-200 status is a typed error; the body is not returned.
func (c *Client) FetchPage(ctx context.Context, pageURL string, referer string) (FetchResult, failure.ClassifiedError) {
	start := time.Now()
	result, err := c.do(ctx, pageURL, func(req *http.Request) {
		pageHeaders(req, c.nextUserAgent(), referer)
	}, 0)
	c.recordFetch(pageURL, result, err, time.Since(start))
	return result, err
}

// FetchAsset retrieves an asset with the subresource header profile.
// The body is capped at 50 MiB.
func (c *Client) FetchAsset(ctx context.Context, assetURL string, referer string) (FetchResult, failure.ClassifiedError) {
	return c.do(ctx, assetURL, func(req *http.Request) {
		assetHeaders(req, c.nextUserAgent(), referer)
	}, maxAssetBodyBytes)
}

// FetchAssetMinimal retries an asset with nothing but a User-Agent.
// Some origins reject the full browser profile with 403 yet serve the
// plain request.
func (c *Client) FetchAssetMinimal(ctx context.Context, assetURL string) (FetchResult, failure.ClassifiedError) {
	return c.do(ctx, assetURL, func(req *http.Request) {
		req.Header.Set("User-Agent", c.nextUserAgent())
	}, maxAssetBodyBytes)
}

func (c *Client) do(ctx context.Context, rawURL string, applyHeaders func(*http.Request), bodyCap int64) (FetchResult, failure.ClassifiedError) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cause := FetchErrorCause(ErrCauseNetworkFailure)
		if reqCtx.Err() == context.DeadlineExceeded {
			cause = ErrCauseTimeout
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("request failed: %v", err),
			Retryable: true,
			Cause:     cause,
		}
	}
	defer resp.Body.Close()

	if fetchErr := classifyStatus(resp.StatusCode); fetchErr != nil {
		return FetchResult{}, fetchErr
	}

	var reader io.Reader = resp.Body
	if bodyCap > 0 {
		reader = io.LimitReader(resp.Body, bodyCap)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	responseHeaders := make(map[string]string)
	for key, values := range resp.Header {
		if len(values) > 0 {
			responseHeaders[key] = values[0]
		}
	}

	return FetchResult{
		url:  rawURL,
		body: body,
		meta: ResponseMeta{
			statusCode:          resp.StatusCode,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     responseHeaders,
		},
	}, nil
}

func classifyStatus(status int) *FetchError {
	switch {
	case status == 200:
		return nil

	case status >= 500:
		return &FetchError{
			Message:    fmt.Sprintf("server error: %d", status),
			Retryable:  true,
			Cause:      ErrCauseRequest5xx,
			StatusCode: status,
		}

	case status == 429:
		return &FetchError{
			Message:    "rate limited (429)",
			Retryable:  true,
			Cause:      ErrCauseRequestTooMany,
			StatusCode: status,
		}

	case status == 403:
		return &FetchError{
			Message:    "access forbidden (403)",
			Retryable:  false,
			Cause:      ErrCauseRequestForbidden,
			StatusCode: status,
		}

	case status >= 400:
		return &FetchError{
			Message:    fmt.Sprintf("client error: %d", status),
			Retryable:  false,
			Cause:      ErrCauseRequestClientError,
			StatusCode: status,
		}

	case status >= 300:
		// http.Client follows redirects; landing here means the chain
		// was exhausted
		return &FetchError{
			Message:    fmt.Sprintf("redirect error: %d", status),
			Retryable:  false,
			Cause:      ErrCauseRedirectLimitExceeded,
			StatusCode: status,
		}

	default:
		return &FetchError{
			Message:    fmt.Sprintf("unexpected status: %d", status),
			Retryable:  false,
			Cause:      ErrCauseRequestClientError,
			StatusCode: status,
		}
	}
}

func (c *Client) recordFetch(pageURL string, result FetchResult, err failure.ClassifiedError, duration time.Duration) {
	statusCode := result.Code()
	contentType := result.ContentType()
	if err != nil {
		if fetchErr, ok := err.(*FetchError); ok {
			statusCode = fetchErr.StatusCode
			c.metadataSink.RecordError(
				time.Now(),
				"fetcher",
				"Client.FetchPage",
				mapFetchErrorToMetadataCause(fetchErr),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrURL, pageURL),
					metadata.NewAttr(metadata.AttrHTTPStatus, fmt.Sprintf("%d", fetchErr.StatusCode)),
				},
			)
		}
	}
	c.metadataSink.RecordFetch(pageURL, statusCode, duration, contentType, 0, 0)
}
