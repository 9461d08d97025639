package assets

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/rohmanhakim/webarchiver/internal/fetcher"
	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/policy"
	"github.com/rohmanhakim/webarchiver/internal/storage"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
	"github.com/rohmanhakim/webarchiver/pkg/limiter"
	"github.com/rohmanhakim/webarchiver/pkg/retry"
	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

/*
Responsibilities
- Resolve asset URLs to run-local paths, downloading on first sight
- Deduplicate downloads across pages (positive and negative caches)
- Collapse concurrent fetches of the same URL into one request
- Rate-limit per host and respect the shared HTTP concurrency cap

Asset Policies
- Preserve original formats; css/js stored as UTF-8 text
- Stable local filenames (digest stems under type subdirectories)
- 403 with the browser profile retried once with a bare User-Agent
- Missing assets reported, not fatal
*/

// Resolver downloads and caches page assets for one run.
type Resolver struct {
	metadataSink metadata.MetadataSink
	fetcher      fetcher.Fetcher
	store        storage.Store
	limiter      *limiter.ConcurrentRateLimiter
	sem          *semaphore.Weighted
	logger       *zap.Logger
	skipAssets   bool

	group singleflight.Group

	mu           sync.Mutex
	assetMap     map[string]string   // clean URL -> run-relative path
	failedAssets map[string]struct{} // clean URLs that were attempted and failed
}

func NewResolver(
	metadataSink metadata.MetadataSink,
	httpFetcher fetcher.Fetcher,
	store storage.Store,
	rateLimiter *limiter.ConcurrentRateLimiter,
	sem *semaphore.Weighted,
	logger *zap.Logger,
	skipAssets bool,
) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		metadataSink: metadataSink,
		fetcher:      httpFetcher,
		store:        store,
		limiter:      rateLimiter,
		sem:          sem,
		logger:       logger,
		skipAssets:   skipAssets,
		assetMap:     make(map[string]string),
		failedAssets: make(map[string]struct{}),
	}
}

// Resolve returns the run-relative local path for an asset URL,
// downloading it on first sight. Returns "" when the asset cannot be
// fetched; the caller falls back to the absolute URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, assetType policy.AssetType, referer string) string {
	if r.skipAssets {
		return ""
	}

	cleanURL := urlutil.StripFragment(rawURL)

	r.mu.Lock()
	if local, ok := r.assetMap[cleanURL]; ok {
		r.mu.Unlock()
		return local
	}
	if _, failed := r.failedAssets[cleanURL]; failed {
		r.mu.Unlock()
		return ""
	}
	r.mu.Unlock()

	// Concurrent resolvers of the same URL share one download.
	result, _, _ := r.group.Do(cleanURL, func() (interface{}, error) {
		return r.download(ctx, cleanURL, assetType, referer), nil
	})
	local, _ := result.(string)
	return local
}

// download performs the rate-limited, semaphore-bounded fetch and
// stores the result. Returns the local path or "".
func (r *Resolver) download(ctx context.Context, cleanURL string, assetType policy.AssetType, referer string) string {
	// Another singleflight winner may have finished while we queued.
	r.mu.Lock()
	if local, ok := r.assetMap[cleanURL]; ok {
		r.mu.Unlock()
		return local
	}
	if _, failed := r.failedAssets[cleanURL]; failed {
		r.mu.Unlock()
		return ""
	}
	r.mu.Unlock()

	host := urlutil.Host(cleanURL)
	if err := r.limiter.Acquire(ctx, host); err != nil {
		r.markFailed(cleanURL, &AssetsError{Message: err.Error(), Retryable: true, Cause: ErrCauseRateLimited})
		return ""
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.markFailed(cleanURL, &AssetsError{Message: err.Error(), Retryable: true, Cause: ErrCauseRateLimited})
		return ""
	}
	defer r.sem.Release(1)

	fetchResult, fetchErr := r.fetchWithForbiddenRetry(ctx, cleanURL, referer)
	if fetchErr != nil {
		r.markFailed(cleanURL, fetchErr)
		return ""
	}

	body := fetchResult.Body()
	if assetType.IsText() {
		// Match browser tolerance for mislabeled encodings: bytes that
		// are not valid UTF-8 become U+FFFD instead of failing the asset.
		body = []byte(strings.ToValidUTF8(string(body), "\uFFFD"))
	}

	localPath := policy.AssetLocalPath(cleanURL, assetType)
	if _, writeErr := r.store.WriteAsset(localPath, body); writeErr != nil {
		r.markFailed(cleanURL, &AssetsError{Message: writeErr.Error(), Retryable: false, Cause: ErrCauseWriteFailure})
		return ""
	}

	r.mu.Lock()
	r.assetMap[cleanURL] = localPath
	r.mu.Unlock()

	r.logger.Debug("downloaded asset",
		zap.String("url", cleanURL),
		zap.String("local_path", localPath),
		zap.Int("bytes", len(body)))
	return localPath
}

// fetchWithForbiddenRetry GETs an asset with the full browser profile
// and, on 403 only, retries once with a bare User-Agent. Some origins
// reject Sec-Fetch headers from non-browser TLS stacks.
func (r *Resolver) fetchWithForbiddenRetry(ctx context.Context, cleanURL string, referer string) (fetcher.FetchResult, failure.ClassifiedError) {
	retryParam := retry.NewRetryParam(0, 0, 0, 2, timeutil.NewBackoffParam(0, 1, 0))

	attempt := 0
	result := retry.Retry(retryParam, func() (fetcher.FetchResult, failure.ClassifiedError) {
		attempt++
		var res fetcher.FetchResult
		var err failure.ClassifiedError
		if attempt == 1 {
			res, err = r.fetcher.FetchAsset(ctx, cleanURL, referer)
		} else {
			res, err = r.fetcher.FetchAssetMinimal(ctx, cleanURL)
		}
		if err == nil {
			return res, nil
		}

		var fetchErr *fetcher.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Cause == fetcher.ErrCauseRequestForbidden && attempt == 1 {
			// Retryable wrapper so the handler runs the minimal-header
			// attempt; the 403 itself is terminal otherwise.
			return res, &AssetsError{
				Message:   "asset forbidden with browser profile",
				Retryable: true,
				Cause:     ErrCauseForbidden,
			}
		}
		return res, &AssetsError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     causeFromFetchError(err),
		}
	})

	if result.IsFailure() {
		return fetcher.FetchResult{}, result.Err()
	}
	return result.Value(), nil
}

func causeFromFetchError(err failure.ClassifiedError) AssetsErrorCause {
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Cause {
		case fetcher.ErrCauseTimeout, fetcher.ErrCauseNetworkFailure, fetcher.ErrCauseReadResponseBodyError:
			return ErrCauseNetworkFailure
		case fetcher.ErrCauseRequestForbidden:
			return ErrCauseForbidden
		}
	}
	return ErrCauseHTTPStatus
}

// markFailed negative-caches an asset URL so no page retries it.
func (r *Resolver) markFailed(cleanURL string, err failure.ClassifiedError) {
	r.mu.Lock()
	r.failedAssets[cleanURL] = struct{}{}
	r.mu.Unlock()

	cause := metadata.ErrorCause(metadata.CauseUnknown)
	var assetsErr *AssetsError
	if errors.As(err, &assetsErr) {
		cause = mapAssetsErrorToMetadataCause(assetsErr)
	}
	r.metadataSink.RecordError(
		time.Now(),
		"assets",
		"Resolver.Resolve",
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrAssetURL, cleanURL),
		},
	)
	r.logger.Debug("asset failed", zap.String("url", cleanURL), zap.String("error", err.Error()))
}

// AssetMap returns a snapshot of url -> local path mappings.
func (r *Resolver) AssetMap() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[string]string, len(r.assetMap))
	for k, v := range r.assetMap {
		snapshot[k] = v
	}
	return snapshot
}

// StoredCount reports how many assets have resolved so far. Progress
// logging reads this on every page.
func (r *Resolver) StoredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assetMap)
}

// FailedAssets returns a snapshot of the negative cache.
func (r *Resolver) FailedAssets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := make([]string, 0, len(r.failedAssets))
	for u := range r.failedAssets {
		failed = append(failed, u)
	}
	return failed
}

// LocalPathFor answers whether an asset URL already resolved, without
// triggering a download. The rewriter's second pass uses this.
func (r *Resolver) LocalPathFor(rawURL string) (string, bool) {
	cleanURL := urlutil.StripFragment(rawURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	local, ok := r.assetMap[cleanURL]
	return local, ok
}
