package scheduler

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rohmanhakim/webarchiver/internal/assets"
	"github.com/rohmanhakim/webarchiver/internal/extractor"
	"github.com/rohmanhakim/webarchiver/internal/fetcher"
	"github.com/rohmanhakim/webarchiver/internal/frontier"
	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/policy"
	"github.com/rohmanhakim/webarchiver/internal/rewriter"
	"github.com/rohmanhakim/webarchiver/internal/robots"
	"github.com/rohmanhakim/webarchiver/internal/storage"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
	"github.com/rohmanhakim/webarchiver/pkg/limiter"
	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

/*
 Controller is the sole control-plane authority of the crawl.

 Determinism and admission guarantees:
 - The controller is the ONLY component allowed to decide whether a URL
   may enter the crawl frontier.
 - All semantic admission checks (scope, depth, dedup, page budgets)
   complete under one mutex before a candidate is processed.
 - No other component may enqueue, reject, or reorder URLs.
 - Pipeline stages may detect and classify failure, but never decide
   retry, continuation, or abortion.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or crawl termination.

 Controller Responsibilities:
 - Coordinate crawl lifecycle across the worker pool
 - Enforce global limits (pages, per-domain, depth)
 - Manage the stop signal and queue drain
 - Run the post-drain link fixup and manifest emission
 - The sole authority on:
	- continue
	- abort
*/

const (
	// workerIdleTimeout bounds how long an idle worker polls an empty
	// queue while no other worker is mid-page.
	workerIdleTimeout = 5 * time.Second
	idlePollInterval  = 50 * time.Millisecond
)

// RobotsOracle is the admission seam for robots.txt decisions.
type RobotsOracle interface {
	Allowed(ctx context.Context, pageURL string, agent string) robots.Decision
}

type Controller struct {
	params   CrawlParams
	seedHost string

	recorder      *metadata.Recorder
	oracle        RobotsOracle
	fetcher       fetcher.Fetcher
	linkExtractor extractor.LinkExtractor
	htmlRewriter  *rewriter.Rewriter
	assetResolver *assets.Resolver
	store         storage.Store
	limiter       *limiter.ConcurrentRateLimiter
	sem           *semaphore.Weighted
	logger        *zap.Logger

	queue *frontier.ConcurrentQueue[frontier.Candidate]

	mu           sync.Mutex
	visited      frontier.Set[string]
	storedPages  frontier.Set[string]
	pagesScraped int
	domainCounts map[string]int

	stop       atomic.Bool
	busy       atomic.Int32
	errorCount atomic.Int64

	fatalMu  sync.Mutex
	fatalErr failure.ClassifiedError
}

func NewController(
	params CrawlParams,
	recorder *metadata.Recorder,
	oracle RobotsOracle,
	httpFetcher fetcher.Fetcher,
	linkExtractor extractor.LinkExtractor,
	htmlRewriter *rewriter.Rewriter,
	assetResolver *assets.Resolver,
	store storage.Store,
	rateLimiter *limiter.ConcurrentRateLimiter,
	sem *semaphore.Weighted,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		params:        params,
		seedHost:      urlutil.Host(params.StartURL),
		recorder:      recorder,
		oracle:        oracle,
		fetcher:       httpFetcher,
		linkExtractor: linkExtractor,
		htmlRewriter:  htmlRewriter,
		assetResolver: assetResolver,
		store:         store,
		limiter:       rateLimiter,
		sem:           sem,
		logger:        logger,
		queue:         frontier.NewConcurrentQueue[frontier.Candidate](),
		visited:       frontier.NewSet[string](),
		storedPages:   frontier.NewSet[string](),
		domainCounts:  make(map[string]int),
	}
}

// Run executes the crawl to completion: seed, worker pool, drain,
// link fixup, manifest. The returned manifest reflects whatever work
// completed, even when the error is non-nil.
func (c *Controller) Run(ctx context.Context) (metadata.RunManifest, failure.ClassifiedError) {
	startedAt := time.Now()

	c.logger.Info("starting crawl",
		zap.String("start_url", c.params.StartURL),
		zap.Int("max_pages", c.params.MaxPages),
		zap.Int("pages_per_domain", c.params.PagesPerDomain),
		zap.Int("max_depth", c.params.MaxDepth),
		zap.Int("workers", c.params.MaxWorkers))

	// The seed bypasses the in-scope filter; budgets still apply.
	c.queue.Enqueue(frontier.NewCandidate(c.params.StartURL, 0, frontier.SourceSeed))

	pool := new(errgroup.Group)
	for i := 0; i < c.params.MaxWorkers; i++ {
		pool.Go(func() error {
			c.worker(ctx)
			return nil
		})
	}
	// Workers only ever return nil; the barrier is what matters.
	_ = pool.Wait()

	c.stop.Store(true)
	if discarded := c.queue.Drain(); len(discarded) > 0 {
		c.logger.Debug("discarded queued candidates after stop",
			zap.Int("count", len(discarded)))
	}

	// Anchors to pages stored later in the run become local now that
	// the page set is final.
	updated := c.htmlRewriter.FixupLinks(c.store, c.recorder.Manifest().Pages, c.isStored)
	c.logger.Info("link fixup complete", zap.Int("pages_updated", updated))

	// The resolver owns asset bookkeeping during the crawl; fold its
	// final state into the manifest recorder.
	for assetURL, localPath := range c.assetResolver.AssetMap() {
		c.recorder.RecordAssetStored(assetURL, localPath)
	}
	for _, assetURL := range c.assetResolver.FailedAssets() {
		c.recorder.RecordAssetFailure(assetURL)
	}

	c.mu.Lock()
	totalPages := c.pagesScraped
	c.mu.Unlock()
	c.recorder.RecordFinalCrawlStats(
		totalPages,
		int(c.errorCount.Load()),
		c.assetResolver.StoredCount(),
		time.Since(startedAt),
	)

	manifest := c.recorder.Manifest()

	if writeErr := c.store.WriteManifest(manifest); writeErr != nil {
		c.logger.Error("manifest write failed", zap.String("error", writeErr.Error()))
		return manifest, writeErr
	}

	if writeErr := c.store.WriteJSON("scraped_urls.json", c.urlList(manifest)); writeErr != nil {
		c.errorCount.Add(1)
		c.logger.Error("scraped_urls.json write failed", zap.String("error", writeErr.Error()))
	}

	c.logSummary(manifest)

	if fatal := c.fatal(); fatal != nil {
		return manifest, fatal
	}
	return manifest, nil
}

// worker polls the frontier until the stop signal trips or the queue
// stays empty past the idle timeout with no page in flight anywhere.
func (c *Controller) worker(ctx context.Context) {
	idleTimeout := c.params.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = workerIdleTimeout
	}
	idleSince := time.Now()
	for {
		if c.stop.Load() {
			return
		}
		select {
		case <-ctx.Done():
			c.stop.Store(true)
			return
		default:
		}

		candidate, ok := c.queue.TryDequeue()
		if !ok {
			if c.busy.Load() == 0 && time.Since(idleSince) >= idleTimeout {
				return
			}
			timer := time.NewTimer(idlePollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				c.stop.Store(true)
				return
			case <-timer.C:
			}
			continue
		}

		c.busy.Add(1)
		c.processCandidate(ctx, candidate)
		c.busy.Add(-1)
		idleSince = time.Now()
	}
}

// processCandidate runs the page pipeline: admission, robots, rate
// limit, fetch, rewrite, store, record, extract, enqueue.
func (c *Controller) processCandidate(ctx context.Context, candidate frontier.Candidate) {
	pageURL := candidate.URL()
	host := urlutil.Host(pageURL)

	if !c.admit(pageURL, host) {
		return
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		c.errorCount.Add(1)
		c.recorder.RecordPageFailure(pageURL)
		c.logger.Warn("admitted URL does not parse", zap.String("url", pageURL))
		return
	}

	if c.params.RespectRobots && c.oracle != nil {
		decision := c.oracle.Allowed(ctx, pageURL, robots.DefaultAgent)
		if !decision.Allowed {
			// Stays visited so no other path re-attempts it.
			c.logger.Info("robots.txt disallowed",
				zap.String("url", pageURL),
				zap.String("reason", string(decision.Reason)))
			return
		}
	}

	if err := c.limiter.Acquire(ctx, host); err != nil {
		c.recorder.RecordPageFailure(pageURL)
		return
	}

	result, fetchErr := c.fetchPage(ctx, pageURL)
	if fetchErr != nil {
		c.errorCount.Add(1)
		c.recorder.RecordPageFailure(pageURL)
		c.logger.Warn("page fetch failed",
			zap.String("url", pageURL),
			zap.String("error", fetchErr.Error()))
		return
	}

	contentType := result.ContentType()
	isHTML := strings.Contains(strings.ToLower(contentType), "html")

	body := result.Body()
	stored := body
	if isHTML {
		rewritten, rwErr := c.htmlRewriter.RewriteHTML(ctx, parsed, body, c.isStored)
		if rwErr != nil {
			// Archive the page as fetched; offline rendering degrades,
			// the crawl does not.
			c.errorCount.Add(1)
			c.logger.Warn("page rewrite failed, storing original",
				zap.String("url", pageURL),
				zap.String("error", rwErr.Error()))
		} else {
			stored = rewritten
		}
	}

	writeResult, writeErr := c.store.WritePage(policy.Digest(pageURL), contentType, stored)
	if writeErr != nil {
		c.errorCount.Add(1)
		c.recorder.RecordPageFailure(pageURL)
		c.logger.Error("page store failed",
			zap.String("url", pageURL),
			zap.String("error", writeErr.Error()))
		if writeErr.Severity() == failure.SeverityFatal {
			c.setFatal(writeErr)
			c.stop.Store(true)
		}
		return
	}

	c.mu.Lock()
	c.storedPages.Add(canonicalKey(pageURL))
	scraped := c.pagesScraped
	c.mu.Unlock()

	c.recorder.RecordPage(metadata.PageRecord{
		URL:         pageURL,
		Timestamp:   timeutil.ISO8601(time.Now()),
		ContentType: contentType,
		Filepath:    writeResult.RelPath(),
		Depth:       candidate.Depth(),
		Size:        int64(len(stored)),
		Domain:      host,
	})

	c.logger.Info("progress",
		zap.Int("pages_scraped", scraped),
		zap.Int("max_pages", c.params.MaxPages),
		zap.Int("assets", c.assetResolver.StoredCount()))

	if isHTML && !c.stop.Load() {
		c.enqueueDiscovered(parsed, body, candidate.Depth()+1)
	}
}

// enqueueDiscovered extracts links from the ORIGINAL page HTML and
// enqueues the in-scope ones. Rewritten HTML never feeds the frontier.
func (c *Controller) enqueueDiscovered(pageURL *url.URL, originalHTML []byte, nextDepth int) {
	if nextDepth > c.params.MaxDepth {
		return
	}

	links, extractErr := c.linkExtractor.ExtractLinks(pageURL, originalHTML)
	if extractErr != nil {
		c.errorCount.Add(1)
		return
	}

	for _, link := range links {
		if c.stop.Load() {
			return
		}
		if !policy.InScope(link, c.seedHost) {
			continue
		}
		if c.alreadyVisited(link) {
			continue
		}
		c.queue.Enqueue(frontier.NewCandidate(link, nextDepth, frontier.SourceCrawl))
	}
}

// admit is the single admission choke point. A true return means the
// URL is marked visited and this worker owns its processing.
func (c *Controller) admit(pageURL string, host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visited.Contains(pageURL) {
		return false
	}
	if c.pagesScraped >= c.params.MaxPages {
		return false
	}
	if c.domainCounts[host] >= c.params.PagesPerDomain {
		c.logger.Warn("reached per-domain page limit",
			zap.String("domain", host),
			zap.Int("pages_per_domain", c.params.PagesPerDomain))
		return false
	}

	// Admission owns the counters. The visited insert and both budget
	// increments form one critical section, so a burst of workers can
	// never admit past the caps.
	c.visited.Add(pageURL)
	c.pagesScraped++
	c.domainCounts[host]++
	if c.pagesScraped >= c.params.MaxPages && !c.stop.Load() {
		// The worker holding this admission still completes its page.
		c.logger.Info("reached maximum page limit", zap.Int("max_pages", c.params.MaxPages))
		c.stop.Store(true)
	}
	return true
}

// fetchPage holds a semaphore slot for the duration of the request so
// page and asset fetches share one in-flight HTTP budget.
func (c *Controller) fetchPage(ctx context.Context, pageURL string) (fetcher.FetchResult, failure.ClassifiedError) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fetcher.FetchResult{}, &fetcher.FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     fetcher.ErrCauseNetworkFailure,
		}
	}
	defer c.sem.Release(1)
	return c.fetcher.FetchPage(ctx, pageURL, "")
}

func (c *Controller) alreadyVisited(pageURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visited.Contains(pageURL)
}

// isStored reports whether a canonical page URL has a stored snapshot.
// The rewriter consults this for anchor localization.
func (c *Controller) isStored(canonicalURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storedPages.Contains(canonicalURL)
}

func canonicalKey(raw string) string {
	canonical, err := urlutil.CanonicalString(raw)
	if err != nil {
		return raw
	}
	return canonical
}

func (c *Controller) setFatal(err failure.ClassifiedError) {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	if c.fatalErr == nil {
		c.fatalErr = err
	}
}

func (c *Controller) fatal() failure.ClassifiedError {
	c.fatalMu.Lock()
	defer c.fatalMu.Unlock()
	return c.fatalErr
}

func (c *Controller) urlList(manifest metadata.RunManifest) urlListDocument {
	urls := make([]string, 0, len(manifest.Pages))
	for pageURL := range manifest.Pages {
		urls = append(urls, pageURL)
	}
	sort.Strings(urls)
	return urlListDocument{
		StartURL:            c.params.StartURL,
		Timestamp:           c.params.RunID,
		TotalURLs:           len(urls),
		MaxPagesLimit:       c.params.MaxPages,
		PagesPerDomainLimit: c.params.PagesPerDomain,
		URLs:                urls,
	}
}

func (c *Controller) logSummary(manifest metadata.RunManifest) {
	c.logger.Info("crawl summary",
		zap.Int("pages_scraped", manifest.Stats.PagesScraped),
		zap.Int("max_pages", c.params.MaxPages),
		zap.Int("assets_downloaded", len(manifest.AssetMap)),
		zap.Int("failed_assets", len(manifest.FailedAssets)),
		zap.Int("pages_failed", manifest.Stats.PagesFailed),
		zap.Int64("bytes_downloaded", manifest.Stats.BytesDownloaded),
		zap.Float64("elapsed_seconds", manifest.Stats.ElapsedSeconds),
		zap.Float64("pages_per_second", manifest.Stats.PagesPerSecond),
		zap.Int("domains", manifest.Stats.TotalDomains))

	type domainCount struct {
		domain string
		count  int
	}
	top := make([]domainCount, 0, len(manifest.DomainCounts))
	for d, n := range manifest.DomainCounts {
		top = append(top, domainCount{d, n})
	}
	sort.Slice(top, func(i, j int) bool { return top[i].count > top[j].count })
	if len(top) > 5 {
		top = top[:5]
	}
	for _, dc := range top {
		c.logger.Info("top domain", zap.String("domain", dc.domain), zap.Int("pages", dc.count))
	}
}
