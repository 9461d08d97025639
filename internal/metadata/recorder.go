package metadata

import (
	"sort"
	"sync"
	"time"

	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Crawl depth
- Stored page records
- Asset url -> local path mappings

Determinism guarantees:
 - Metadata does not affect control flow
 - Errors do not reorder the frontier
 - Output is stable given identical inputs

Metadata is write-only during the crawl.
No component may read metadata to influence crawl decisions;
the manifest snapshot is taken once, after termination.
*/

/*
Recorder accumulates the run manifest.
It must not:
- perform I/O
- affect control flow
- impose a logging backend
Ordering guarantees:
- Events are recorded synchronously in the order they are received by a single worker.
- No global ordering across workers is guaranteed.
- Consumers MUST NOT assume total ordering across the crawl.
*/
type Recorder struct {
	mu sync.Mutex

	startURL            string
	maxPagesLimit       int
	pagesPerDomainLimit int
	startedAt           time.Time

	pages           []PageRecord
	domainCounts    map[string]int
	pagesFailed     int
	bytesDownloaded int64
	assetMap        map[string]string
	failedAssets    map[string]struct{}
	errorCount      int

	finalized  bool
	finalStats Stats
}

func NewRecorder(startURL string, maxPages int, pagesPerDomain int) *Recorder {
	return &Recorder{
		startURL:            startURL,
		maxPagesLimit:       maxPages,
		pagesPerDomainLimit: pagesPerDomain,
		startedAt:           time.Now(),
		domainCounts:        make(map[string]int),
		assetMap:            make(map[string]string),
		failedAssets:        make(map[string]struct{}),
	}
}

// RecordPage appends a stored page and bumps the per-domain counter.
func (r *Recorder) RecordPage(rec PageRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, rec)
	r.domainCounts[rec.Domain]++
	r.bytesDownloaded += rec.Size
}

// RecordPageFailure counts a page that was admitted but never stored.
func (r *Recorder) RecordPageFailure(pageURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pagesFailed++
}

// RecordAssetStored publishes an asset url -> run-relative path mapping.
func (r *Recorder) RecordAssetStored(assetURL string, localPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assetMap[assetURL] = localPath
}

// RecordAssetFailure adds an asset URL to the negative set.
func (r *Recorder) RecordAssetFailure(assetURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedAssets[assetURL] = struct{}{}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}

/*
RecordFinalCrawlStats records a terminal, derived summary of a completed crawl.

Contract:
  - MUST be called exactly once per crawl execution.
  - MUST be called only after crawl termination
    (frontier exhausted or scheduler abort).
  - MUST NOT be called during active crawling.
  - The provided totals MUST be derived from scheduler state,
    not accumulated incrementally via the recorder.
  - Recorded stats MUST NOT influence control flow or scheduling.
*/
func (r *Recorder) RecordFinalCrawlStats(
	totalPages int,
	totalErrors int,
	totalAssets int,
	duration time.Duration,
) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = true
	r.finalStats = r.statsLocked(duration)
}

// Manifest assembles the metadata.json document. Maps and slices are
// copied so later recorder activity cannot alias into the snapshot.
func (r *Recorder) Manifest() RunManifest {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.startedAt)
	stats := r.statsLocked(elapsed)
	if r.finalized {
		stats = r.finalStats
	}

	pages := make(map[string]PageRecord, len(r.pages))
	for _, rec := range r.pages {
		pages[rec.URL] = rec
	}

	assetMap := make(map[string]string, len(r.assetMap))
	for k, v := range r.assetMap {
		assetMap[k] = v
	}

	failed := make([]string, 0, len(r.failedAssets))
	for u := range r.failedAssets {
		failed = append(failed, u)
	}
	sort.Strings(failed)

	return RunManifest{
		StartURL:            r.startURL,
		TotalPages:          len(pages),
		PagesScraped:        len(pages),
		MaxPagesLimit:       r.maxPagesLimit,
		PagesPerDomainLimit: r.pagesPerDomainLimit,
		Timestamp:           timeutil.ISO8601(r.startedAt),
		Stats:               stats,
		DomainCounts:        stats.DomainCounts,
		Pages:               pages,
		AssetMap:            assetMap,
		FailedAssets:        failed,
	}
}

// AssetMapSize reports how many assets were stored. Observational only.
func (r *Recorder) AssetMapSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.assetMap)
}

func (r *Recorder) statsLocked(elapsed time.Duration) Stats {
	counts := make(map[string]int, len(r.domainCounts))
	for d, n := range r.domainCounts {
		counts[d] = n
	}

	seconds := elapsed.Seconds()
	pps := 0.0
	if seconds > 0 {
		pps = float64(len(r.pages)) / seconds
	}

	return Stats{
		PagesScraped:    len(r.pages),
		PagesFailed:     r.pagesFailed,
		BytesDownloaded: r.bytesDownloaded,
		ElapsedSeconds:  seconds,
		PagesPerSecond:  pps,
		DomainCounts:    counts,
		TotalDomains:    len(counts),
	}
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		crawlDepth int,
	)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

type CrawlFinalizer interface {
	RecordFinalCrawlStats(
		totalPages int,
		totalErrors int,
		totalAssets int,
		duration time.Duration,
	)
}

// NoopSink implements MetadataSink but does nothing.
// The scheduler (or a test) decides whether to inject the Recorder or NoopSink;
// the purpose is to keep metadata orthogonal.

type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {

}

func (n *NoopSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
}

func (n *NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}
