package metadata

import (
	"time"
)

/*
PageRecord
  - Describes one stored page exactly as it appears in metadata.json
  - Timestamp is ISO-8601 (RFC3339) at fetch time
  - Filepath is relative to the run directory (e.g. "html/<digest>.html")
  - Domain is the host the page was fetched from
*/
type PageRecord struct {
	URL         string `json:"url"`
	Timestamp   string `json:"timestamp"`
	ContentType string `json:"content_type"`
	Filepath    string `json:"filepath"`
	Depth       int    `json:"depth"`
	Size        int64  `json:"size"`
	Domain      string `json:"domain"`
}

/*
Stats
  - Terminal, derived summary of a completed crawl
  - Computed by the recorder at finalize time, never incrementally exposed
  - Must not influence scheduling, retries, or crawl termination
*/
type Stats struct {
	PagesScraped    int            `json:"pages_scraped"`
	PagesFailed     int            `json:"pages_failed"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	ElapsedSeconds  float64        `json:"elapsed_seconds"`
	PagesPerSecond  float64        `json:"pages_per_second"`
	DomainCounts    map[string]int `json:"domain_counts"`
	TotalDomains    int            `json:"total_domains"`
}

/*
RunManifest is the top-level document serialized to metadata.json.

Contract:
  - Produced exactly once per run, after the frontier drains.
  - Single-writer discipline: only the recorder assembles it.
  - Pages maps page URL to its record; the visited set guarantees one
    record per URL.
  - AssetMap maps absolute asset URL to run-relative local path.
  - FailedAssets lists asset URLs that were attempted and negative-cached.
*/
type RunManifest struct {
	StartURL            string                `json:"start_url"`
	TotalPages          int                   `json:"total_pages"`
	PagesScraped        int                   `json:"pages_scraped"`
	MaxPagesLimit       int                   `json:"max_pages_limit"`
	PagesPerDomainLimit int                   `json:"pages_per_domain_limit"`
	Timestamp           string                `json:"timestamp"`
	Stats               Stats                 `json:"stats"`
	DomainCounts        map[string]int        `json:"domain_counts"`
	Pages               map[string]PageRecord `json:"pages"`
	AssetMap            map[string]string     `json:"asset_map"`
	FailedAssets        []string              `json:"failed_assets"`
}

type FetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

type ArtifactKind string

const (
	ArtifactHTML     ArtifactKind = "html"
	ArtifactAsset    ArtifactKind = "asset"
	ArtifactManifest ArtifactKind = "manifest"
	ArtifactURLList  ArtifactKind = "url_list"
)

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause is for observability only.
	 - It must never be used to derive retry, continuation, or abort decisions.
	 - Any use of metadata.ErrorCause outside logging, metrics, or reporting is a design violation.
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.
	Non-goals:
	 - ErrorCause does not encode severity.
	 - ErrorCause does not imply retryability.
	 - ErrorCause does not imply crawl termination.
	 - ErrorCause does not imply correctness of downstream behavior.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning:
  - The failure does not map cleanly to any known category.
  - Used as a safe fallback.

Examples:
  - Unexpected internal errors
  - Unclassified third-party library failures

# CauseNetworkFailure

Meaning:
  - Failure caused by network transport or remote availability.

Examples:
  - TCP timeouts
  - DNS resolution failures
  - Connection resets
  - robots.txt fetch timeout

# CausePolicyDisallow

Meaning:
  - Crawling was disallowed by an explicit policy or rule.

Examples:
  - robots.txt disallow
  - HTTP 403 / 401 interpreted as access denial
  - rate-limit enforcement

# CauseContentInvalid

Meaning:
  - Content was fetched but could not be processed meaningfully.

Examples:
  - Non-HTML responses
  - Empty or unparseable document bodies
  - Broken DOM preventing rewriting

# CauseStorageFailure

Meaning:
  - Failure while persisting crawl artifacts.

Examples:
  - Disk full
  - Write permission errors
  - Filesystem I/O failures

# CauseInvariantViolation

Meaning:
  - A system-level invariant was violated.

Examples:
  - Impossible crawl depth
  - Internal consistency checks failing
*/
const (
	CauseUnknown = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
)

type ErrorRecord struct {
	packageName string
	action      string
	cause       ErrorCause
	errorString string
	observedAt  time.Time
	attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrAssetURL   AttributeKey = "asset_url"
	AttrWritePath  AttributeKey = "write_path"
)
