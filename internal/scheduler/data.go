package scheduler

import "time"

// CrawlParams carries the crawl's admission limits and identity. The
// CLI maps config onto this; tests construct it directly.
type CrawlParams struct {
	StartURL       string
	RunID          string
	MaxWorkers     int
	MaxDepth       int
	MaxPages       int
	PagesPerDomain int
	RespectRobots  bool

	// IdleTimeout overrides how long an idle worker lingers on an empty
	// queue before exiting. Zero means the 5 s default.
	IdleTimeout time.Duration
}

// urlListDocument is the scraped_urls.json sidecar: a flat URL index
// for consumers that do not want to parse the full manifest.
type urlListDocument struct {
	StartURL            string   `json:"start_url"`
	Timestamp           string   `json:"timestamp"`
	TotalURLs           int      `json:"total_urls"`
	MaxPagesLimit       int      `json:"max_pages_limit"`
	PagesPerDomainLimit int      `json:"pages_per_domain_limit"`
	URLs                []string `json:"urls"`
}
