package server

import (
	"github.com/rohmanhakim/webarchiver/internal/archiver"
	"github.com/rohmanhakim/webarchiver/internal/metadata"
)

// runListItem summarizes one run for GET /api/runs.
type runListItem struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	StartURL     string         `json:"start_url"`
	TotalPages   int            `json:"total_pages"`
	PagesScraped int            `json:"pages_scraped"`
	Stats        metadata.Stats `json:"stats"`
}

// runDetail is the GET /api/run/{runID} payload. The compression
// report is present only when the run has been archived.
type runDetail struct {
	ID                string               `json:"id"`
	Metadata          metadata.RunManifest `json:"metadata"`
	CompressionReport *archiver.Report     `json:"compression_report,omitempty"`
}

// pageListItem is a manifest page record plus its digest, which the
// client needs to fetch content and previews.
type pageListItem struct {
	Digest string `json:"digest"`
	metadata.PageRecord
}

type pageListResponse struct {
	Pages      []pageListItem `json:"pages"`
	Pagination pagination     `json:"pagination"`
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// pageContent is the GET /api/run/{runID}/page/{digest} payload.
type pageContent struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	Size    int    `json:"size"`
}

// runStats is the GET /api/run/{runID}/stats payload.
type runStats struct {
	BasicStats         metadata.Stats `json:"basic_stats"`
	DomainDistribution map[string]int `json:"domain_distribution"`
	ContentTypes       map[string]int `json:"content_types"`
	DepthDistribution  map[string]int `json:"depth_distribution"`
}

type archiveEntry struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Created string `json:"created"`
}

type searchResult struct {
	RunID       string `json:"run_id"`
	URL         string `json:"url"`
	Digest      string `json:"digest"`
	Domain      string `json:"domain"`
	Timestamp   string `json:"timestamp"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
}

// scrapeStatus is the GET /api/scrape/status payload. Log carries the
// tail of the run log while a crawl is active.
type scrapeStatus struct {
	Status string   `json:"status"`
	PID    int      `json:"pid,omitempty"`
	Log    []string `json:"log,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
