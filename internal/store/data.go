package store

import (
	"time"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
)

// RunRow is one row of the runs table.
type RunRow struct {
	ID           int64          `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	StartURL     string         `json:"start_url"`
	Stats        metadata.Stats `json:"stats"`
	DomainCounts map[string]int `json:"domain_counts"`
	Status       string         `json:"status"`
}

// PageRow is one row of the pages table.
type PageRow struct {
	ID          int64     `json:"id"`
	RunID       int64     `json:"run_id"`
	URL         string    `json:"url"`
	Timestamp   time.Time `json:"timestamp"`
	ContentType string    `json:"content_type"`
	Filepath    string    `json:"filepath"`
	Depth       int       `json:"depth"`
	Size        int64     `json:"size"`
	Domain      string    `json:"domain"`
}

// PageQuery narrows a ListPages call. Zero values mean "no filter";
// a zero Limit falls back to defaultPageLimit.
type PageQuery struct {
	Limit  int
	Offset int
	Search string
	Domain string
}

// Run status values mirroring the crawl lifecycle.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
