package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
)

/*
Responsibilities
- Keep crawl run history in Postgres when DATABASE_URL is configured
- Create the schema on first connect
- Serve the control server's run and page queries

The store is an optional sidecar. Every failure here is logged by the
caller and the crawl proceeds on the filesystem manifest alone.
*/

const defaultPageLimit = 50

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id SERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		start_url TEXT NOT NULL,
		stats JSONB,
		domain_counts JSONB,
		status TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS pages (
		id SERIAL PRIMARY KEY,
		run_id INTEGER NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		timestamp TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		content_type TEXT,
		filepath TEXT,
		depth INTEGER,
		size BIGINT,
		domain TEXT
	)`,
}

// Store persists run history through a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to databaseURL, ensures the schema exists and returns
// the store. The caller owns Close.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseConnectFailure}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseConnectFailure}
	}

	for _, statement := range schemaStatements {
		if _, err := pool.Exec(ctx, statement); err != nil {
			pool.Close()
			return nil, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseSchemaFailure}
		}
	}

	logger.Info("run store connected")
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// CreateRun inserts a new run in status running and returns its id.
func (s *Store) CreateRun(ctx context.Context, startURL string) (int64, error) {
	var runID int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO runs (start_url, status) VALUES ($1, $2) RETURNING id`,
		startURL, StatusRunning,
	).Scan(&runID)
	if err != nil {
		return 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return runID, nil
}

// UpdateRun stores the final stats and status of a run.
func (s *Store) UpdateRun(ctx context.Context, runID int64, stats metadata.Stats, domainCounts map[string]int, status string) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueryFailure}
	}
	countsJSON, err := json.Marshal(domainCounts)
	if err != nil {
		return &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseQueryFailure}
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET stats = $1, domain_counts = $2, status = $3 WHERE id = $4`,
		statsJSON, countsJSON, status, runID,
	)
	if err != nil {
		return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return nil
}

// InsertPages batches all page records of a run in one round trip.
func (s *Store) InsertPages(ctx context.Context, runID int64, pages map[string]metadata.PageRecord) error {
	if len(pages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, page := range pages {
		batch.Queue(
			`INSERT INTO pages (run_id, url, timestamp, content_type, filepath, depth, size, domain)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, page.URL, parseRecordTime(page.Timestamp), page.ContentType,
			page.Filepath, page.Depth, page.Size, page.Domain,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range pages {
		if _, err := results.Exec(); err != nil {
			return &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
		}
	}
	return nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, start_url, stats, domain_counts, status
		 FROM runs ORDER BY timestamp DESC`,
	)
	if err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return runs, nil
}

// GetRun returns one run by id. A missing run surfaces pgx.ErrNoRows
// through the returned error's message.
func (s *Store) GetRun(ctx context.Context, runID int64) (RunRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, start_url, stats, domain_counts, status
		 FROM runs WHERE id = $1`,
		runID,
	)
	if err != nil {
		return RunRow{}, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	if !rows.Next() {
		return RunRow{}, &StoreError{Message: pgx.ErrNoRows.Error(), Retryable: false, Cause: ErrCauseQueryFailure}
	}
	return scanRun(rows)
}

// ListPages returns a filtered page slice of a run plus the total
// matching count for pagination.
func (s *Store) ListPages(ctx context.Context, runID int64, query PageQuery) ([]PageRow, int, error) {
	where, args := buildPageFilter(runID, query)

	var total int
	countErr := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pages `+where, args...).Scan(&total)
	if countErr != nil {
		return nil, 0, &StoreError{Message: countErr.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	listSQL := fmt.Sprintf(
		`SELECT id, run_id, url, timestamp, content_type, filepath, depth, size, domain
		 FROM pages %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, query.Offset)

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return nil, 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	defer rows.Close()

	var pages []PageRow
	for rows.Next() {
		var page PageRow
		if err := rows.Scan(
			&page.ID, &page.RunID, &page.URL, &page.Timestamp,
			&page.ContentType, &page.Filepath, &page.Depth, &page.Size, &page.Domain,
		); err != nil {
			return nil, 0, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &StoreError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailure}
	}
	return pages, total, nil
}

// buildPageFilter assembles the WHERE clause shared by the count and
// list queries. Search matches url or domain case-insensitively.
func buildPageFilter(runID int64, query PageQuery) (string, []interface{}) {
	where := "WHERE run_id = $1"
	args := []interface{}{runID}

	if query.Search != "" {
		pattern := "%" + query.Search + "%"
		where += fmt.Sprintf(" AND (url ILIKE $%d OR domain ILIKE $%d)", len(args)+1, len(args)+2)
		args = append(args, pattern, pattern)
	}
	if query.Domain != "" {
		where += fmt.Sprintf(" AND domain = $%d", len(args)+1)
		args = append(args, query.Domain)
	}
	return where, args
}

func scanRun(rows pgx.Rows) (RunRow, error) {
	var (
		run        RunRow
		statsJSON  []byte
		countsJSON []byte
	)
	if err := rows.Scan(&run.ID, &run.Timestamp, &run.StartURL, &statsJSON, &countsJSON, &run.Status); err != nil {
		return RunRow{}, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return RunRow{}, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
		}
	}
	if len(countsJSON) > 0 {
		if err := json.Unmarshal(countsJSON, &run.DomainCounts); err != nil {
			return RunRow{}, &StoreError{Message: err.Error(), Retryable: false, Cause: ErrCauseScanFailure}
		}
	}
	return run, nil
}

// parseRecordTime converts a manifest timestamp back to time.Time.
// Manifest timestamps are RFC 3339; anything else falls back to now so
// the insert never fails on a malformed record.
func parseRecordTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now()
	}
	return parsed
}
