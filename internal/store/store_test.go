package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

func TestBuildPageFilter_RunOnly(t *testing.T) {
	where, args := buildPageFilter(7, PageQuery{})

	assert.Equal(t, "WHERE run_id = $1", where)
	assert.Equal(t, []interface{}{int64(7)}, args)
}

func TestBuildPageFilter_Search(t *testing.T) {
	where, args := buildPageFilter(7, PageQuery{Search: "docs"})

	assert.Equal(t, "WHERE run_id = $1 AND (url ILIKE $2 OR domain ILIKE $3)", where)
	assert.Equal(t, []interface{}{int64(7), "%docs%", "%docs%"}, args)
}

func TestBuildPageFilter_SearchAndDomain(t *testing.T) {
	where, args := buildPageFilter(7, PageQuery{Search: "docs", Domain: "example.com"})

	assert.Equal(t,
		"WHERE run_id = $1 AND (url ILIKE $2 OR domain ILIKE $3) AND domain = $4",
		where,
	)
	require.Len(t, args, 4)
	assert.Equal(t, "example.com", args[3])
}

func TestBuildPageFilter_DomainOnly(t *testing.T) {
	where, args := buildPageFilter(7, PageQuery{Domain: "example.com"})

	assert.Equal(t, "WHERE run_id = $1 AND domain = $2", where)
	assert.Equal(t, []interface{}{int64(7), "example.com"}, args)
}

func TestParseRecordTime(t *testing.T) {
	parsed := parseRecordTime("2026-01-01T12:00:00Z")
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), parsed)

	// Malformed timestamps fall back to now rather than failing the insert.
	fallback := parseRecordTime("not a timestamp")
	assert.WithinDuration(t, time.Now(), fallback, time.Minute)
}

func TestStoreError_NeverFatal(t *testing.T) {
	err := &StoreError{Message: "connection refused", Retryable: true, Cause: ErrCauseConnectFailure}

	assert.Equal(t, "store error: connect failed", err.Error())
	assert.Equal(t, failure.SeverityRecoverable, err.Severity())
	assert.True(t, err.IsRetryable())
}
