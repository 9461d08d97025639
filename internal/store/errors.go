package store

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseConnectFailure = "connect failed"
	ErrCauseSchemaFailure  = "schema setup failed"
	ErrCauseQueryFailure   = "query failed"
	ErrCauseScanFailure    = "row scan failed"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s", e.Cause)
}

// Severity is always recoverable: run history is an optional sidecar,
// losing a row never stops a crawl.
func (e *StoreError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}
