package server

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type ServerErrorCause string

const (
	ErrCauseScrapeActive       = "scrape already in progress"
	ErrCauseScrapeIdle         = "no active scrape"
	ErrCauseScrapeSpawnFailure = "scrape process spawn failed"
)

type ServerError struct {
	Message string
	Cause   ServerErrorCause
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Cause)
}

// Severity is always recoverable: a failed request leaves the server
// able to answer the next one.
func (e *ServerError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ServerError) IsRetryable() bool {
	return e.Cause != ErrCauseScrapeActive
}
