package archiver

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type ArchiveErrorCause string

const (
	ErrCauseSourceUnreadable = "source directory unreadable"
	ErrCauseTarFailure       = "tar packing failed"
	ErrCauseCompressFailure  = "compression failed"
	ErrCauseReportFailure    = "report write failed"
)

type ArchiveError struct {
	Message   string
	Retryable bool
	Cause     ArchiveErrorCause
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archiver error: %s", e.Cause)
}

// Severity is always fatal: the archiver runs after the crawl is
// complete, so a failed archive has nothing left to recover into.
func (e *ArchiveError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *ArchiveError) IsRetryable() bool {
	return e.Retryable
}
