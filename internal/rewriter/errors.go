package rewriter

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type RewriteErrorCause string

const (
	ErrCauseNotHTML          RewriteErrorCause = "content is not parseable HTML"
	ErrCauseSerializeFailure RewriteErrorCause = "failed to serialize rewritten document"
)

type RewriteError struct {
	Message   string
	Retryable bool
	Cause     RewriteErrorCause
}

func (e *RewriteError) Error() string {
	return fmt.Sprintf("rewriter error: %s", e.Message)
}

// Severity is always recoverable: a page that cannot be rewritten is
// stored as fetched, it never stops the run.
func (e *RewriteError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *RewriteError) IsRetryable() bool {
	return e.Retryable
}

func mapRewriteErrorToMetadataCause(err *RewriteError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseSerializeFailure:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
