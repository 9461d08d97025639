package assets

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type AssetsErrorCause string

const (
	ErrCauseForbidden      = "asset forbidden"
	ErrCauseNetworkFailure = "network failure"
	ErrCauseHTTPStatus     = "unexpected http status"
	ErrCauseWriteFailure   = "asset write failure"
	ErrCauseRateLimited    = "rate limit wait aborted"
)

type AssetsError struct {
	Message   string
	Retryable bool
	Cause     AssetsErrorCause
}

func (e *AssetsError) Error() string {
	return fmt.Sprintf("assets error: %s", e.Message)
}

func (e *AssetsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *AssetsError) IsRetryable() bool {
	return e.Retryable
}

// mapAssetsErrorToMetadataCause maps assets-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapAssetsErrorToMetadataCause(err *AssetsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseForbidden:
		return metadata.CausePolicyDisallow
	case ErrCauseNetworkFailure, ErrCauseRateLimited:
		return metadata.CauseNetworkFailure
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
