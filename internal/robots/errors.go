package robots

import (
	"fmt"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCausePreFetchFailure  = "request construction failure"
	ErrCauseHttpFetchFailure = "http fetch failure"
	ErrCauseBodyReadFailure  = "body read failure"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s", e.Message)
}

func (e *RobotsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}

// mapRobotsErrorToMetadataCause maps robots-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRobotsErrorToMetadataCause(err *RobotsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseHttpFetchFailure, ErrCauseBodyReadFailure:
		return metadata.CauseNetworkFailure
	case ErrCausePreFetchFailure:
		return metadata.CauseUnknown
	default:
		return metadata.CauseUnknown
	}
}
