package failure

type Severity int

// scheduler control flow
const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityRecoverable:
		return "recoverable"
	default:
		return "unknown"
	}
}

// ClassifiedError is the error contract between components and the
// scheduler: every error crossing a package boundary carries a severity
// so the scheduler can decide between aborting the run and skipping the
// current page or asset.
type ClassifiedError interface {
	error
	Severity() Severity
}
