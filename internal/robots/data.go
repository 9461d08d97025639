package robots

import (
	"net/url"
)

// Permission modeling

// DefaultAgent is the product token the crawler matches against
// robots.txt user-agent groups.
const DefaultAgent = "WebArchiver/1.0"

type DecisionReason string

const (
	AllowedByRobots    DecisionReason = "allowed_by_robots"
	DisallowedByRobots DecisionReason = "disallowed_by_robots"
	AllowedNoRules     DecisionReason = "no_rules"
	AllowedOnError     DecisionReason = "fetch_error_allow_all"
)

type Decision struct {
	Url url.URL

	Allowed bool

	// Why this decision was made (for logging/debugging)
	Reason DecisionReason
}
