package limiter

import "time"

// Per-host grant bookkeeping. The timestamp records the slot that was
// reserved for the most recent caller, not the moment the request was
// actually sent.
type hostTiming struct {
	lastGrantAt time.Time
}

func (h hostTiming) LastGrantAt() time.Time {
	return h.lastGrantAt
}
