package robots

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

/*
Responsibilities

- Fetch robots.txt once per origin
- Cache parsed rules for the crawl duration
- Answer allow/disallow before a URL enters the frontier

Failure policy: a robots.txt that cannot be fetched or parsed never
blocks the crawl. Any non-200 status, network error, timeout, or parse
error resolves to an allow-all sentinel for that origin.
*/

// Oracle answers robots.txt permission questions per origin.
// The first caller for an origin blocks on the fetch; concurrent
// callers for the same origin share the in-flight fetch and every
// later caller reuses the cached entry.
type Oracle struct {
	mu sync.Mutex
	// nil value = allow-all sentinel for an origin we could not read
	entries map[string]*robotstxt.RobotsData

	group   singleflight.Group
	fetcher *RobotsFetcher

	metadataSink metadata.MetadataSink
	logger       *zap.Logger
}

func NewOracle(fetcher *RobotsFetcher, metadataSink metadata.MetadataSink, logger *zap.Logger) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		entries:      make(map[string]*robotstxt.RobotsData),
		fetcher:      fetcher,
		metadataSink: metadataSink,
		logger:       logger,
	}
}

// Allowed decides whether the given URL may be fetched on behalf of
// the given agent. The decision is observational about WHY via Reason;
// callers branch only on Allowed.
func (o *Oracle) Allowed(ctx context.Context, pageURL string, agent string) Decision {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		// Scope filtering rejects unparseable URLs before they get
		// here; answering allow keeps the oracle total.
		return Decision{Allowed: true, Reason: AllowedOnError}
	}

	origin := urlutil.Origin(parsed)
	data, cached := o.lookup(origin)
	if !cached {
		data = o.resolve(ctx, origin)
	}

	decision := Decision{Url: *parsed}
	if data == nil {
		decision.Allowed = true
		decision.Reason = AllowedNoRules
		return decision
	}

	if data.TestAgent(parsed.RequestURI(), agent) {
		decision.Allowed = true
		decision.Reason = AllowedByRobots
	} else {
		decision.Allowed = false
		decision.Reason = DisallowedByRobots
	}
	return decision
}

func (o *Oracle) lookup(origin string) (*robotstxt.RobotsData, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.entries[origin]
	return data, ok
}

// resolve fetches and parses robots.txt for an origin, collapsing
// concurrent callers onto a single fetch.
func (o *Oracle) resolve(ctx context.Context, origin string) *robotstxt.RobotsData {
	result, _, _ := o.group.Do(origin, func() (interface{}, error) {
		data := o.fetchAndParse(ctx, origin)
		o.mu.Lock()
		o.entries[origin] = data
		o.mu.Unlock()
		return data, nil
	})
	if data, ok := result.(*robotstxt.RobotsData); ok {
		return data
	}
	return nil
}

// fetchAndParse returns nil (the allow-all sentinel) on any failure.
func (o *Oracle) fetchAndParse(ctx context.Context, origin string) *robotstxt.RobotsData {
	result, fetchErr := o.fetcher.Fetch(ctx, origin)
	if fetchErr != nil {
		o.logger.Debug("robots.txt unavailable, allowing all",
			zap.String("origin", origin),
			zap.String("error", fetchErr.Error()))
		o.metadataSink.RecordError(
			time.Now(),
			"robots",
			"Oracle.resolve",
			mapRobotsErrorToMetadataCause(fetchErr),
			fetchErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrHost, origin),
			},
		)
		return nil
	}

	if result.HTTPStatus != 200 {
		o.logger.Debug("robots.txt non-200, allowing all",
			zap.String("origin", origin),
			zap.Int("status", result.HTTPStatus))
		return nil
	}

	data, err := robotstxt.FromBytes(result.Body)
	if err != nil {
		o.logger.Debug("robots.txt unparseable, allowing all",
			zap.String("origin", origin),
			zap.Error(err))
		return nil
	}
	return data
}
