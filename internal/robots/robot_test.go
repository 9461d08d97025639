package robots_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/robots"
	"github.com/rohmanhakim/webarchiver/internal/robots/cache"
)

func newOracle(t *testing.T) *robots.Oracle {
	t.Helper()
	fetcher := robots.NewRobotsFetcher(robots.DefaultAgent, cache.NewMemoryCache())
	return robots.NewOracle(fetcher, &metadata.NoopSink{}, nil)
}

func TestOracle_DisallowedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\nAllow: /\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	oracle := newOracle(t)

	d := oracle.Allowed(context.Background(), server.URL+"/private/page", robots.DefaultAgent)
	if d.Allowed {
		t.Errorf("expected /private/page to be disallowed, got %+v", d)
	}
	if d.Reason != robots.DisallowedByRobots {
		t.Errorf("reason = %q, want %q", d.Reason, robots.DisallowedByRobots)
	}

	d = oracle.Allowed(context.Background(), server.URL+"/public/page", robots.DefaultAgent)
	if !d.Allowed {
		t.Errorf("expected /public/page to be allowed, got %+v", d)
	}
	if d.Reason != robots.AllowedByRobots {
		t.Errorf("reason = %q, want %q", d.Reason, robots.AllowedByRobots)
	}
}

func TestOracle_AgentSpecificGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: WebArchiver\nDisallow: /archive-blocked/\n\nUser-agent: *\nDisallow:\n")
	}))
	defer server.Close()

	oracle := newOracle(t)

	d := oracle.Allowed(context.Background(), server.URL+"/archive-blocked/x", robots.DefaultAgent)
	if d.Allowed {
		t.Errorf("agent-specific disallow not honored: %+v", d)
	}
}

func TestOracle_MissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	oracle := newOracle(t)

	d := oracle.Allowed(context.Background(), server.URL+"/anything", robots.DefaultAgent)
	if !d.Allowed {
		t.Errorf("404 robots.txt must allow all, got %+v", d)
	}
	if d.Reason != robots.AllowedNoRules {
		t.Errorf("reason = %q, want %q", d.Reason, robots.AllowedNoRules)
	}
}

func TestOracle_ServerErrorAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	oracle := newOracle(t)

	d := oracle.Allowed(context.Background(), server.URL+"/page", robots.DefaultAgent)
	if !d.Allowed {
		t.Errorf("500 robots.txt must allow all, got %+v", d)
	}
}

func TestOracle_UnreachableOriginAllowsAll(t *testing.T) {
	// Nothing listens here
	oracle := newOracle(t)

	d := oracle.Allowed(context.Background(), "http://127.0.0.1:1/page", robots.DefaultAgent)
	if !d.Allowed {
		t.Errorf("unreachable origin must allow all, got %+v", d)
	}
	if d.Reason != robots.AllowedNoRules {
		t.Errorf("reason = %q, want %q", d.Reason, robots.AllowedNoRules)
	}
}

func TestOracle_FetchesOncePerOrigin(t *testing.T) {
	var fetches int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt64(&fetches, 1)
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
		}
	}))
	defer server.Close()

	oracle := newOracle(t)

	for i := 0; i < 10; i++ {
		oracle.Allowed(context.Background(), fmt.Sprintf("%s/page/%d", server.URL, i), robots.DefaultAgent)
	}

	if got := atomic.LoadInt64(&fetches); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestOracle_ConcurrentCallersShareOneFetch(t *testing.T) {
	var fetches int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt64(&fetches, 1)
			time.Sleep(50 * time.Millisecond)
			fmt.Fprint(w, "User-agent: *\nDisallow:\n")
		}
	}))
	defer server.Close()

	oracle := newOracle(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d := oracle.Allowed(context.Background(), fmt.Sprintf("%s/p/%d", server.URL, n), robots.DefaultAgent)
			if !d.Allowed {
				t.Errorf("unexpected deny: %+v", d)
			}
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&fetches); got != 1 {
		t.Errorf("concurrent callers caused %d fetches, want 1", got)
	}
}

func TestRobotsFetcher_CachesRawResult(t *testing.T) {
	var fetches int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&fetches, 1)
		fmt.Fprint(w, "User-agent: *\nDisallow: /x\n")
	}))
	defer server.Close()

	memCache := cache.NewMemoryCache()
	fetcher := robots.NewRobotsFetcher(robots.DefaultAgent, memCache)

	first, ferr := fetcher.Fetch(context.Background(), server.URL)
	if ferr != nil {
		t.Fatalf("first fetch failed: %v", ferr)
	}
	second, ferr := fetcher.Fetch(context.Background(), server.URL)
	if ferr != nil {
		t.Fatalf("second fetch failed: %v", ferr)
	}

	if atomic.LoadInt64(&fetches) != 1 {
		t.Errorf("expected 1 HTTP fetch, got %d", fetches)
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("cached body differs: %q vs %q", first.Body, second.Body)
	}
	if memCache.Size() != 1 {
		t.Errorf("cache size = %d, want 1", memCache.Size())
	}
}

func TestRobotsFetcher_BodyCapped(t *testing.T) {
	big := make([]byte, 600*1024)
	for i := range big {
		big[i] = 'a'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer server.Close()

	fetcher := robots.NewRobotsFetcher(robots.DefaultAgent, nil)
	result, ferr := fetcher.Fetch(context.Background(), server.URL)
	if ferr != nil {
		t.Fatalf("fetch failed: %v", ferr)
	}
	if len(result.Body) != 500*1024 {
		t.Errorf("body length = %d, want capped at %d", len(result.Body), 500*1024)
	}
}
