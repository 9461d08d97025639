package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

/*
Configuration resolution order, lowest to highest:

	defaults < JSON config file < environment (.env honored) < flags

The CLI applies flags through the With* setters after loading the file
and the environment, so the chain reads in precedence order:

	cfg, err := config.WithDefault().
		WithConfigFile(path).
		WithEnvironment().
		WithStartURL(flagStartURL).
		Build()
*/

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Seed page. Its host fixes the in-scope boundary for the crawl.
	startURL string

	//===============
	// Limits
	//===============
	// Worker pool size; also the weight of the shared HTTP semaphore.
	maxWorkers int
	// Maximum number of hyperlink hops from the seed URL
	maxDepth int
	// Maximum number of total pages allowed to be stored
	maxPages int
	// Maximum number of pages stored per origin host
	pagesPerDomain int

	//===============
	// Politeness
	//===============
	// Whether robots.txt is consulted before fetching a page
	respectRobots bool
	// Minimum spacing between two HTTP requests to the same host
	requestDelay time.Duration

	//===============
	// Output
	//===============
	// Root under which each run directory is created
	outputDir string
	// Where the archiver writes its .tar.zst files
	archiveDir string
	// Skip asset downloads entirely (pages only)
	skipAssets bool
	// zstd level used by the archiver
	compressionLevel int

	//===============
	// Integrations
	//===============
	// Empty disables the run-history store
	databaseURL string
	// Control server bind address
	listenAddr string

	// deferred until Build so the chain stays fluent
	err error
}

// configDTO is the JSON config file shape. Pointer fields distinguish
// "absent" from a meaningful zero (MAX_DEPTH=0 and PAGES_PER_DOMAIN=0
// are valid, restrictive settings).
type configDTO struct {
	StartURL         string   `json:"start_url,omitempty"`
	MaxWorkers       int      `json:"max_workers,omitempty"`
	MaxDepth         *int     `json:"max_depth,omitempty"`
	MaxPages         int      `json:"max_pages,omitempty"`
	PagesPerDomain   *int     `json:"pages_per_domain,omitempty"`
	RespectRobots    *bool    `json:"respect_robots_txt,omitempty"`
	RequestDelay     *float64 `json:"request_delay,omitempty"` // seconds
	OutputDir        string   `json:"output_dir,omitempty"`
	ArchiveDir       string   `json:"archive_dir,omitempty"`
	SkipAssets       *bool    `json:"skip_assets,omitempty"`
	CompressionLevel int      `json:"compression_level,omitempty"`
	DatabaseURL      string   `json:"database_url,omitempty"`
	ListenAddr       string   `json:"listen_addr,omitempty"`
}

// WithDefault creates a Config populated with every default value.
func WithDefault() *Config {
	return &Config{
		startURL:         "https://example.com",
		maxWorkers:       10,
		maxDepth:         3,
		maxPages:         100,
		pagesPerDomain:   50,
		respectRobots:    true,
		requestDelay:     500 * time.Millisecond,
		outputDir:        "./scraped_data",
		archiveDir:       "./archives",
		skipAssets:       false,
		compressionLevel: 19,
		databaseURL:      "",
		listenAddr:       ":8080",
	}
}

// WithConfigFile overlays values from a JSON config file. A missing or
// unreadable file is an error surfaced at Build; pass "" to skip.
func (c *Config) WithConfigFile(path string) *Config {
	if path == "" {
		return c
	}
	if _, err := os.Stat(path); err != nil {
		c.fail(fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error()))
		return c
	}
	content, err := os.ReadFile(path)
	if err != nil {
		c.fail(fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error()))
		return c
	}
	dto := configDTO{}
	if err := json.Unmarshal(content, &dto); err != nil {
		c.fail(fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error()))
		return c
	}

	if dto.StartURL != "" {
		c.startURL = dto.StartURL
	}
	if dto.MaxWorkers != 0 {
		c.maxWorkers = dto.MaxWorkers
	}
	if dto.MaxDepth != nil {
		c.maxDepth = *dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		c.maxPages = dto.MaxPages
	}
	if dto.PagesPerDomain != nil {
		c.pagesPerDomain = *dto.PagesPerDomain
	}
	if dto.RespectRobots != nil {
		c.respectRobots = *dto.RespectRobots
	}
	if dto.RequestDelay != nil {
		c.requestDelay = secondsToDuration(*dto.RequestDelay)
	}
	if dto.OutputDir != "" {
		c.outputDir = dto.OutputDir
	}
	if dto.ArchiveDir != "" {
		c.archiveDir = dto.ArchiveDir
	}
	if dto.SkipAssets != nil {
		c.skipAssets = *dto.SkipAssets
	}
	if dto.CompressionLevel != 0 {
		c.compressionLevel = dto.CompressionLevel
	}
	if dto.DatabaseURL != "" {
		c.databaseURL = dto.DatabaseURL
	}
	if dto.ListenAddr != "" {
		c.listenAddr = dto.ListenAddr
	}
	return c
}

// WithEnvironment overlays values from environment variables, loading
// a .env file first when one exists in the working directory.
func (c *Config) WithEnvironment() *Config {
	// Absence of a .env file is the common case, not an error.
	_ = godotenv.Load()

	if v := os.Getenv("START_URL"); v != "" {
		c.startURL = v
	}
	c.envInt("MAX_WORKERS", &c.maxWorkers)
	c.envInt("MAX_DEPTH", &c.maxDepth)
	c.envInt("MAX_PAGES", &c.maxPages)
	c.envInt("PAGES_PER_DOMAIN", &c.pagesPerDomain)
	c.envBool("RESPECT_ROBOTS_TXT", &c.respectRobots)
	c.envBool("SKIP_ASSETS", &c.skipAssets)
	c.envInt("COMPRESSION_LEVEL", &c.compressionLevel)
	if v := os.Getenv("REQUEST_DELAY"); v != "" {
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.fail(fmt.Errorf("%w: REQUEST_DELAY=%q is not a number", ErrInvalidConfig, v))
		} else {
			c.requestDelay = secondsToDuration(seconds)
		}
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.outputDir = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		c.archiveDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.databaseURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.listenAddr = v
	}
	return c
}

func (c *Config) envInt(name string, target *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		c.fail(fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v))
		return
	}
	*target = parsed
}

func (c *Config) envBool(name string, target *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		c.fail(fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, name, v))
		return
	}
	*target = parsed
}

func (c *Config) WithStartURL(startURL string) *Config {
	if startURL != "" {
		c.startURL = startURL
	}
	return c
}

func (c *Config) WithMaxWorkers(workers int) *Config {
	c.maxWorkers = workers
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithPagesPerDomain(pages int) *Config {
	c.pagesPerDomain = pages
	return c
}

func (c *Config) WithRespectRobots(respect bool) *Config {
	c.respectRobots = respect
	return c
}

func (c *Config) WithRequestDelay(delay time.Duration) *Config {
	c.requestDelay = delay
	return c
}

func (c *Config) WithOutputDir(dir string) *Config {
	if dir != "" {
		c.outputDir = dir
	}
	return c
}

func (c *Config) WithArchiveDir(dir string) *Config {
	if dir != "" {
		c.archiveDir = dir
	}
	return c
}

func (c *Config) WithSkipAssets(skip bool) *Config {
	c.skipAssets = skip
	return c
}

func (c *Config) WithCompressionLevel(level int) *Config {
	c.compressionLevel = level
	return c
}

func (c *Config) WithDatabaseURL(databaseURL string) *Config {
	if databaseURL != "" {
		c.databaseURL = databaseURL
	}
	return c
}

func (c *Config) WithListenAddr(addr string) *Config {
	if addr != "" {
		c.listenAddr = addr
	}
	return c
}

func (c *Config) Build() (Config, error) {
	if c.err != nil {
		return Config{}, c.err
	}

	parsed, err := url.Parse(c.startURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Config{}, fmt.Errorf("%w: start URL %q must be absolute with scheme and host", ErrInvalidConfig, c.startURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Config{}, fmt.Errorf("%w: start URL scheme %q is not http(s)", ErrInvalidConfig, parsed.Scheme)
	}
	if c.maxWorkers < 1 {
		return Config{}, fmt.Errorf("%w: max workers must be at least 1", ErrInvalidConfig)
	}
	if c.maxDepth < 0 {
		return Config{}, fmt.Errorf("%w: max depth cannot be negative", ErrInvalidConfig)
	}
	if c.maxPages < 0 || c.pagesPerDomain < 0 {
		return Config{}, fmt.Errorf("%w: page budgets cannot be negative", ErrInvalidConfig)
	}
	if c.requestDelay < 0 {
		return Config{}, fmt.Errorf("%w: request delay cannot be negative", ErrInvalidConfig)
	}
	if c.compressionLevel < 1 || c.compressionLevel > 22 {
		return Config{}, fmt.Errorf("%w: compression level %d outside 1..22", ErrInvalidConfig, c.compressionLevel)
	}

	return *c, nil
}

func (c *Config) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func (c Config) StartURL() string {
	return c.startURL
}

// SeedURL returns the parsed start URL. Build guarantees it parses.
func (c Config) SeedURL() url.URL {
	parsed, _ := url.Parse(c.startURL)
	return *parsed
}

func (c Config) MaxWorkers() int {
	return c.maxWorkers
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) PagesPerDomain() int {
	return c.pagesPerDomain
}

func (c Config) RespectRobots() bool {
	return c.respectRobots
}

func (c Config) RequestDelay() time.Duration {
	return c.requestDelay
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) ArchiveDir() string {
	return c.archiveDir
}

func (c Config) SkipAssets() bool {
	return c.skipAssets
}

func (c Config) CompressionLevel() int {
	return c.compressionLevel
}

func (c Config) DatabaseURL() string {
	return c.databaseURL
}

func (c Config) ListenAddr() string {
	return c.listenAddr
}
