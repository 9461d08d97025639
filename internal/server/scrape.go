package server

import (
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/runlog"
)

// statusLogLines bounds the run log tail returned by the status
// endpoint.
const statusLogLines = 50

// overrideFlags maps the env-style keys accepted by the start endpoint
// to crawl flags. Keys outside this table are dropped.
var overrideFlags = map[string]string{
	"START_URL":          "--start-url",
	"MAX_WORKERS":        "--max-workers",
	"MAX_DEPTH":          "--max-depth",
	"MAX_PAGES":          "--max-pages",
	"PAGES_PER_DOMAIN":   "--pages-per-domain",
	"OUTPUT_DIR":         "--output-dir",
	"ARCHIVE_DIR":        "--archive-dir",
	"SKIP_ASSETS":        "--skip-assets",
	"RESPECT_ROBOTS_TXT": "--respect-robots",
	"REQUEST_DELAY":      "--request-delay",
	"COMPRESSION_LEVEL":  "--compression-level",
}

// startScrapeRequest is the POST /api/scrape/start body.
type startScrapeRequest struct {
	StartURL  string            `json:"start_url"`
	Overrides map[string]string `json:"overrides"`
}

// supervisor owns at most one subordinate crawl process. The server
// spawns its own binary with the crawl subcommand so the crawl runs
// with the same config resolution as a manual invocation.
type supervisor struct {
	runLogPath string
	logger     *zap.Logger

	mu     sync.Mutex
	active *exec.Cmd
}

func newSupervisor(runLogPath string, logger *zap.Logger) *supervisor {
	return &supervisor{
		runLogPath: runLogPath,
		logger:     logger,
	}
}

// Start spawns a crawl with the requested overrides. It fails when a
// crawl is already active.
func (s *supervisor) Start(request startScrapeRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return 0, &ServerError{Message: "a scrape is already in progress", Cause: ErrCauseScrapeActive}
	}

	binary, err := os.Executable()
	if err != nil {
		return 0, &ServerError{Message: err.Error(), Cause: ErrCauseScrapeSpawnFailure}
	}

	args := []string{"crawl"}
	if request.StartURL != "" {
		args = append(args, "--start-url", request.StartURL)
	}
	for key, value := range request.Overrides {
		flag, known := overrideFlags[key]
		if !known {
			continue
		}
		args = append(args, flag, value)
	}

	cmd := exec.Command(binary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, &ServerError{Message: err.Error(), Cause: ErrCauseScrapeSpawnFailure}
	}
	s.active = cmd

	s.logger.Info("crawl process started",
		zap.Int("pid", cmd.Process.Pid),
		zap.Strings("args", args),
	)
	go s.monitor(cmd)
	return cmd.Process.Pid, nil
}

// monitor clears the active slot when the crawl exits, however it
// exits.
func (s *supervisor) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.active == cmd {
		s.active = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("crawl process exited with error", zap.Error(err))
		return
	}
	s.logger.Info("crawl process completed")
}

// Stop interrupts the active crawl. SIGINT gives the crawler its
// normal drain-and-write-manifest shutdown path.
func (s *supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return &ServerError{Message: "no active scrape", Cause: ErrCauseScrapeIdle}
	}
	if err := s.active.Process.Signal(os.Interrupt); err != nil {
		return &ServerError{Message: err.Error(), Cause: ErrCauseScrapeSpawnFailure}
	}
	return nil
}

// Status reports the process state, including the run log tail while a
// crawl is active.
func (s *supervisor) Status() scrapeStatus {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active == nil {
		return scrapeStatus{Status: "idle"}
	}

	tail, err := runlog.Tail(s.runLogPath, statusLogLines)
	if err != nil {
		s.logger.Debug("run log tail failed", zap.Error(err))
	}
	return scrapeStatus{
		Status: "running",
		PID:    active.Process.Pid,
		Log:    tail,
	}
}

// Running reports whether a subordinate crawl is active.
func (s *supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
