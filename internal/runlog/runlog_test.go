package runlog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rohmanhakim/webarchiver/internal/runlog"
)

func TestNewCrawlLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), runlog.FileName)

	logger, closeFn, err := runlog.NewCrawlLogger(path)
	if err != nil {
		t.Fatalf("NewCrawlLogger failed: %v", err)
	}
	logger.Info("starting crawl")
	logger.Warn("page fetch failed")
	closeFn()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		t.Fatalf("reading run log: %v", readErr)
	}
	content := string(data)
	if !strings.Contains(content, "starting crawl") || !strings.Contains(content, "page fetch failed") {
		t.Errorf("log content = %q", content)
	}
	if !strings.Contains(content, "INFO") || !strings.Contains(content, "WARN") {
		t.Errorf("log lines missing level markers: %q", content)
	}
}

func TestNewCrawlLogger_TruncatesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), runlog.FileName)
	if err := os.WriteFile(path, []byte("stale line from last run\n"), 0644); err != nil {
		t.Fatalf("seeding old log: %v", err)
	}

	logger, closeFn, err := runlog.NewCrawlLogger(path)
	if err != nil {
		t.Fatalf("NewCrawlLogger failed: %v", err)
	}
	logger.Info("fresh run")
	closeFn()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale line") {
		t.Error("previous run's content survived the truncate")
	}
}

func TestTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), runlog.FileName)
	content := "one\ntwo\nthree\nfour\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing log: %v", err)
	}

	lines, err := runlog.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(lines) != 2 || lines[0] != "three" || lines[1] != "four" {
		t.Errorf("Tail = %v, want [three four]", lines)
	}

	all, err := runlog.Tail(path, 100)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Tail with large n = %v, want all 4 lines", all)
	}
}

func TestTail_MissingFile(t *testing.T) {
	lines, err := runlog.Tail(filepath.Join(t.TempDir(), "absent.log"), 10)
	if err != nil {
		t.Fatalf("Tail of missing file errored: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("Tail of missing file = %v, want empty", lines)
	}
}
