package runlog

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

/*
Responsibilities
- Own the shared run log file (web_archiver.log)
- Truncate it when a crawl starts
- Tee crawler logging to console and file
- Serve the file's tail to the control server's status endpoint

The file is plain text console-encoded lines, not JSON, so it stays
readable when tailed directly.
*/

// FileName is the run log's well-known name in the working directory.
// The control server tails the same path the crawler writes.
const FileName = "web_archiver.log"

// NewCrawlLogger opens (truncating) the run log at path and returns a
// logger that writes every entry to both stderr and the file. The
// returned close function flushes and releases the file.
func NewCrawlLogger(path string) (*zap.Logger, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening run log %s: %w", path, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapcore.InfoLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(file), zapcore.InfoLevel),
	)
	logger := zap.New(core)

	closeFn := func() {
		_ = logger.Sync()
		_ = file.Close()
	}
	return logger, closeFn, nil
}

// Tail returns up to n trailing lines of the run log. A missing file
// yields an empty slice; the caller treats that as "no crawl yet".
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run log %s: %w", path, err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
