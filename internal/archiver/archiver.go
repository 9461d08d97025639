package archiver

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/optimizer"
	"github.com/rohmanhakim/webarchiver/pkg/fileutil"
	"github.com/rohmanhakim/webarchiver/pkg/hashutil"
	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
)

/*
Responsibilities
- Pack a finished run directory into a single compressed tarball
- Record what was archived (compression_report.json, run_summary_*.json)
- Leave the run directory untouched

Output Characteristics
- {archive_dir}/{run_id}.tar.zst by default, .tar.gz with FormatGzip
- Tar entries use paths relative to the run directory
- Only regular files and directories are packed
*/

// Format selects the compression applied on top of the tar stream.
type Format string

const (
	FormatZstd Format = "zstd"
	FormatGzip Format = "gzip"
)

// Report is the document written to compression_report.json.
type Report struct {
	Timestamp        string  `json:"timestamp"`
	SourceDirectory  string  `json:"source_directory"`
	ArchivePath      string  `json:"archive_path"`
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	ChecksumBlake3   string  `json:"checksum_blake3"`
}

// runSummary is the per-run rollup written next to the archive.
type runSummary struct {
	RunTimestamp        string  `json:"run_timestamp"`
	StartURL            string  `json:"start_url"`
	PagesScraped        int     `json:"pages_scraped"`
	MaxPagesLimit       int     `json:"max_pages_limit"`
	ReachedLimit        bool    `json:"reached_limit"`
	ArchivePath         string  `json:"archive_path"`
	CompressionRatio    float64 `json:"compression_ratio"`
	OptimizationSavings int64   `json:"optimization_savings"`
}

// Archiver packs run directories into the archive directory.
type Archiver struct {
	archiveDir       string
	format           Format
	compressionLevel int
	logger           *zap.Logger
}

func NewArchiver(archiveDir string, format Format, compressionLevel int, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if format == "" {
		format = FormatZstd
	}
	return &Archiver{
		archiveDir:       archiveDir,
		format:           format,
		compressionLevel: compressionLevel,
		logger:           logger,
	}
}

// Archive packs runDir into {archiveDir}/{runID}.tar.zst (or .tar.gz),
// where runID is the run directory's base name. It writes
// compression_report.json and run_summary_{runID}.json into the
// archive directory and returns the report.
func (a *Archiver) Archive(runDir string) (Report, error) {
	if _, err := os.Stat(runDir); err != nil {
		return Report{}, &ArchiveError{Message: err.Error(), Cause: ErrCauseSourceUnreadable}
	}
	if err := fileutil.EnsureDir(a.archiveDir); err != nil {
		return Report{}, &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}

	runID := filepath.Base(runDir)
	archivePath := filepath.Join(a.archiveDir, runID+a.extension())

	a.logger.Info("archiving run",
		zap.String("source", runDir),
		zap.String("archive", archivePath),
		zap.String("format", string(a.format)),
	)

	originalSize, sizeErr := fileutil.DirSize(runDir)
	if sizeErr != nil {
		return Report{}, &ArchiveError{Message: sizeErr.Error(), Cause: ErrCauseSourceUnreadable}
	}

	if err := a.pack(runDir, archivePath); err != nil {
		// A partial archive is worse than none.
		_ = os.Remove(archivePath)
		return Report{}, err
	}

	info, statErr := os.Stat(archivePath)
	if statErr != nil {
		return Report{}, &ArchiveError{Message: statErr.Error(), Cause: ErrCauseCompressFailure}
	}
	compressedSize := info.Size()

	checksum, err := a.checksum(archivePath)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Timestamp:        timeutil.ISO8601(time.Now()),
		SourceDirectory:  runDir,
		ArchivePath:      archivePath,
		OriginalSize:     originalSize,
		CompressedSize:   compressedSize,
		CompressionRatio: ratio(originalSize, compressedSize),
		ChecksumBlake3:   checksum,
	}

	if err := a.writeJSON(filepath.Join(a.archiveDir, "compression_report.json"), report); err != nil {
		return Report{}, err
	}
	if err := a.writeRunSummary(runDir, runID, report); err != nil {
		return Report{}, err
	}

	a.logger.Info("archive complete",
		zap.String("archive", archivePath),
		zap.Int64("original_size", originalSize),
		zap.Int64("compressed_size", compressedSize),
		zap.Float64("ratio", report.CompressionRatio),
	)
	return report, nil
}

func (a *Archiver) extension() string {
	if a.format == FormatGzip {
		return ".tar.gz"
	}
	return ".tar.zst"
}

// pack streams runDir through tar and the configured compressor into
// archivePath.
func (a *Archiver) pack(runDir string, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	defer out.Close()

	compressor, err := a.newCompressor(out)
	if err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	tarWriter := tar.NewWriter(compressor)

	walkErr := filepath.WalkDir(runDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		// Symlinks and other specials are not part of a run directory.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tarWriter, file)
		file.Close()
		return err
	})
	if walkErr != nil {
		return &ArchiveError{Message: walkErr.Error(), Cause: ErrCauseTarFailure}
	}

	if err := tarWriter.Close(); err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseTarFailure}
	}
	if err := compressor.Close(); err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	if err := out.Close(); err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	return nil
}

func (a *Archiver) newCompressor(out io.Writer) (io.WriteCloser, error) {
	if a.format == FormatGzip {
		return gzip.NewWriterLevel(out, gzip.BestCompression)
	}
	return zstd.NewWriter(out,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(a.compressionLevel)),
	)
}

func (a *Archiver) checksum(archivePath string) (string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	sum, err := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	if err != nil {
		return "", &ArchiveError{Message: err.Error(), Cause: ErrCauseCompressFailure}
	}
	return sum, nil
}

// writeRunSummary folds the crawl manifest and the optimizer report
// into run_summary_{runID}.json. Both inputs are optional: an archive
// of a bare directory still gets a summary.
func (a *Archiver) writeRunSummary(runDir string, runID string, report Report) error {
	summary := runSummary{
		RunTimestamp:     runID,
		ArchivePath:      report.ArchivePath,
		CompressionRatio: report.CompressionRatio,
	}

	if manifest, err := readManifest(runDir); err == nil {
		summary.StartURL = manifest.StartURL
		summary.PagesScraped = manifest.TotalPages
		summary.MaxPagesLimit = manifest.MaxPagesLimit
		summary.ReachedLimit = manifest.MaxPagesLimit > 0 && manifest.TotalPages >= manifest.MaxPagesLimit
	} else {
		a.logger.Debug("no manifest in run directory", zap.String("source", runDir), zap.Error(err))
	}

	if optReport, err := optimizer.ReadReport(runDir); err == nil {
		summary.OptimizationSavings = optReport.TotalSaved
	}

	return a.writeJSON(filepath.Join(a.archiveDir, fmt.Sprintf("run_summary_%s.json", runID)), summary)
}

func (a *Archiver) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseReportFailure}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseReportFailure}
	}
	return nil
}

func readManifest(runDir string) (metadata.RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return metadata.RunManifest{}, err
	}
	var manifest metadata.RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return metadata.RunManifest{}, err
	}
	return manifest, nil
}

func ratio(original, compressed int64) float64 {
	if original == 0 {
		return 0
	}
	return float64(compressed) / float64(original)
}
