package optimizer

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
)

/*
Responsibilities
- Walk a finished run directory and minify stored text content in place
- Track bytes saved per content type
- Write optimize_report.json into the run directory

Output Characteristics
- Idempotent: a second pass over minified files saves nothing
- A file is rewritten only when minification actually shrinks it
- Per-file failures are logged and skipped, never abort the walk
*/

// extensionMime maps the file extensions the optimizer touches to the
// media types registered with the minifier.
var extensionMime = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".svg":  "image/svg+xml",
}

// TypeStats accumulates the outcome for one content type.
type TypeStats struct {
	Files      int   `json:"files"`
	BytesSaved int64 `json:"bytes_saved"`
}

// Report is the document written to optimize_report.json.
type Report struct {
	Timestamp  string               `json:"timestamp"`
	Directory  string               `json:"directory"`
	Types      map[string]TypeStats `json:"types"`
	TotalFiles int                  `json:"total_files"`
	TotalSaved int64                `json:"total_saved"`
}

// Optimizer minifies the HTML, CSS, JS and SVG files of a run directory.
type Optimizer struct {
	minifier *minify.M
	logger   *zap.Logger
}

func NewOptimizer(logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := minify.New()
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	return &Optimizer{
		minifier: m,
		logger:   logger,
	}
}

// Optimize walks runDir, minifies every eligible file in place and
// writes optimize_report.json next to metadata.json. It returns the
// report it wrote.
func (o *Optimizer) Optimize(runDir string) (Report, error) {
	report := Report{
		Timestamp: timeutil.ISO8601(time.Now()),
		Directory: runDir,
		Types:     map[string]TypeStats{},
	}

	walkErr := filepath.WalkDir(runDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		mime, eligible := extensionMime[ext]
		if !eligible {
			return nil
		}

		saved, optErr := o.optimizeFile(path, mime)
		if optErr != nil {
			// Same disposition as a failed asset: the original file
			// stays valid, so the walk continues.
			o.logger.Warn("optimization skipped",
				zap.String("path", path),
				zap.Error(optErr),
			)
			return nil
		}

		key := strings.TrimPrefix(ext, ".")
		stats := report.Types[key]
		stats.Files++
		stats.BytesSaved += saved
		report.Types[key] = stats
		report.TotalFiles++
		report.TotalSaved += saved
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}

	if err := writeReport(runDir, report); err != nil {
		return report, err
	}

	o.logger.Info("optimization complete",
		zap.String("directory", runDir),
		zap.Int("files", report.TotalFiles),
		zap.Int64("bytes_saved", report.TotalSaved),
	)
	return report, nil
}

// optimizeFile minifies one file in place and returns the bytes saved.
// Results that do not shrink leave the file untouched and save zero.
func (o *Optimizer) optimizeFile(path string, mime string) (int64, error) {
	original, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var minified bytes.Buffer
	if err := o.minifier.Minify(mime, &minified, bytes.NewReader(original)); err != nil {
		return 0, err
	}
	if minified.Len() >= len(original) {
		return 0, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, minified.Bytes(), info.Mode().Perm()); err != nil {
		return 0, err
	}

	saved := int64(len(original) - minified.Len())
	o.logger.Debug("minified",
		zap.String("path", path),
		zap.Int64("bytes_saved", saved),
	)
	return saved, nil
}
