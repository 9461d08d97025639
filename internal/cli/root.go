package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/webarchiver/internal/build"
	"github.com/rohmanhakim/webarchiver/internal/config"
)

var (
	cfgFile          string
	startURL         string
	maxWorkers       int
	maxDepth         int
	maxPages         int
	pagesPerDomain   int
	outputDir        string
	archiveDir       string
	skipAssets       bool
	respectRobots    bool
	requestDelay     float64
	compressionLevel int
	databaseURL      string
	noArchive        bool
)

// rootCmd is the base command. Invoked without a subcommand it runs a
// full crawl, then optimizes and archives the run directory.
var rootCmd = &cobra.Command{
	Use:   "webarchiver",
	Short: "A polite, bounded, asset-aware web archiver.",
	Long: `webarchiver crawls a site from a seed URL and stores a browsable
offline snapshot: pages under digest-stable filenames, their assets
alongside, and all references rewritten to local paths.

Runs are bounded by depth, total pages and pages per domain, spaced
per host, and honor robots.txt. Finished runs are minified and packed
into a compressed tarball.`,
	Version: build.FullVersion(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd)
	},
}

// crawlCmd is the explicit spelling of the root behavior. The control
// server spawns "webarchiver crawl ..." for its start endpoint.
var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a site into a run directory, then optimize and archive it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCrawl(cmd)
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize <run-dir>",
	Short: "Minify the HTML, CSS, JS and SVG files of a run directory in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOptimize(args[0])
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <run-dir>",
	Short: "Pack a run directory into a compressed tarball",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runArchive(cmd, args[0])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the archive browser and crawl control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	registerCrawlFlags(rootCmd)

	rootCmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip optimization and archiving after the crawl")
	crawlCmd.Flags().BoolVar(&noArchive, "no-archive", false, "skip optimization and archiving after the crawl")

	archiveCmd.Flags().String("format", "zstd", "archive compression: zstd or gzip")
	serveCmd.Flags().String("listen", "", "control server bind address")

	rootCmd.AddCommand(crawlCmd, optimizeCmd, archiveCmd, serveCmd)
}

// registerCrawlFlags binds the shared crawl flags. Registration resets
// the bound variables to their flag defaults.
func registerCrawlFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "JSON config file path")
	flags.StringVar(&startURL, "start-url", "", "seed URL; its host bounds the crawl")
	flags.IntVar(&maxWorkers, "max-workers", 10, "worker pool size")
	flags.IntVar(&maxDepth, "max-depth", 3, "maximum link depth from the seed")
	flags.IntVar(&maxPages, "max-pages", 100, "total page budget")
	flags.IntVar(&pagesPerDomain, "pages-per-domain", 50, "per-domain page budget")
	flags.StringVar(&outputDir, "output-dir", "", "root directory for run output")
	flags.StringVar(&archiveDir, "archive-dir", "", "directory for packed archives")
	flags.BoolVar(&skipAssets, "skip-assets", false, "store pages only, no asset downloads")
	flags.BoolVar(&respectRobots, "respect-robots", true, "consult robots.txt before fetching")
	flags.Float64Var(&requestDelay, "request-delay", 0.5, "per-host request spacing in seconds")
	flags.IntVar(&compressionLevel, "compression-level", 19, "zstd compression level (1-22)")
	flags.StringVar(&databaseURL, "db-url", "", "Postgres URL for run history (empty disables)")
}

// buildConfig resolves the effective configuration. Flags are applied
// only when explicitly set, so zero values like --max-depth=0 override
// the environment without defaults clobbering it.
func buildConfig(cmd *cobra.Command) (config.Config, error) {
	builder := config.WithDefault().
		WithConfigFile(cfgFile).
		WithEnvironment().
		WithStartURL(startURL).
		WithOutputDir(outputDir).
		WithArchiveDir(archiveDir).
		WithDatabaseURL(databaseURL)

	if flagChanged(cmd, "max-workers") {
		builder = builder.WithMaxWorkers(maxWorkers)
	}
	if flagChanged(cmd, "max-depth") {
		builder = builder.WithMaxDepth(maxDepth)
	}
	if flagChanged(cmd, "max-pages") {
		builder = builder.WithMaxPages(maxPages)
	}
	if flagChanged(cmd, "pages-per-domain") {
		builder = builder.WithPagesPerDomain(pagesPerDomain)
	}
	if flagChanged(cmd, "skip-assets") {
		builder = builder.WithSkipAssets(skipAssets)
	}
	if flagChanged(cmd, "respect-robots") {
		builder = builder.WithRespectRobots(respectRobots)
	}
	if flagChanged(cmd, "request-delay") {
		builder = builder.WithRequestDelay(secondsFlag(requestDelay))
	}
	if flagChanged(cmd, "compression-level") {
		builder = builder.WithCompressionLevel(compressionLevel)
	}
	if listen, err := cmd.Flags().GetString("listen"); err == nil && listen != "" {
		builder = builder.WithListenAddr(listen)
	}

	cfg, err := builder.Build()
	if err != nil {
		return config.Config{}, fmt.Errorf("resolving configuration: %w", err)
	}
	return cfg, nil
}

// flagChanged reports whether the user set a flag explicitly, checking
// local and persistent sets up the command tree.
func flagChanged(cmd *cobra.Command, name string) bool {
	if flag := cmd.Flags().Lookup(name); flag != nil && flag.Changed {
		return true
	}
	if flag := cmd.PersistentFlags().Lookup(name); flag != nil && flag.Changed {
		return true
	}
	if parent := cmd.Parent(); parent != nil {
		return flagChanged(parent, name)
	}
	return false
}
