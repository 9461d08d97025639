package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webarchiver/internal/config"
)

func TestConfig_Defaults(t *testing.T) {
	cfg, err := config.WithDefault().Build()
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.StartURL())
	assert.Equal(t, 10, cfg.MaxWorkers())
	assert.Equal(t, 3, cfg.MaxDepth())
	assert.Equal(t, 100, cfg.MaxPages())
	assert.Equal(t, 50, cfg.PagesPerDomain())
	assert.True(t, cfg.RespectRobots())
	assert.Equal(t, 500*time.Millisecond, cfg.RequestDelay())
	assert.Equal(t, "./scraped_data", cfg.OutputDir())
	assert.Equal(t, "./archives", cfg.ArchiveDir())
	assert.False(t, cfg.SkipAssets())
	assert.Equal(t, 19, cfg.CompressionLevel())
	assert.Empty(t, cfg.DatabaseURL())
	assert.Equal(t, ":8080", cfg.ListenAddr())
}

func TestConfig_BuilderChain(t *testing.T) {
	cfg, err := config.WithDefault().
		WithStartURL("https://docs.example.org/start").
		WithMaxWorkers(4).
		WithMaxDepth(0).
		WithMaxPages(25).
		WithPagesPerDomain(10).
		WithRespectRobots(false).
		WithRequestDelay(time.Second).
		WithSkipAssets(true).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "https://docs.example.org/start", cfg.StartURL())
	assert.Equal(t, 4, cfg.MaxWorkers())
	assert.Equal(t, 0, cfg.MaxDepth())
	assert.Equal(t, 25, cfg.MaxPages())
	assert.Equal(t, 10, cfg.PagesPerDomain())
	assert.False(t, cfg.RespectRobots())
	assert.True(t, cfg.SkipAssets())
	assert.Equal(t, "docs.example.org", cfg.SeedURL().Host)
}

func TestConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"start_url": "https://files.example.com",
		"max_depth": 0,
		"pages_per_domain": 0,
		"respect_robots_txt": false,
		"request_delay": 1.5,
		"compression_level": 3
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.WithDefault().WithConfigFile(path).Build()
	require.NoError(t, err)

	assert.Equal(t, "https://files.example.com", cfg.StartURL())
	assert.Equal(t, 0, cfg.MaxDepth(), "explicit zero in the file must win over the default")
	assert.Equal(t, 0, cfg.PagesPerDomain())
	assert.False(t, cfg.RespectRobots())
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestDelay())
	assert.Equal(t, 3, cfg.CompressionLevel())
	// Untouched fields keep their defaults
	assert.Equal(t, 100, cfg.MaxPages())
}

func TestConfig_FileMissing(t *testing.T) {
	_, err := config.WithDefault().WithConfigFile("/does/not/exist.json").Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrFileDoesNotExist)
}

func TestConfig_FileUnparseable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := config.WithDefault().WithConfigFile(path).Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigParsingFail)
}

func TestConfig_EnvironmentOverlay(t *testing.T) {
	t.Setenv("START_URL", "https://env.example.com")
	t.Setenv("MAX_WORKERS", "2")
	t.Setenv("REQUEST_DELAY", "0.25")
	t.Setenv("SKIP_ASSETS", "true")
	t.Setenv("RESPECT_ROBOTS_TXT", "false")

	cfg, err := config.WithDefault().WithEnvironment().Build()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.StartURL())
	assert.Equal(t, 2, cfg.MaxWorkers())
	assert.Equal(t, 250*time.Millisecond, cfg.RequestDelay())
	assert.True(t, cfg.SkipAssets())
	assert.False(t, cfg.RespectRobots())
}

func TestConfig_EnvironmentBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_pages": 30}`), 0644))
	t.Setenv("MAX_PAGES", "7")

	cfg, err := config.WithDefault().WithConfigFile(path).WithEnvironment().Build()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxPages())
}

func TestConfig_FlagsBeatEnvironment(t *testing.T) {
	t.Setenv("MAX_PAGES", "7")

	cfg, err := config.WithDefault().WithEnvironment().WithMaxPages(3).Build()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxPages())
}

func TestConfig_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("MAX_PAGES", "a lot")

	_, err := config.WithDefault().WithEnvironment().Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (config.Config, error)
	}{
		{"relative start url", func() (config.Config, error) {
			return config.WithDefault().WithStartURL("/no-host").Build()
		}},
		{"non-http scheme", func() (config.Config, error) {
			return config.WithDefault().WithStartURL("ftp://example.com").Build()
		}},
		{"zero workers", func() (config.Config, error) {
			return config.WithDefault().WithMaxWorkers(0).Build()
		}},
		{"negative depth", func() (config.Config, error) {
			return config.WithDefault().WithMaxDepth(-1).Build()
		}},
		{"negative delay", func() (config.Config, error) {
			return config.WithDefault().WithRequestDelay(-time.Second).Build()
		}},
		{"compression level out of range", func() (config.Config, error) {
			return config.WithDefault().WithCompressionLevel(23).Build()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}
