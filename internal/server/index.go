package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rohmanhakim/webarchiver/internal/archiver"
	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/policy"
)

// Path parameters feed directly into filesystem lookups, so both are
// held to their exact shapes before any path is built.
var (
	runIDPattern  = regexp.MustCompile(`^[0-9]{8}_[0-9]{6}$`)
	digestPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// runIndex answers run and page queries from the output directory's
// manifests. It is stateless; every call re-reads the filesystem so a
// crawl finishing mid-session shows up without a restart.
type runIndex struct {
	outputDir  string
	archiveDir string
}

func (idx runIndex) listRuns() []runListItem {
	entries, err := os.ReadDir(idx.outputDir)
	if err != nil {
		return []runListItem{}
	}

	runs := []runListItem{}
	for _, entry := range entries {
		if !entry.IsDir() || !runIDPattern.MatchString(entry.Name()) {
			continue
		}
		manifest, err := idx.loadManifest(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, runListItem{
			ID:           entry.Name(),
			Timestamp:    manifest.Timestamp,
			StartURL:     manifest.StartURL,
			TotalPages:   manifest.TotalPages,
			PagesScraped: manifest.PagesScraped,
			Stats:        manifest.Stats,
		})
	}
	// Run IDs sort chronologically, newest first.
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	return runs
}

func (idx runIndex) loadManifest(runID string) (metadata.RunManifest, error) {
	data, err := os.ReadFile(filepath.Join(idx.outputDir, runID, "metadata.json"))
	if err != nil {
		return metadata.RunManifest{}, err
	}
	var manifest metadata.RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return metadata.RunManifest{}, err
	}
	return manifest, nil
}

// compressionReport returns the archive report when it refers to the
// given run, nil otherwise.
func (idx runIndex) compressionReport(runID string) *archiver.Report {
	data, err := os.ReadFile(filepath.Join(idx.archiveDir, "compression_report.json"))
	if err != nil {
		return nil
	}
	var report archiver.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil
	}
	if !strings.Contains(report.SourceDirectory, runID) {
		return nil
	}
	return &report
}

// filterPages applies search and domain filters and returns the page
// slice for one response window plus the total match count.
func filterPages(pages map[string]metadata.PageRecord, search string, domain string, limit int, offset int) ([]pageListItem, int) {
	search = strings.ToLower(search)

	filtered := []pageListItem{}
	for _, page := range pages {
		if search != "" &&
			!strings.Contains(strings.ToLower(page.URL), search) &&
			!strings.Contains(strings.ToLower(page.Domain), search) {
			continue
		}
		if domain != "" && page.Domain != domain {
			continue
		}
		filtered = append(filtered, pageListItem{
			Digest:     policy.Digest(page.URL),
			PageRecord: page,
		})
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Timestamp > filtered[j].Timestamp })

	total := len(filtered)
	if offset >= total {
		return []pageListItem{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return filtered[offset:end], total
}

// pageFile locates the stored file of a digest, trying the page
// directory first and the shared asset directory second.
func (idx runIndex) pageFile(runID string, digest string) (string, string, bool) {
	for _, dir := range []string{"html", "assets"} {
		for _, ext := range []string{".html", ".css", ".js", ".json", ".xml", ".txt"} {
			path := filepath.Join(idx.outputDir, runID, dir, digest+ext)
			if _, err := os.Stat(path); err == nil {
				return path, strings.TrimPrefix(ext, "."), true
			}
		}
	}
	return "", "", false
}

// statsFor derives the content-type and depth distributions the stats
// endpoint adds on top of the manifest's own stats block.
func statsFor(manifest metadata.RunManifest) runStats {
	contentTypes := map[string]int{}
	depths := map[string]int{}
	for _, page := range manifest.Pages {
		mediaType := strings.TrimSpace(strings.SplitN(page.ContentType, ";", 2)[0])
		if mediaType == "" {
			mediaType = "unknown"
		}
		contentTypes[mediaType]++
		depths[strconv.Itoa(page.Depth)]++
	}
	return runStats{
		BasicStats:         manifest.Stats,
		DomainDistribution: manifest.DomainCounts,
		ContentTypes:       contentTypes,
		DepthDistribution:  depths,
	}
}

// searchRuns scans every manifest for URL or domain substring matches.
func (idx runIndex) searchRuns(query string, limit int) []searchResult {
	query = strings.ToLower(query)
	results := []searchResult{}
	for _, run := range idx.listRuns() {
		manifest, err := idx.loadManifest(run.ID)
		if err != nil {
			continue
		}
		for _, page := range manifest.Pages {
			if !strings.Contains(strings.ToLower(page.URL), query) &&
				!strings.Contains(strings.ToLower(page.Domain), query) {
				continue
			}
			results = append(results, searchResult{
				RunID:       run.ID,
				URL:         page.URL,
				Digest:      policy.Digest(page.URL),
				Domain:      page.Domain,
				Timestamp:   page.Timestamp,
				ContentType: page.ContentType,
				Size:        page.Size,
			})
			if len(results) >= limit {
				return results
			}
		}
	}
	return results
}

// listArchives enumerates the archive directory's tarballs, newest
// first by name.
func (idx runIndex) listArchives() []archiveEntry {
	entries, err := os.ReadDir(idx.archiveDir)
	if err != nil {
		return []archiveEntry{}
	}
	archives := []archiveEntry{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, ".tar.") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		archives = append(archives, archiveEntry{
			Name:    name,
			Size:    info.Size(),
			Created: info.ModTime().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name > archives[j].Name })
	return archives
}
