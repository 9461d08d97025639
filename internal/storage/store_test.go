package storage_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/storage"
)

func newStore(t *testing.T) *storage.RunStore {
	t.Helper()
	return storage.NewRunStore(t.TempDir(), &metadata.NoopSink{})
}

func TestRunStore_WritePage_ExtensionByContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		ext         string
	}{
		{"html", "text/html; charset=utf-8", ".html"},
		{"xhtml", "application/xhtml+xml", ".html"},
		{"plain text", "text/plain", ".html"},
		{"json", "application/json", ".json"},
		{"xml", "application/xml", ".xml"},
		{"binary", "application/octet-stream", ".txt"},
		{"empty", "", ".txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			result, err := store.WritePage("abc123", tt.contentType, []byte("content"))
			if err != nil {
				t.Fatalf("WritePage failed: %v", err)
			}
			want := filepath.Join("html", "abc123"+tt.ext)
			if result.RelPath() != want {
				t.Errorf("RelPath() = %q, want %q", result.RelPath(), want)
			}
			if _, statErr := os.Stat(result.FullPath()); statErr != nil {
				t.Errorf("stored file missing: %v", statErr)
			}
			if result.Size() != int64(len("content")) {
				t.Errorf("Size() = %d, want %d", result.Size(), len("content"))
			}
		})
	}
}

func TestRunStore_WriteAsset_LazySubdirs(t *testing.T) {
	store := newStore(t)

	result, err := store.WriteAsset("images/deadbeef.png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("WriteAsset failed: %v", err)
	}
	data, readErr := os.ReadFile(result.FullPath())
	if readErr != nil {
		t.Fatalf("reading stored asset: %v", readErr)
	}
	if len(data) != 3 {
		t.Errorf("stored %d bytes, want 3", len(data))
	}
}

func TestRunStore_WriteManifest_Atomic(t *testing.T) {
	store := newStore(t)

	manifest := metadata.RunManifest{
		StartURL:      "https://example.com",
		MaxPagesLimit: 100,
		DomainCounts:  map[string]int{"example.com": 2},
		AssetMap:      map[string]string{},
		FailedAssets:  []string{},
		Pages: map[string]metadata.PageRecord{
			"https://example.com": {URL: "https://example.com", Filepath: "html/x.html", Domain: "example.com"},
		},
	}
	manifest.TotalPages = 1
	manifest.PagesScraped = 1

	if err := store.WriteManifest(manifest); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}

	// No temp file left behind
	if _, err := os.Stat(filepath.Join(store.Root(), "metadata.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp manifest file was not renamed away")
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), "metadata.json"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	for _, key := range []string{"start_url", "total_pages", "pages_scraped", "max_pages_limit", "pages_per_domain_limit", "timestamp", "stats", "domain_counts", "pages", "asset_map", "failed_assets"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("manifest missing key %q", key)
		}
	}

	// Indent-2 formatting
	if !strings.Contains(string(data), "\n  \"start_url\"") {
		t.Error("manifest is not indented with two spaces")
	}
}

func TestRunStore_WriteJSON(t *testing.T) {
	store := newStore(t)

	urls := []string{"https://example.com/a", "https://example.com/b"}
	if err := store.WriteJSON("scraped_urls.json", urls); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(store.Root(), "scraped_urls.json"))
	if err != nil {
		t.Fatalf("reading scraped_urls.json: %v", err)
	}
	var decoded []string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Errorf("decoded %d urls, want 2", len(decoded))
	}
}

func TestRunStore_ReadAndOverwrite(t *testing.T) {
	store := newStore(t)

	if _, err := store.WritePage("digest1", "text/html", []byte("<a href=\"https://example.com/next\">n</a>")); err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	rel := filepath.Join("html", "digest1.html")
	data, err := store.ReadFile(rel)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	rewritten := strings.ReplaceAll(string(data), "https://example.com/next", "digest2.html")
	if err := store.WriteFile(rel, []byte(rewritten)); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err = store.ReadFile(rel)
	if err != nil {
		t.Fatalf("ReadFile after overwrite failed: %v", err)
	}
	if !strings.Contains(string(data), "digest2.html") {
		t.Errorf("overwrite not visible: %q", data)
	}
}

func TestRunStore_ReadFile_Missing(t *testing.T) {
	store := newStore(t)
	if _, err := store.ReadFile("html/nope.html"); err == nil {
		t.Error("expected error reading missing file")
	}
}
