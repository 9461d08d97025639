package policy_test

import (
	"strings"
	"testing"

	"github.com/rohmanhakim/webarchiver/internal/policy"
)

func TestInScope_HostBoundary(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		seedHost string
		want     bool
	}{
		{"same host", "https://example.com/docs", "example.com", true},
		{"same host with query", "https://example.com/docs?page=2", "example.com", true},
		{"different host", "https://other.com/docs", "example.com", false},
		{"subdomain is a different host", "https://blog.example.com/", "example.com", false},
		{"host case-insensitive", "https://EXAMPLE.com/docs", "example.com", true},
		{"unparseable", "http://%zz", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.InScope(tt.url, tt.seedHost); got != tt.want {
				t.Errorf("InScope(%q, %q) = %v, want %v", tt.url, tt.seedHost, got, tt.want)
			}
		})
	}
}

func TestInScope_ExcludePatterns(t *testing.T) {
	rejected := []string{
		"https://example.com/login",
		"https://example.com/LOGIN",
		"https://example.com/account/signin",
		"https://example.com/signup?next=/",
		"https://example.com/register",
		"https://example.com/logout",
		"mailto:someone@example.com",
		"tel:+15551234567",
		"javascript:void(0)",
		"https://example.com/page#",
	}

	for _, u := range rejected {
		if policy.InScope(u, "example.com") {
			t.Errorf("InScope(%q) = true, want false", u)
		}
	}
}

func TestInScope_DownloadExtensions(t *testing.T) {
	rejected := []string{
		"https://example.com/manual.pdf",
		"https://example.com/release.ZIP",
		"https://example.com/setup.exe",
		"https://example.com/bundle.tar.gz",
		"https://example.com/report.xlsx",
	}
	for _, u := range rejected {
		if policy.InScope(u, "example.com") {
			t.Errorf("InScope(%q) = true, want false", u)
		}
	}

	// An html page is not a download
	if !policy.InScope("https://example.com/guide.html", "example.com") {
		t.Error("InScope rejected a plain html page")
	}
}

func TestInScope_QueryKeyRejects(t *testing.T) {
	if policy.InScope("https://example.com/file?download=1", "example.com") {
		t.Error("download query key not rejected")
	}
	if policy.InScope("https://example.com/auth?login=true", "example.com") {
		t.Error("login query key not rejected")
	}
	if !policy.InScope("https://example.com/docs?page=2&lang=en", "example.com") {
		t.Error("benign query keys rejected")
	}
}

func TestClassifyAsset(t *testing.T) {
	tests := []struct {
		url  string
		want policy.AssetType
	}{
		{"https://example.com/logo.png", policy.AssetImage},
		{"https://example.com/photo.JPEG", policy.AssetImage},
		{"https://example.com/icon.svg?v=3", policy.AssetImage},
		{"https://example.com/site.css", policy.AssetCSS},
		{"https://example.com/app.js", policy.AssetJS},
		{"https://example.com/app.mjs", policy.AssetJS},
		{"https://example.com/font.woff2", policy.AssetFont},
		{"https://example.com/clip.mp4", policy.AssetMedia},
		{"https://example.com/page.html", policy.AssetNone},
		{"https://example.com/docs/guide", policy.AssetNone},
	}

	for _, tt := range tests {
		if got := policy.ClassifyAsset(tt.url); got != tt.want {
			t.Errorf("ClassifyAsset(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestDigest_Properties(t *testing.T) {
	d := policy.Digest("https://example.com/docs")
	if len(d) != 32 {
		t.Fatalf("digest length = %d, want 32", len(d))
	}
	for _, c := range d {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("digest %q contains non-hex character %q", d, c)
		}
	}

	// Fragment must not change the digest
	if policy.Digest("https://example.com/docs#section") != d {
		t.Error("fragment changed the digest")
	}

	// Query must change the digest
	if policy.Digest("https://example.com/docs?page=2") == d {
		t.Error("query string did not change the digest")
	}

	// Deterministic
	if policy.Digest("https://example.com/docs") != d {
		t.Error("digest is not deterministic")
	}
}

func TestAssetLocalPath(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		assetType policy.AssetType
		subdir    string
		ext       string
	}{
		{"png keeps its extension", "https://example.com/logo.png", policy.AssetImage, "images", ".png"},
		{"css subdir", "https://example.com/site.css", policy.AssetCSS, "css", ".css"},
		{"js subdir", "https://example.com/app.js", policy.AssetJS, "js", ".js"},
		{"font subdir", "https://example.com/f.woff2", policy.AssetFont, "fonts", ".woff2"},
		{"media subdir", "https://example.com/clip.mp4", policy.AssetMedia, "media", ".mp4"},
		{"other subdir", "https://example.com/blob.dat", policy.AssetOther, "assets", ".dat"},
		{"no extension falls back to type default", "https://example.com/img/12345", policy.AssetImage, "images", ".jpg"},
		{"extensionless css default", "https://example.com/styles", policy.AssetCSS, "css", ".css"},
		{"overlong extension falls back", "https://example.com/x.verylongextension", policy.AssetImage, "images", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.AssetLocalPath(tt.url, tt.assetType)
			wantPrefix := tt.subdir + "/"
			if !strings.HasPrefix(got, wantPrefix) {
				t.Errorf("AssetLocalPath(%q) = %q, want prefix %q", tt.url, got, wantPrefix)
			}
			if !strings.HasSuffix(got, tt.ext) {
				t.Errorf("AssetLocalPath(%q) = %q, want suffix %q", tt.url, got, tt.ext)
			}
			stem := strings.TrimSuffix(strings.TrimPrefix(got, wantPrefix), tt.ext)
			if len(stem) != 32 {
				t.Errorf("digest stem %q has length %d, want 32", stem, len(stem))
			}
		})
	}
}

func TestAssetLocalPath_FragmentInvariant(t *testing.T) {
	a := policy.AssetLocalPath("https://example.com/logo.png", policy.AssetImage)
	b := policy.AssetLocalPath("https://example.com/logo.png#v", policy.AssetImage)
	if a != b {
		t.Errorf("fragment changed asset path: %q vs %q", a, b)
	}
}
