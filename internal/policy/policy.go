package policy

/*
Responsibilities
 - Decide whether a discovered link is eligible for crawling (InScope)
 - Classify asset URLs by extension (ClassifyAsset)
 - Produce the canonical URL digest used as the filename stem (Digest)
 - Compute the run-relative local path for a stored asset (AssetLocalPath)

Properties
 - Pure: no I/O, no state, no crawl history
 - Deterministic: same input always produces same output
 - The seed URL is never passed through InScope; scope filtering applies
   to discovered links only
*/

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rohmanhakim/webarchiver/pkg/hashutil"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

// downloadExtensions are file types that are never crawled as pages.
var downloadExtensions = map[string]struct{}{
	".pdf":  {},
	".zip":  {},
	".exe":  {},
	".dmg":  {},
	".msi":  {},
	".rar":  {},
	".doc":  {},
	".docx": {},
	".xls":  {},
	".xlsx": {},
}

// excludePatterns match anywhere in the full URL, case-insensitively.
var excludePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/login`),
	regexp.MustCompile(`(?i)/signin`),
	regexp.MustCompile(`(?i)/signup`),
	regexp.MustCompile(`(?i)/register`),
	regexp.MustCompile(`(?i)/logout`),
	regexp.MustCompile(`(?i)^mailto:`),
	regexp.MustCompile(`(?i)^tel:`),
	regexp.MustCompile(`(?i)^javascript:`),
	regexp.MustCompile(`#$`),
}

// rejectQueryKeys disqualify a URL when present as a query parameter.
var rejectQueryKeys = map[string]struct{}{
	"download": {},
	"login":    {},
	"logout":   {},
	"signin":   {},
	"signup":   {},
}

var assetExtensions = map[string]AssetType{
	".jpg":   AssetImage,
	".jpeg":  AssetImage,
	".png":   AssetImage,
	".gif":   AssetImage,
	".webp":  AssetImage,
	".svg":   AssetImage,
	".ico":   AssetImage,
	".bmp":   AssetImage,
	".avif":  AssetImage,
	".css":   AssetCSS,
	".js":    AssetJS,
	".mjs":   AssetJS,
	".woff":  AssetFont,
	".woff2": AssetFont,
	".ttf":   AssetFont,
	".eot":   AssetFont,
	".otf":   AssetFont,
	".mp4":   AssetMedia,
	".webm":  AssetMedia,
	".ogg":   AssetMedia,
	".mp3":   AssetMedia,
	".wav":   AssetMedia,
}

// InScope reports whether a discovered link may be admitted to the
// frontier. The seed host fixes the crawl boundary; everything off-host,
// every downloadable file type, and every excluded pattern is rejected.
func InScope(raw string, seedHost string) bool {
	for _, pattern := range excludePatterns {
		if pattern.MatchString(raw) {
			return false
		}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if !strings.EqualFold(parsed.Host, seedHost) {
		return false
	}

	lowerPath := strings.ToLower(parsed.Path)
	if strings.HasSuffix(lowerPath, ".tar.gz") {
		return false
	}
	if ext := pathExtension(lowerPath); ext != "" {
		if _, blocked := downloadExtensions[ext]; blocked {
			return false
		}
	}

	for key := range parsed.Query() {
		if _, reject := rejectQueryKeys[strings.ToLower(key)]; reject {
			return false
		}
	}

	return true
}

// ClassifyAsset maps a URL to an asset type by its path extension.
// Returns AssetNone when the URL does not look like an asset; callers
// that know the reference context (e.g. CSS url() tokens) classify
// by context instead.
func ClassifyAsset(raw string) AssetType {
	parsed, err := url.Parse(urlutil.StripFragment(raw))
	if err != nil {
		return AssetNone
	}
	ext := pathExtension(strings.ToLower(parsed.Path))
	if t, ok := assetExtensions[ext]; ok {
		return t
	}
	return AssetNone
}

// Digest returns the 32-hex MD5 digest of the canonical URL bytes.
// This digest is the filename stem for both pages and assets.
func Digest(raw string) string {
	canonical, err := urlutil.CanonicalString(urlutil.StripFragment(raw))
	if err != nil {
		canonical = urlutil.StripFragment(raw)
	}
	digest, _ := hashutil.HashString(canonical, hashutil.HashAlgoMD5)
	return digest
}

// AssetLocalPath computes the run-relative storage path for an asset:
// "{subdir}/{digest}{ext}". The extension comes from the URL path when
// it is non-empty and at most 10 characters (query tails stripped);
// otherwise the type default applies.
func AssetLocalPath(raw string, assetType AssetType) string {
	ext := ""
	if parsed, err := url.Parse(urlutil.StripFragment(raw)); err == nil {
		ext = pathExtension(parsed.Path)
	}
	if i := strings.IndexByte(ext, '?'); i >= 0 {
		ext = ext[:i]
	}
	if ext == "" || len(ext) > 10 {
		ext = assetType.DefaultExtension()
	}
	return assetType.Subdir() + "/" + Digest(raw) + ext
}

// pathExtension returns the final ".ext" component of a path, or "".
func pathExtension(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		switch p[i] {
		case '.':
			return p[i:]
		case '/':
			return ""
		}
	}
	return ""
}
